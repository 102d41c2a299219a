package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskboard/internal/engine/auth"
)

// AuthConfig gates the JSON API behind page tokens. With no secret the API
// is open.
type AuthConfig struct {
	Tokens auth.Tokens
}

func (c AuthConfig) enabled() bool {
	return c.Tokens.Enabled()
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware enforces page tokens under {basePath}/pages. Opening a
// page is the only unauthenticated call there; listing accepts any valid
// token, and per-page routes need a token for that page.
func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	pagesPath := path.Join(basePath, "pages")
	return func(next http.Handler) http.Handler {
		if !cfg.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := strings.TrimSuffix(req.URL.Path, "/")
			if p != pagesPath && !strings.HasPrefix(p, pagesPath+"/") {
				next.ServeHTTP(w, req)
				return
			}
			if p == pagesPath && req.Method == http.MethodPost {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(strings.TrimSpace(req.Header.Get("Authorization")))
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "page token required", nil))
				return
			}
			var err error
			if p == pagesPath {
				_, err = cfg.Tokens.Verify(token)
			} else {
				pageID, _, _ := strings.Cut(strings.TrimPrefix(p, pagesPath+"/"), "/")
				err = cfg.Tokens.Authorize(token, pageID)
			}
			if err != nil {
				var fe auth.ForbiddenError
				if errors.As(err, &fe) {
					respondStatusError(w, newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"page_id": fe.PageID}))
					return
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
