package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskboard/internal/engine"
	"taskboard/internal/engine/auth"
	"taskboard/internal/export"
	"taskboard/internal/pages"
	"taskboard/internal/repo"
	"taskboard/internal/view"
)

// Config for the HTTP handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"page not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"region\":\"sidebar\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler serving the widget at / and the JSON API under
// the base path.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Engine.Logger
	}
	renderer, err := view.New(cfg.Engine.Config.Labels)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Taskboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerWidget(router, cfg.Engine, renderer, logger)
	registerHealth(group, cfg.Engine)
	registerPages(group, cfg.Engine, cfg.Auth)
	registerBoard(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerExport(group, cfg.Engine)
	registerOpenAPI(router, api, basePath, cfg.Auth)

	return router, nil
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	switch {
	case errors.As(err, &fe):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"page_id": fe.PageID})
	case errors.Is(err, auth.ErrInvalidToken):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	case errors.Is(err, pages.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, pages.ErrTooManyPages):
		return newAPIError(http.StatusConflict, "too_many_pages", err.Error(), nil)
	case errors.Is(err, engine.ErrUnknownRegion):
		return newAPIError(http.StatusBadRequest, "unknown_region", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string, authCfg AuthConfig) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			if authCfg.enabled() {
				applyAuthSecurity(oas, basePath)
			}
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

// applyAuthSecurity marks every page route except page creation as needing a
// bearer page token.
func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	pagesPath := path.Join(basePath, "pages")
	for route, item := range oas.Paths {
		if route != pagesPath && !strings.HasPrefix(route, pagesPath+"/") {
			continue
		}
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == pagesPath && op == item.Post {
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Taskboard API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      When a JWT secret is configured, pass the token returned by POST /pages as Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

type healthBody struct {
	Status    string `json:"status"`
	OpenPages int    `json:"open_pages"`
}

func registerHealth(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body healthBody `json:"body"`
	}, error) {
		return &struct {
			Body healthBody `json:"body"`
		}{Body: healthBody{Status: "ok", OpenPages: e.Pages.Len()}}, nil
	})
}

type pagePath struct {
	PageID string `path:"page_id"`
}

type pageOutput struct {
	Body PageResponse `json:"body"`
}

type changeOutput struct {
	Body ChangeResponse `json:"body"`
}

func registerPages(api huma.API, e *engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-page",
		Method:        http.MethodPost,
		Path:          "/pages",
		Summary:       "Open a page with an empty board",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*pageOutput, error) {
		p, err := e.OpenPage(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.View(p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := pageResponse(res)
		if authCfg.enabled() {
			token, exp, err := authCfg.Tokens.Issue(p.ID)
			if err != nil {
				return nil, handleError(err)
			}
			out.Token = token
			out.TokenExpiresAt = &exp
		}
		return &pageOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pages",
		Method:      http.MethodGet,
		Path:        "/pages",
		Summary:     "List open pages",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PageSummary `json:"body"`
	}, error) {
		return &struct {
			Body []PageSummary `json:"body"`
		}{Body: pageSummaries(e.ListPages())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-page",
		Method:      http.MethodGet,
		Path:        "/pages/{page_id}",
		Summary:     "Show a page and its board",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *pagePath) (*pageOutput, error) {
		res, err := e.View(input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &pageOutput{Body: pageResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "close-page",
		Method:        http.MethodDelete,
		Path:          "/pages/{page_id}",
		Summary:       "Close a page and discard its board",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *pagePath) (*struct{}, error) {
		if err := e.ClosePage(ctx, input.PageID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerBoard(api huma.API, e *engine.Engine) {
	boardErrors := []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}

	huma.Register(api, huma.Operation{
		OperationID: "toggle-form",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/form/toggle",
		Summary:     "Open or close the entry form",
		Errors:      boardErrors,
	}, func(ctx context.Context, input *pagePath) (*changeOutput, error) {
		res, err := e.ToggleEntryForm(ctx, input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &changeOutput{Body: changeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-entry",
		Method:      http.MethodPut,
		Path:        "/pages/{page_id}/entry",
		Summary:     "Replace the text in the entry field",
		Errors:      boardErrors,
	}, func(ctx context.Context, input *struct {
		PageID string       `path:"page_id"`
		Body   EntryRequest `json:"body"`
	}) (*changeOutput, error) {
		res, err := e.SetEntry(ctx, input.PageID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &changeOutput{Body: changeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-entry",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/save",
		Summary:     "Submit the entry field as a new task",
		Errors:      boardErrors,
	}, func(ctx context.Context, input *pagePath) (*changeOutput, error) {
		res, err := e.Save(ctx, input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &changeOutput{Body: changeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-task",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/tasks",
		Summary:     "Add a task from raw text",
		Description: "Text is trimmed. Empty text creates nothing but still toggles the entry form.",
		Errors:      boardErrors,
	}, func(ctx context.Context, input *struct {
		PageID string         `path:"page_id"`
		Body   AddTaskRequest `json:"body"`
	}) (*changeOutput, error) {
		res, err := e.AddTask(ctx, input.PageID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &changeOutput{Body: changeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "click-region",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/regions/{region}/click",
		Summary:     "Click a region",
		Description: "Container regions need the task_id of the clicked element; elements not in that container are ignored.",
		Errors:      append([]int{http.StatusBadRequest}, boardErrors...),
	}, func(ctx context.Context, input *struct {
		PageID string       `path:"page_id"`
		Region string       `path:"region"`
		Body   ClickRequest `json:"body" required:"false"`
	}) (*changeOutput, error) {
		res, err := e.Click(ctx, input.PageID, input.Region, input.Body.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &changeOutput{Body: changeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-task",
		Method:      http.MethodPost,
		Path:        "/pages/{page_id}/tasks/{task_id}/advance",
		Summary:     "Click a task wherever it is displayed",
		Description: "New and in-progress tasks move to the next stage; archived tasks are deleted.",
		Errors:      boardErrors,
	}, func(ctx context.Context, input *struct {
		PageID string `path:"page_id"`
		TaskID string `path:"task_id"`
	}) (*changeOutput, error) {
		res, err := e.ClickTask(ctx, input.PageID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &changeOutput{Body: changeResponse(res)}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/pages/{page_id}/events",
		Summary:     "List recent journal entries for a page",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string `path:"page_id"`
		Type   string `query:"type"`
		TaskID string `query:"task_id"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := repo.NormalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.PageEvents(ctx, repo.EventFilter{
			PageID: input.PageID,
			Type:   input.Type,
			TaskID: input.TaskID,
			Limit:  limit + 1,
			Before: cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerExport(api huma.API, e *engine.Engine) {
	exporter := export.Exporter{Labels: e.Config.Labels}
	huma.Register(api, huma.Operation{
		OperationID: "export-page",
		Method:      http.MethodGet,
		Path:        "/pages/{page_id}/export",
		Summary:     "Download the board as json, csv or pdf",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PageID string `path:"page_id"`
		Format string `query:"format" enum:"json,csv,pdf" default:"json"`
	}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		format, err := export.ParseFormat(input.Format)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"format": input.Format})
		}
		res, err := e.View(input.PageID)
		if err != nil {
			return nil, handleError(err)
		}
		var buf bytes.Buffer
		if err := exporter.Write(&buf, format, res.Page.ID, res.Snapshot); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        format.ContentType(),
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", "tasks-"+res.Page.ID+"."+string(format)),
			Body:               buf.Bytes(),
		}, nil
	})
}
