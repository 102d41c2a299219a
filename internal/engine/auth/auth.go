package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid page token")

// ForbiddenError indicates a token scoped to another page.
type ForbiddenError struct {
	PageID string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("token does not grant access to page %s", e.PageID)
}

// Tokens issues and verifies HS256 page tokens. The zero value (no secret)
// is disabled.
type Tokens struct {
	Secret string
	TTL    time.Duration
	Now    func() time.Time
}

func (t Tokens) Enabled() bool {
	return strings.TrimSpace(t.Secret) != ""
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Issue signs a token whose subject is the page id.
func (t Tokens) Issue(pageID string) (string, time.Time, error) {
	if !t.Enabled() {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	now := t.now()
	ttl := t.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   pageID,
		Issuer:    "taskboard",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses a token and returns the page id it grants.
func (t Tokens) Verify(token string) (string, error) {
	if !t.Enabled() {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithIssuer("taskboard"),
	)
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(t.Secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Authorize checks that token grants access to pageID.
func (t Tokens) Authorize(token, pageID string) error {
	subject, err := t.Verify(token)
	if err != nil {
		return err
	}
	if subject != pageID {
		return ForbiddenError{PageID: pageID}
	}
	return nil
}
