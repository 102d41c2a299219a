package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndAuthorize(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens := Tokens{Secret: "s3cret", TTL: time.Minute, Now: func() time.Time { return now }}
	token, exp, err := tokens.Issue("page-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected expiry %s", exp)
	}
	if err := tokens.Authorize(token, "page-1"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	var fe ForbiddenError
	if err := tokens.Authorize(token, "page-2"); !errors.As(err, &fe) || fe.PageID != "page-2" {
		t.Fatalf("expected forbidden, got %v", err)
	}
	other := Tokens{Secret: "different", Now: tokens.Now}
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token with wrong secret, got %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := tokens.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestDisabledTokens(t *testing.T) {
	var tokens Tokens
	if tokens.Enabled() {
		t.Fatalf("zero value should be disabled")
	}
	if _, _, err := tokens.Issue("p"); err == nil {
		t.Fatalf("expected issue error without secret")
	}
}
