package remote

import (
	"context"
	"errors"
	"testing"
)

func TestTokenSourceLiteralRef(t *testing.T) {
	src := NewEnvTokenSource(func(context.Context, string) (string, error) {
		return "lip_abc123", nil
	})
	tok, err := src.Token(context.Background(), "a")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "lip_abc123" {
		t.Fatalf("got %q", tok)
	}
}

func TestTokenSourceEnvRef(t *testing.T) {
	t.Setenv("TEST_CHESS_TOKEN", "lip_from_env")
	src := NewEnvTokenSource(func(context.Context, string) (string, error) {
		return "env:TEST_CHESS_TOKEN", nil
	})
	tok, err := src.Token(context.Background(), "a")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "lip_from_env" {
		t.Fatalf("got %q", tok)
	}
}

func TestTokenSourceMissingEnvVar(t *testing.T) {
	src := NewEnvTokenSource(func(context.Context, string) (string, error) {
		return "env:TEST_CHESS_TOKEN_MISSING", nil
	})
	if _, err := src.Token(context.Background(), "a"); err == nil {
		t.Fatalf("expected error for unset variable")
	}
}

func TestTokenSourceCachesAndInvalidates(t *testing.T) {
	calls := 0
	src := NewEnvTokenSource(func(context.Context, string) (string, error) {
		calls++
		return "tok", nil
	})
	for i := 0; i < 3; i++ {
		if _, err := src.Token(context.Background(), "a"); err != nil {
			t.Fatalf("token: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected cached lookup, got %d calls", calls)
	}
	src.Invalidate("a")
	if _, err := src.Token(context.Background(), "a"); err != nil {
		t.Fatalf("token: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected fresh lookup after invalidate, got %d calls", calls)
	}
}

func TestTokenSourceLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	src := NewEnvTokenSource(func(context.Context, string) (string, error) {
		return "", boom
	})
	if _, err := src.Token(context.Background(), "a"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}
