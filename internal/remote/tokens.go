package remote

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// RefLookup resolves an account ID to its token reference, typically backed
// by the accounts directory.
type RefLookup func(ctx context.Context, accountID string) (string, error)

// EnvTokenSource turns token references into bearer tokens. A reference of
// the form "env:NAME" reads the NAME environment variable; anything else is
// treated as the token itself, which keeps local setups simple while letting
// deployments keep secrets out of the database.
type EnvTokenSource struct {
	lookup RefLookup

	mu    sync.Mutex
	cache map[string]string
}

func NewEnvTokenSource(lookup RefLookup) *EnvTokenSource {
	return &EnvTokenSource{lookup: lookup, cache: make(map[string]string)}
}

func (s *EnvTokenSource) Token(ctx context.Context, accountID string) (string, error) {
	s.mu.Lock()
	if tok, ok := s.cache[accountID]; ok {
		s.mu.Unlock()
		return tok, nil
	}
	s.mu.Unlock()

	ref, err := s.lookup(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("look up token ref for account %s: %w", accountID, err)
	}
	tok, err := resolveRef(ref)
	if err != nil {
		return "", fmt.Errorf("account %s: %w", accountID, err)
	}

	s.mu.Lock()
	s.cache[accountID] = tok
	s.mu.Unlock()
	return tok, nil
}

// Invalidate drops the cached token for an account, forcing a fresh lookup
// on the next request.
func (s *EnvTokenSource) Invalidate(accountID string) {
	s.mu.Lock()
	delete(s.cache, accountID)
	s.mu.Unlock()
}

func resolveRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty token reference")
	}
	if name, ok := strings.CutPrefix(ref, "env:"); ok {
		tok := strings.TrimSpace(os.Getenv(name))
		if tok == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return tok, nil
	}
	return ref, nil
}

var _ TokenSource = (*EnvTokenSource)(nil)
