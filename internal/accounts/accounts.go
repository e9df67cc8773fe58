// Package accounts resolves which remote-service identities a terminal may
// play with and which opponents it can challenge.
package accounts

import (
	"context"
	"errors"

	"github.com/eink-labs/chess-hlss/internal/domain"
)

var ErrNoAccounts = errors.New("no enabled accounts configured")

// Directory lists the configured accounts and their known adversaries.
type Directory interface {
	// EnabledAccounts returns all enabled accounts, default first, then by
	// creation time.
	EnabledAccounts(ctx context.Context) ([]domain.Account, error)
	// Account returns one account by ID, nil when absent.
	Account(ctx context.Context, id string) (*domain.Account, error)
	// Adversaries lists the opponents configured for an account.
	Adversaries(ctx context.Context, accountID string) ([]domain.Adversary, error)
}

// DefaultAccount picks the account a fresh device session starts with.
func DefaultAccount(ctx context.Context, dir Directory) (*domain.Account, error) {
	accts, err := dir.EnabledAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accts) == 0 {
		return nil, ErrNoAccounts
	}
	for i := range accts {
		if accts[i].Default {
			return &accts[i], nil
		}
	}
	return &accts[0], nil
}
