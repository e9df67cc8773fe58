package accounts

import (
	"context"
	"sort"
	"sync"

	"github.com/eink-labs/chess-hlss/internal/domain"
)

// MemoryDirectory serves a fixed account list from memory, for tests and for
// running without a database.
type MemoryDirectory struct {
	mu          sync.RWMutex
	accounts    []domain.Account
	adversaries map[string][]domain.Adversary
}

func NewMemoryDirectory(accts []domain.Account, advs []domain.Adversary) *MemoryDirectory {
	byAccount := make(map[string][]domain.Adversary)
	for _, a := range advs {
		byAccount[a.AccountID] = append(byAccount[a.AccountID], a)
	}
	return &MemoryDirectory{
		accounts:    append([]domain.Account(nil), accts...),
		adversaries: byAccount,
	}
}

func (d *MemoryDirectory) EnabledAccounts(_ context.Context) ([]domain.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.Account
	for _, a := range d.accounts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Default != out[j].Default {
			return out[i].Default
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (d *MemoryDirectory) Account(_ context.Context, id string) (*domain.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.accounts {
		if d.accounts[i].ID == id {
			a := d.accounts[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (d *MemoryDirectory) Adversaries(_ context.Context, accountID string) ([]domain.Adversary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Adversary(nil), d.adversaries[accountID]...), nil
}
