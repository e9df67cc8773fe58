// Package newmatch holds the selection state of the match-setup screen:
// which account plays, which side, and against whom.
package newmatch

import (
	"context"
	"fmt"

	"github.com/eink-labs/chess-hlss/internal/accounts"
	"github.com/eink-labs/chess-hlss/internal/domain"
)

// Outcome reports what a button press did to the selection.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeUpdated
	// OutcomeStart means the player asked to create the selected match.
	OutcomeStart
)

// Selection is the match the player has dialed in.
type Selection struct {
	Account domain.Account
	Side    domain.Color
	// Adversary is nil for an open challenge.
	Adversary *domain.Adversary
}

// Controller cycles through accounts, sides and adversaries. It only tracks
// selection; actually creating the game is the caller's job.
type Controller struct {
	dir accounts.Directory

	accounts    []domain.Account
	accountIdx  int
	side        domain.Color
	adversaries []domain.Adversary
	// adversaryIdx is -1 for an open challenge.
	adversaryIdx int
}

var sideCycle = []domain.Color{domain.White, domain.Black, domain.Random}

// NewController loads the enabled accounts and starts at the defaults: the
// default account, playing white, open challenge.
func NewController(ctx context.Context, dir accounts.Directory) (*Controller, error) {
	accts, err := dir.EnabledAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if len(accts) == 0 {
		return nil, accounts.ErrNoAccounts
	}
	c := &Controller{
		dir:          dir,
		accounts:     accts,
		side:         domain.White,
		adversaryIdx: -1,
	}
	if err := c.loadAdversaries(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) loadAdversaries(ctx context.Context) error {
	advs, err := c.dir.Adversaries(ctx, c.accounts[c.accountIdx].ID)
	if err != nil {
		return fmt.Errorf("load adversaries: %w", err)
	}
	c.adversaries = advs
	c.adversaryIdx = -1
	return nil
}

// Selection returns the current choice.
func (c *Controller) Selection() Selection {
	sel := Selection{
		Account: c.accounts[c.accountIdx],
		Side:    c.side,
	}
	if c.adversaryIdx >= 0 && c.adversaryIdx < len(c.adversaries) {
		adv := c.adversaries[c.adversaryIdx]
		sel.Adversary = &adv
	}
	return sel
}

// Memento is the serializable selection, persisted with the device session
// so a restart does not lose what the player dialed in.
type Memento struct {
	AccountID   string       `json:"account_id"`
	Side        domain.Color `json:"side"`
	AdversaryID string       `json:"adversary_id,omitempty"`
}

func (c *Controller) Memento() Memento {
	m := Memento{
		AccountID: c.accounts[c.accountIdx].ID,
		Side:      c.side,
	}
	if c.adversaryIdx >= 0 && c.adversaryIdx < len(c.adversaries) {
		m.AdversaryID = c.adversaries[c.adversaryIdx].ID
	}
	return m
}

// RestoreMemento re-applies a stored selection. Entries that no longer exist
// (a removed account or adversary) silently fall back to the defaults.
func (c *Controller) RestoreMemento(ctx context.Context, m Memento) error {
	for i := range c.accounts {
		if c.accounts[i].ID == m.AccountID {
			c.accountIdx = i
			break
		}
	}
	if err := c.loadAdversaries(ctx); err != nil {
		return err
	}
	for _, s := range sideCycle {
		if s == m.Side {
			c.side = m.Side
			break
		}
	}
	if m.AdversaryID != "" {
		for i := range c.adversaries {
			if c.adversaries[i].ID == m.AdversaryID {
				c.adversaryIdx = i
				break
			}
		}
	}
	return nil
}

// Press feeds one button into the selection.
func (c *Controller) Press(ctx context.Context, b domain.Button) (Outcome, error) {
	switch b {
	case domain.Btn1:
		c.accountIdx = (c.accountIdx + 1) % len(c.accounts)
		if err := c.loadAdversaries(ctx); err != nil {
			return OutcomeNone, err
		}
		return OutcomeUpdated, nil
	case domain.Btn2:
		for i, s := range sideCycle {
			if s == c.side {
				c.side = sideCycle[(i+1)%len(sideCycle)]
				break
			}
		}
		return OutcomeUpdated, nil
	case domain.Btn3:
		if len(c.adversaries) == 0 {
			return OutcomeNone, nil
		}
		c.adversaryIdx++
		if c.adversaryIdx >= len(c.adversaries) {
			c.adversaryIdx = -1
		}
		return OutcomeUpdated, nil
	case domain.Btn4:
		if len(c.adversaries) == 0 {
			return OutcomeNone, nil
		}
		c.adversaryIdx--
		if c.adversaryIdx < -1 {
			c.adversaryIdx = len(c.adversaries) - 1
		}
		return OutcomeUpdated, nil
	case domain.Enter:
		return OutcomeStart, nil
	case domain.Esc:
		c.accountIdx = 0
		c.side = domain.White
		if err := c.loadAdversaries(ctx); err != nil {
			return OutcomeNone, err
		}
		return OutcomeUpdated, nil
	}
	return OutcomeNone, nil
}
