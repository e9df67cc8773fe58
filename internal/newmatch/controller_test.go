package newmatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eink-labs/chess-hlss/internal/accounts"
	"github.com/eink-labs/chess-hlss/internal/domain"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dir := accounts.NewMemoryDirectory(
		[]domain.Account{
			{ID: "a", Username: "alice", Enabled: true, Default: true, CreatedAt: base},
			{ID: "b", Username: "bob", Enabled: true, CreatedAt: base.Add(time.Hour)},
		},
		[]domain.Adversary{
			{ID: "1", AccountID: "a", Username: "rival"},
			{ID: "2", AccountID: "a", Username: "coach", FriendlyName: "Coach"},
		},
	)
	c, err := NewController(context.Background(), dir)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return c
}

func press(t *testing.T, c *Controller, b domain.Button, want Outcome) {
	t.Helper()
	got, err := c.Press(context.Background(), b)
	if err != nil {
		t.Fatalf("press %s: %v", b, err)
	}
	if got != want {
		t.Fatalf("press %s: outcome %v, want %v", b, got, want)
	}
}

func TestDefaultsToDefaultAccountWhiteOpen(t *testing.T) {
	c := newTestController(t)
	sel := c.Selection()
	if sel.Account.ID != "a" || sel.Side != domain.White || sel.Adversary != nil {
		t.Fatalf("unexpected defaults: %+v", sel)
	}
}

func TestAccountCycleResetsAdversary(t *testing.T) {
	c := newTestController(t)
	press(t, c, domain.Btn3, OutcomeUpdated) // pick first adversary
	if c.Selection().Adversary == nil {
		t.Fatalf("expected adversary selected")
	}
	press(t, c, domain.Btn1, OutcomeUpdated) // switch to bob
	sel := c.Selection()
	if sel.Account.ID != "b" || sel.Adversary != nil {
		t.Fatalf("account switch must reset the adversary: %+v", sel)
	}
	// Bob has no adversaries configured; cycling is inert.
	press(t, c, domain.Btn3, OutcomeNone)
}

func TestSideCycleWraps(t *testing.T) {
	c := newTestController(t)
	want := []domain.Color{domain.Black, domain.Random, domain.White}
	for _, expected := range want {
		press(t, c, domain.Btn2, OutcomeUpdated)
		if got := c.Selection().Side; got != expected {
			t.Fatalf("side cycle: got %s, want %s", got, expected)
		}
	}
}

func TestAdversaryCycleWrapsThroughOpen(t *testing.T) {
	c := newTestController(t)
	press(t, c, domain.Btn3, OutcomeUpdated)
	if adv := c.Selection().Adversary; adv == nil || adv.Username != "rival" {
		t.Fatalf("expected rival, got %+v", adv)
	}
	press(t, c, domain.Btn3, OutcomeUpdated)
	if adv := c.Selection().Adversary; adv == nil || adv.Label() != "Coach" {
		t.Fatalf("expected coach, got %+v", adv)
	}
	press(t, c, domain.Btn3, OutcomeUpdated)
	if c.Selection().Adversary != nil {
		t.Fatalf("expected wrap back to open challenge")
	}
	// Backwards wraps to the last adversary.
	press(t, c, domain.Btn4, OutcomeUpdated)
	if adv := c.Selection().Adversary; adv == nil || adv.Label() != "Coach" {
		t.Fatalf("expected coach going backwards, got %+v", adv)
	}
}

func TestEscResetsSelection(t *testing.T) {
	c := newTestController(t)
	press(t, c, domain.Btn1, OutcomeUpdated)
	press(t, c, domain.Btn2, OutcomeUpdated)
	press(t, c, domain.Esc, OutcomeUpdated)
	sel := c.Selection()
	if sel.Account.ID != "a" || sel.Side != domain.White || sel.Adversary != nil {
		t.Fatalf("esc must restore defaults: %+v", sel)
	}
}

func TestEnterRequestsStart(t *testing.T) {
	c := newTestController(t)
	press(t, c, domain.Enter, OutcomeStart)
}

func TestMementoRoundTrip(t *testing.T) {
	c := newTestController(t)
	press(t, c, domain.Btn2, OutcomeUpdated) // black
	press(t, c, domain.Btn3, OutcomeUpdated) // rival
	m := c.Memento()

	c2 := newTestController(t)
	if err := c2.RestoreMemento(context.Background(), m); err != nil {
		t.Fatalf("restore: %v", err)
	}
	sel := c2.Selection()
	if sel.Side != domain.Black {
		t.Fatalf("side not restored: %s", sel.Side)
	}
	if sel.Adversary == nil || sel.Adversary.Username != "rival" {
		t.Fatalf("adversary not restored: %+v", sel.Adversary)
	}
}

func TestMementoWithRemovedAdversaryFallsBack(t *testing.T) {
	c := newTestController(t)
	if err := c.RestoreMemento(context.Background(), Memento{
		AccountID:   "a",
		Side:        domain.Random,
		AdversaryID: "gone",
	}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	sel := c.Selection()
	if sel.Side != domain.Random || sel.Adversary != nil {
		t.Fatalf("expected open challenge fallback: %+v", sel)
	}
}

func TestNoAccountsIsAnError(t *testing.T) {
	dir := accounts.NewMemoryDirectory(nil, nil)
	if _, err := NewController(context.Background(), dir); !errors.Is(err, accounts.ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts, got %v", err)
	}
}
