package board

import (
	"errors"
	"testing"

	"github.com/eink-labs/chess-hlss/internal/domain"
)

func newTestSession(t *testing.T, moves ...string) *Session {
	t.Helper()
	s, err := NewSession("game-1", "acct-1", domain.White, "rival", moves)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestStageCommitPending(t *testing.T) {
	s := newTestSession(t)
	if err := s.StagePending("e2e4"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if s.Version() != 0 {
		t.Fatalf("pending move must not bump the version, got %d", s.Version())
	}
	if got := len(s.DisplayGame().Moves()); got != 1 {
		t.Fatalf("display game should include the pending move, got %d plies", got)
	}
	if err := s.CommitPending(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if s.Version() != 1 || s.Pending() != "" {
		t.Fatalf("commit should promote the pending move, version=%d pending=%q", s.Version(), s.Pending())
	}
}

func TestRevertPendingRestoresCommittedPosition(t *testing.T) {
	s := newTestSession(t)
	if err := s.StagePending("e2e4"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	s.RevertPending()
	if got := len(s.DisplayGame().Moves()); got != 0 {
		t.Fatalf("display game should drop the reverted move, got %d plies", got)
	}
	if s.Version() != 0 {
		t.Fatalf("revert must not change the version, got %d", s.Version())
	}
}

func TestSecondStageRejectedWhilePending(t *testing.T) {
	s := newTestSession(t)
	if err := s.StagePending("e2e4"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := s.StagePending("d2d4"); !errors.Is(err, ErrPendingMove) {
		t.Fatalf("expected ErrPendingMove, got %v", err)
	}
}

func TestApplyRemoteMoveIdempotent(t *testing.T) {
	s := newTestSession(t, "e2e4")
	ev := domain.GameEvent{GameID: "game-1", Kind: domain.EventOpponentMove, MoveUCI: "e7e5", Seq: 2}

	applied, err := s.ApplyRemoteMove(ev)
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	applied, err = s.ApplyRemoteMove(ev)
	if err != nil || applied {
		t.Fatalf("duplicate event must be a no-op: applied=%v err=%v", applied, err)
	}
	if s.Version() != 2 {
		t.Fatalf("expected version 2, got %d", s.Version())
	}
}

func TestApplyRemoteMoveRefusedDuringSubmit(t *testing.T) {
	s := newTestSession(t)
	if err := s.StagePending("e2e4"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	_, err := s.ApplyRemoteMove(domain.GameEvent{Kind: domain.EventOpponentMove, MoveUCI: "e7e5", Seq: 2})
	if !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}
}

func TestApplyRemoteMoveGapDetected(t *testing.T) {
	s := newTestSession(t, "e2e4")
	_, err := s.ApplyRemoteMove(domain.GameEvent{Kind: domain.EventOpponentMove, MoveUCI: "b8c6", Seq: 4})
	if !errors.Is(err, ErrHistoryDiverged) {
		t.Fatalf("expected ErrHistoryDiverged for a sequence gap, got %v", err)
	}
}

func TestSyncHistoryExtends(t *testing.T) {
	s := newTestSession(t, "e2e4")
	changed, err := s.SyncHistory([]string{"e2e4", "e7e5", "g1f3"})
	if err != nil || !changed {
		t.Fatalf("sync: changed=%v err=%v", changed, err)
	}
	if s.Version() != 3 {
		t.Fatalf("expected version 3, got %d", s.Version())
	}

	// A shorter but consistent remote list leaves local state alone.
	changed, err = s.SyncHistory([]string{"e2e4"})
	if err != nil || changed {
		t.Fatalf("shorter consistent sync must be a no-op: changed=%v err=%v", changed, err)
	}
}

func TestSyncHistoryDivergenceAdoptsRemote(t *testing.T) {
	s := newTestSession(t, "e2e4")
	changed, err := s.SyncHistory([]string{"d2d4", "d7d5"})
	if !changed || !errors.Is(err, ErrHistoryDiverged) {
		t.Fatalf("expected adoption with divergence flag, changed=%v err=%v", changed, err)
	}
	if got := s.History(); len(got) != 2 || got[0] != "d2d4" {
		t.Fatalf("remote history should win, got %v", got)
	}
}

func TestMarkEndedFreezesSession(t *testing.T) {
	s := newTestSession(t)
	s.SetDrawOffer(domain.DrawOfferOpponent)
	s.MarkEnded(domain.StatusResign, domain.Black)

	if !s.Status().Terminal() || s.Winner() != domain.Black {
		t.Fatalf("expected terminal resign state, status=%s winner=%s", s.Status(), s.Winner())
	}
	if s.DrawOffer() != domain.DrawOfferNone {
		t.Fatalf("ending the game must clear the draw offer")
	}
	if err := s.StagePending("e2e4"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	applied, err := s.ApplyRemoteMove(domain.GameEvent{Kind: domain.EventOpponentMove, MoveUCI: "e7e5", Seq: 1})
	if applied || err != nil {
		t.Fatalf("events after the end must be no-ops: applied=%v err=%v", applied, err)
	}

	// A second terminal event cannot overwrite the first.
	s.MarkEnded(domain.StatusDraw, domain.White)
	if s.Status() != domain.StatusResign {
		t.Fatalf("terminal status must be sticky, got %s", s.Status())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestSession(t, "e2e4", "e7e5")
	s.SetDrawOffer(domain.DrawOfferSelf)

	restored, err := Restore(s.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.GameID() != "game-1" || restored.Version() != 2 {
		t.Fatalf("restored session mismatch: id=%s version=%d", restored.GameID(), restored.Version())
	}
	if restored.DrawOffer() != domain.DrawOfferSelf {
		t.Fatalf("draw offer lost on restore")
	}
	if !restored.OurTurn() {
		t.Fatalf("white to move after two plies, expected our turn")
	}
}
