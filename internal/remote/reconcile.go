package remote

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eink-labs/chess-hlss/internal/board"
	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/obslog"
)

// ChangeListener is notified after a session changed because of a remote
// event, so the owning screen can drop a stale wizard and redraw.
type ChangeListener func(gameID string)

// Reconciler folds inbound remote events into board sessions. Events arrive
// serialized per account from the stream goroutine, so per-game ordering is
// preserved without extra queuing.
type Reconciler struct {
	registry *board.Registry
	client   Client
	onChange ChangeListener

	// retryDelay paces re-application when a local submit is in flight.
	retryDelay time.Duration
	maxRetries int
}

func NewReconciler(registry *board.Registry, client Client, onChange ChangeListener) *Reconciler {
	return &Reconciler{
		registry:   registry,
		client:     client,
		onChange:   onChange,
		retryDelay: 150 * time.Millisecond,
		maxRetries: 40,
	}
}

// SetInFlightBudget sizes the retry window for events arriving while a local
// submission is in flight. It must cover the submit timeout with margin;
// otherwise a slow submit forces a full resync instead of a queued apply.
func (r *Reconciler) SetInFlightBudget(d time.Duration) {
	if d <= 0 {
		return
	}
	r.maxRetries = int(d/r.retryDelay) + 1
}

// HandleEvent applies one inbound event. Events for games without a local
// session are dropped; the remote service is free to notify about games this
// terminal never showed.
func (r *Reconciler) HandleEvent(accountID string, ev domain.GameEvent) {
	sess, ok := r.registry.Get(ev.GameID)
	if !ok {
		obslog.L().Warn("event for unknown game dropped",
			zap.String("account_id", accountID),
			zap.String("game_id", ev.GameID),
			zap.String("kind", string(ev.Kind)),
		)
		return
	}

	switch ev.Kind {
	case domain.EventOpponentMove:
		r.applyMove(sess, ev)
	case domain.EventDrawOffered:
		sess.SetDrawOffer(domain.DrawOfferOpponent)
		r.notify(ev.GameID)
	case domain.EventGameEnded:
		sess.MarkEnded(ev.Status, ev.Winner)
		r.notify(ev.GameID)
	case domain.EventGameState:
		r.applyState(sess, ev)
	default:
		obslog.L().Warn("unknown event kind dropped",
			zap.String("game_id", ev.GameID),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

func (r *Reconciler) applyMove(sess *board.Session, ev domain.GameEvent) {
	for attempt := 0; ; attempt++ {
		applied, err := sess.ApplyRemoteMove(ev)
		switch {
		case err == nil:
			if applied {
				r.notify(ev.GameID)
			}
			return
		case errors.Is(err, board.ErrSubmitInFlight):
			if attempt >= r.maxRetries {
				// A submit hung past its timeout. The remote already knows
				// the true history, so resync instead of dropping the move.
				obslog.L().Warn("in-flight submit outlasted the retry window, resyncing",
					zap.String("game_id", ev.GameID),
					zap.String("move", ev.MoveUCI),
				)
				r.resyncFromEvent(sess, ev)
				return
			}
			time.Sleep(r.retryDelay)
		case errors.Is(err, board.ErrHistoryDiverged):
			r.resyncFromEvent(sess, ev)
			return
		default:
			obslog.L().Error("opponent move rejected locally",
				zap.String("game_id", ev.GameID),
				zap.String("move", ev.MoveUCI),
				zap.Error(err),
			)
			r.resyncFromEvent(sess, ev)
			return
		}
	}
}

func (r *Reconciler) applyState(sess *board.Session, ev domain.GameEvent) {
	changed := false
	if moves := strings.Fields(ev.Moves); len(moves) > 0 || ev.Moves != "" {
		c, err := sess.SyncHistory(moves)
		if err != nil && !errors.Is(err, board.ErrHistoryDiverged) {
			obslog.L().Error("full state sync failed",
				zap.String("game_id", ev.GameID),
				zap.Error(err),
			)
			return
		}
		if errors.Is(err, board.ErrHistoryDiverged) {
			obslog.L().Warn("local history replaced by remote state",
				zap.String("game_id", ev.GameID),
			)
		}
		changed = c
	}
	if ev.Status.Terminal() {
		sess.MarkEnded(ev.Status, ev.Winner)
		changed = true
	}
	if changed {
		r.notify(ev.GameID)
	}
}

// resyncFromEvent repairs a diverged session, preferring the move list
// embedded in the event and falling back to querying the remote service.
func (r *Reconciler) resyncFromEvent(sess *board.Session, ev domain.GameEvent) {
	if ev.Moves != "" {
		r.applyState(sess, domain.GameEvent{GameID: ev.GameID, Kind: domain.EventGameState, Moves: ev.Moves, Status: ev.Status, Winner: ev.Winner})
		return
	}
	if r.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	games, err := r.client.ActiveGames(ctx, sess.AccountID())
	if err != nil {
		obslog.L().Error("resync query failed",
			zap.String("game_id", ev.GameID),
			zap.Error(err),
		)
		return
	}
	for _, g := range games {
		if g.GameID == sess.GameID() {
			r.applyState(sess, domain.GameEvent{
				GameID: g.GameID,
				Kind:   domain.EventGameState,
				Moves:  strings.Join(g.Moves, " "),
				Status: g.Status,
			})
			return
		}
	}
	// The game is gone remotely; without a result we can only close it out.
	sess.MarkEnded(domain.StatusUnknown, "")
	r.notify(ev.GameID)
}

// Resync pulls every active game for an account and reconciles the matching
// local sessions. Called after each stream (re)connect.
func (r *Reconciler) Resync(accountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	games, err := r.client.ActiveGames(ctx, accountID)
	if err != nil {
		obslog.L().Warn("resync on reconnect failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return
	}
	active := make(map[string]bool, len(games))
	for _, g := range games {
		active[g.GameID] = true
		sess, ok := r.registry.Get(g.GameID)
		if !ok {
			continue
		}
		r.applyState(sess, domain.GameEvent{
			GameID: g.GameID,
			Kind:   domain.EventGameState,
			Moves:  strings.Join(g.Moves, " "),
			Status: g.Status,
		})
	}
	// Sessions for this account that the remote no longer lists ended while
	// we were offline.
	for _, sess := range r.registry.All() {
		if sess.AccountID() != accountID || sess.Status().Terminal() || active[sess.GameID()] {
			continue
		}
		sess.MarkEnded(domain.StatusUnknown, "")
		r.notify(sess.GameID())
	}
}

func (r *Reconciler) notify(gameID string) {
	if r.onChange != nil {
		r.onChange(gameID)
	}
}
