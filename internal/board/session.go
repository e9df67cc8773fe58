package board

import (
	"errors"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/rules"
)

var (
	ErrGameOver        = errors.New("game is over")
	ErrSubmitInFlight  = errors.New("a move submission is in flight")
	ErrPendingMove     = errors.New("an unconfirmed move is pending")
	ErrNoPendingMove   = errors.New("no pending move")
	ErrHistoryDiverged = errors.New("remote history diverged from local history")
)

// Session is the authoritative local state of one game. The committed move
// history is the source of truth; the position is always replayed from it.
// A pending move is an optimistic local move that has been shown on the
// display but not yet acknowledged by the remote service.
type Session struct {
	mu sync.Mutex

	gameID    string
	accountID string
	side      domain.Color
	opponent  string

	status    domain.GameStatus
	winner    domain.Color
	drawOffer domain.DrawOffer

	history []string
	game    *nchess.Game

	pending    string
	submitting bool

	updatedAt time.Time
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	GameID    string            `json:"game_id"`
	AccountID string            `json:"account_id"`
	Side      domain.Color      `json:"side"`
	Opponent  string            `json:"opponent"`
	Status    domain.GameStatus `json:"status"`
	Winner    domain.Color      `json:"winner,omitempty"`
	DrawOffer domain.DrawOffer  `json:"draw_offer,omitempty"`
	Moves     []string          `json:"moves"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession builds a session by replaying the given history.
func NewSession(gameID, accountID string, side domain.Color, opponent string, moves []string) (*Session, error) {
	game, err := rules.Replay(moves)
	if err != nil {
		return nil, err
	}
	return &Session{
		gameID:    gameID,
		accountID: accountID,
		side:      side,
		opponent:  opponent,
		status:    domain.StatusStarted,
		history:   append([]string(nil), moves...),
		game:      game,
		updatedAt: time.Now(),
	}, nil
}

// Restore rebuilds a session from a snapshot.
func Restore(snap Snapshot) (*Session, error) {
	s, err := NewSession(snap.GameID, snap.AccountID, snap.Side, snap.Opponent, snap.Moves)
	if err != nil {
		return nil, err
	}
	s.status = snap.Status
	s.winner = snap.Winner
	s.drawOffer = snap.DrawOffer
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
	return s, nil
}

// Snapshot captures the committed state for persistence. A pending move is
// intentionally excluded; it is re-derived or lost on restart.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		GameID:    s.gameID,
		AccountID: s.accountID,
		Side:      s.side,
		Opponent:  s.opponent,
		Status:    s.status,
		Winner:    s.winner,
		DrawOffer: s.drawOffer,
		Moves:     append([]string(nil), s.history...),
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) GameID() string          { return s.gameID }
func (s *Session) AccountID() string       { return s.accountID }
func (s *Session) Side() domain.Color      { return s.side }
func (s *Session) Opponent() string        { return s.opponent }

// Version is the number of committed plies. It is sent with every move
// submission so the remote side can reject stale moves.
func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *Session) Status() domain.GameStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Winner() domain.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

func (s *Session) DrawOffer() domain.DrawOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawOffer
}

// History returns a copy of the committed move list.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// Pending returns the optimistic move awaiting remote confirmation, or "".
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Game returns a clone of the committed game.
func (s *Session) Game() *nchess.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Clone()
}

// DisplayGame returns a clone with the pending move applied on top, which is
// what the board on the screen should show.
func (s *Session) DisplayGame() *nchess.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := s.game.Clone()
	if s.pending != "" {
		// The pending move was legal when staged; a failure here means the
		// committed history moved underneath it and the caller will revert.
		_ = rules.Apply(clone, s.pending)
	}
	return clone
}

// OurTurn reports whether the player to move is the local side, ignoring any
// pending move.
func (s *Session) OurTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	turn := s.game.Position().Turn()
	return (turn == nchess.White && s.side == domain.White) ||
		(turn == nchess.Black && s.side == domain.Black)
}

// StagePending records an optimistic local move before submission.
func (s *Session) StagePending(uci string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrGameOver
	}
	if s.pending != "" {
		return ErrPendingMove
	}
	s.pending = uci
	s.submitting = true
	s.updatedAt = time.Now()
	return nil
}

// CommitPending moves the pending move into the committed history after the
// remote service accepted it.
func (s *Session) CommitPending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == "" {
		return ErrNoPendingMove
	}
	if err := rules.Apply(s.game, s.pending); err != nil {
		s.pending = ""
		s.submitting = false
		return err
	}
	s.history = append(s.history, s.pending)
	s.pending = ""
	s.submitting = false
	s.updatedAt = time.Now()
	return nil
}

// RevertPending discards the pending move after a remote rejection. The
// display falls back to the committed position.
func (s *Session) RevertPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = ""
	s.submitting = false
	s.updatedAt = time.Now()
}

// ApplyRemoteMove applies an opponent move event. It is idempotent: events
// whose sequence is at or below the committed ply count are dropped. Events
// arriving while a submission is in flight are refused with
// ErrSubmitInFlight so the caller can retry once the submission settles.
func (s *Session) ApplyRemoteMove(ev domain.GameEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false, nil
	}
	if s.submitting {
		return false, ErrSubmitInFlight
	}
	if ev.Seq > 0 && ev.Seq <= len(s.history) {
		return false, nil
	}
	if ev.Seq > 0 && ev.Seq != len(s.history)+1 {
		return false, ErrHistoryDiverged
	}
	if err := rules.Apply(s.game, ev.MoveUCI); err != nil {
		return false, err
	}
	s.history = append(s.history, ev.MoveUCI)
	s.updatedAt = time.Now()
	return true, nil
}

// SyncHistory reconciles the session against the full remote move list, used
// after a stream reconnect or game rediscovery. The longer consistent list
// wins; a remote list that contradicts committed local moves replaces them,
// because the remote service is authoritative for accepted moves.
func (s *Session) SyncHistory(moves []string) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(moves) <= len(s.history) && prefixMatches(s.history, moves) {
		return false, nil
	}
	game, err := rules.Replay(moves)
	if err != nil {
		return false, err
	}
	diverged := !prefixMatches(moves, s.history)
	s.game = game
	s.history = append([]string(nil), moves...)
	s.pending = ""
	s.submitting = false
	s.updatedAt = time.Now()
	if diverged {
		return true, ErrHistoryDiverged
	}
	return true, nil
}

// SetDrawOffer records who has an open draw offer.
func (s *Session) SetDrawOffer(offer domain.DrawOffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawOffer = offer
	s.updatedAt = time.Now()
}

// MarkEnded finalizes the session with a terminal status. Later events for
// the game become no-ops.
func (s *Session) MarkEnded(status domain.GameStatus, winner domain.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	if !status.Terminal() {
		status = domain.StatusUnknown
	}
	s.status = status
	s.winner = winner
	s.pending = ""
	s.submitting = false
	s.drawOffer = domain.DrawOfferNone
	s.updatedAt = time.Now()
}

// prefixMatches reports whether shorter is a prefix of longer.
func prefixMatches(longer, shorter []string) bool {
	if len(shorter) > len(longer) {
		longer, shorter = shorter, longer
	}
	for i := range shorter {
		if longer[i] != shorter[i] {
			return false
		}
	}
	return true
}
