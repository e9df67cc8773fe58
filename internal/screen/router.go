// Package screen owns the per-terminal session: which screen the device is
// on, the live board sessions, and the move wizard. Every button press enters
// through the Router and leaves as an updated screen description.
package screen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eink-labs/chess-hlss/internal/accounts"
	"github.com/eink-labs/chess-hlss/internal/board"
	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/newmatch"
	"github.com/eink-labs/chess-hlss/internal/obslog"
	"github.com/eink-labs/chess-hlss/internal/remote"
	"github.com/eink-labs/chess-hlss/internal/rules"
	"github.com/eink-labs/chess-hlss/internal/store"
	"github.com/eink-labs/chess-hlss/internal/uicat"
	"github.com/eink-labs/chess-hlss/internal/wizard"
)

var ErrUnknownButton = errors.New("unknown button")

// deviceState is the persisted slice of a device session. Board histories are
// stored separately under their game keys.
type deviceState struct {
	Screen  domain.Screen     `json:"screen"`
	GameIDs []string          `json:"game_ids,omitempty"`
	Cursor  int               `json:"cursor,omitempty"`
	Match   *newmatch.Memento `json:"match,omitempty"`
}

// session is the in-memory state of one terminal. The highlight buttons move
// a cursor over slot 0 (the match screen) followed by one slot per ongoing
// game, so several correspondence games can share one device.
type session struct {
	mu sync.Mutex

	id     string
	screen domain.Screen

	match  *newmatch.Controller
	games  []string
	cursor int

	wiz *wizard.Wizard

	overlay       bool
	resignConfirm bool
	notice        string
	lastMove      map[string]string
}

// Config carries the knobs the router needs from the app configuration.
type Config struct {
	ConfigureURL  string
	SubmitTimeout time.Duration
	CreateTimeout time.Duration
	SessionTTL    time.Duration
}

// Router maps device inputs onto sessions and sessions onto screens.
type Router struct {
	mu      sync.Mutex
	devices map[string]*session
	byGame  map[string]string

	dir      accounts.Directory
	client   remote.Client
	registry *board.Registry
	kv       store.Store
	cat      *uicat.Catalog
	cfg      Config

	onRender func(deviceID string)
}

func NewRouter(dir accounts.Directory, client remote.Client, registry *board.Registry, kv store.Store, cat *uicat.Catalog, cfg Config) *Router {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 15 * time.Second
	}
	return &Router{
		devices:  make(map[string]*session),
		byGame:   make(map[string]string),
		dir:      dir,
		client:   client,
		registry: registry,
		kv:       kv,
		cat:      cat,
		cfg:      cfg,
	}
}

// SetRenderHook registers the callback fired whenever a device's screen went
// stale and needs recomposing.
func (r *Router) SetRenderHook(fn func(deviceID string)) {
	r.onRender = fn
}

// HandleInput processes one button press from a terminal. Unknown devices
// get a fresh session on their first press.
func (r *Router) HandleInput(ctx context.Context, deviceID, rawButton string) error {
	b := domain.Button(strings.ToUpper(strings.TrimSpace(rawButton)))
	if !b.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownButton, rawButton)
	}

	ds, err := r.device(ctx, deviceID)
	if err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	// A notice lives until the next input, whatever that input is.
	ds.notice = ""

	if ds.overlay {
		ds.overlay = false
		r.render(deviceID)
		return nil
	}

	switch ds.screen {
	case domain.ScreenSetup:
		err = r.handleSetup(ctx, ds)
	case domain.ScreenNewMatch, domain.ScreenPlay:
		if b == domain.HLLeft || b == domain.HLRight {
			err = r.cycleScreen(ctx, ds, b)
			break
		}
		if ds.screen == domain.ScreenNewMatch {
			err = r.handleNewMatch(ctx, ds, b)
		} else {
			err = r.handlePlay(ctx, ds, b)
		}
	default:
		err = fmt.Errorf("device %s on unknown screen %q", deviceID, ds.screen)
	}
	if err != nil {
		return err
	}

	r.persist(ctx, ds)
	r.render(deviceID)
	return nil
}

// activeGame resolves the board session the cursor points at, nil when the
// device is not on a play screen or the session vanished.
func (r *Router) activeGame(ds *session) *board.Session {
	if ds.screen != domain.ScreenPlay || ds.cursor < 0 || ds.cursor >= len(ds.games) {
		return nil
	}
	sess, ok := r.registry.Get(ds.games[ds.cursor])
	if !ok {
		return nil
	}
	return sess
}

// cycleScreen moves the highlight cursor over the match screen and the play
// screens. Leaving a play screen mid-wizard discards the selection silently.
func (r *Router) cycleScreen(ctx context.Context, ds *session, b domain.Button) error {
	slots := 1 + len(ds.games)
	if slots == 1 && ds.screen == domain.ScreenNewMatch {
		return nil
	}

	cur := 0
	if ds.screen == domain.ScreenPlay {
		cur = 1 + ds.cursor
	}
	delta := 1
	if b == domain.HLLeft {
		delta = slots - 1
	}
	next := (cur + delta) % slots

	ds.wiz = nil
	ds.resignConfirm = false

	if next == 0 {
		if ds.match == nil {
			match, err := newmatch.NewController(ctx, r.dir)
			if err != nil {
				// No usable accounts; stay where we are.
				return nil
			}
			ds.match = match
		}
		ds.screen = domain.ScreenNewMatch
		return nil
	}
	ds.screen = domain.ScreenPlay
	ds.cursor = next - 1
	return nil
}

// device returns the session for deviceID, restoring or creating it.
func (r *Router) device(ctx context.Context, deviceID string) (*session, error) {
	r.mu.Lock()
	if ds, ok := r.devices[deviceID]; ok {
		r.mu.Unlock()
		return ds, nil
	}
	r.mu.Unlock()

	ds, err := r.restoreDevice(ctx, deviceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if ds == nil {
		ds = r.freshSession(ctx, deviceID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.devices[deviceID]; ok {
		return existing, nil
	}
	r.devices[deviceID] = ds
	for _, gameID := range ds.games {
		r.byGame[gameID] = deviceID
	}
	return ds, nil
}

func (r *Router) freshSession(ctx context.Context, deviceID string) *session {
	ds := &session{id: deviceID, screen: domain.ScreenNewMatch, lastMove: make(map[string]string)}
	match, err := newmatch.NewController(ctx, r.dir)
	if err != nil {
		// Without accounts the terminal can only show setup instructions.
		obslog.L().Warn("device has no usable accounts",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		ds.screen = domain.ScreenSetup
		return ds
	}
	ds.match = match
	return ds
}

func (r *Router) restoreDevice(ctx context.Context, deviceID string) (*session, error) {
	var state deviceState
	if err := r.kv.Get(ctx, deviceKey(deviceID), &state); err != nil {
		return nil, err
	}

	ds := &session{id: deviceID, screen: state.Screen, lastMove: make(map[string]string)}
	for _, gameID := range state.GameIDs {
		var snap board.Snapshot
		if err := r.kv.Get(ctx, gameKey(gameID), &snap); err != nil {
			obslog.L().Warn("stored game missing",
				zap.String("device_id", deviceID),
				zap.String("game_id", gameID),
				zap.Error(err),
			)
			continue
		}
		sess, err := board.Restore(snap)
		if err != nil {
			obslog.L().Error("stored game failed to replay",
				zap.String("game_id", gameID),
				zap.Error(err),
			)
			continue
		}
		r.registry.Put(sess)
		ds.games = append(ds.games, gameID)
	}

	ds.cursor = state.Cursor
	if ds.cursor < 0 || ds.cursor >= len(ds.games) {
		ds.cursor = 0
	}
	if ds.screen == domain.ScreenPlay && len(ds.games) == 0 {
		ds.screen = domain.ScreenNewMatch
	}
	if ds.screen != domain.ScreenSetup {
		match, err := newmatch.NewController(ctx, r.dir)
		if err != nil {
			if ds.screen == domain.ScreenNewMatch {
				ds.screen = domain.ScreenSetup
			}
		} else {
			ds.match = match
			if state.Match != nil {
				if rerr := match.RestoreMemento(ctx, *state.Match); rerr != nil {
					obslog.L().Warn("match selection restore failed",
						zap.String("device_id", deviceID),
						zap.Error(rerr),
					)
				}
			}
		}
	}
	return ds, nil
}

// Restore reloads every persisted device session, typically at startup so
// boards survive a service restart.
func (r *Router) Restore(ctx context.Context) error {
	keys, err := r.kv.Keys(ctx, "device:*")
	if err != nil {
		return err
	}
	for _, k := range keys {
		deviceID := strings.TrimPrefix(k, "device:")
		if _, err := r.device(ctx, deviceID); err != nil {
			obslog.L().Warn("device restore failed",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (r *Router) handleSetup(ctx context.Context, ds *session) error {
	// Any press retries account discovery.
	match, err := newmatch.NewController(ctx, r.dir)
	if err != nil {
		if errors.Is(err, accounts.ErrNoAccounts) {
			return nil
		}
		return err
	}
	ds.match = match
	ds.screen = domain.ScreenNewMatch
	return nil
}

func (r *Router) handleNewMatch(ctx context.Context, ds *session, b domain.Button) error {
	if b == domain.Btn8 {
		ds.overlay = true
		return nil
	}
	outcome, err := ds.match.Press(ctx, b)
	if err != nil {
		return err
	}
	if outcome != newmatch.OutcomeStart {
		return nil
	}
	return r.createGame(ctx, ds)
}

func (r *Router) createGame(ctx context.Context, ds *session) error {
	sel := ds.match.Selection()
	params := remote.CreateGameParams{
		AccountID: sel.Account.ID,
		Side:      sel.Side,
	}
	if sel.Adversary != nil {
		params.OpponentUsername = sel.Adversary.Username
	}

	createCtx, cancel := context.WithTimeout(ctx, r.cfg.CreateTimeout)
	defer cancel()
	info, err := r.client.CreateGame(createCtx, params)
	if err != nil {
		obslog.L().Error("create game failed",
			zap.String("device_id", ds.id),
			zap.String("account_id", sel.Account.ID),
			zap.Error(err),
		)
		ds.notice = r.cat.Text("new_match.create_failed", nil)
		return nil
	}

	sess, err := board.NewSession(info.GameID, sel.Account.ID, info.Side, info.Opponent, info.Moves)
	if err != nil {
		return fmt.Errorf("start session for game %s: %w", info.GameID, err)
	}
	r.registry.Put(sess)
	ds.games = append(ds.games, info.GameID)
	ds.cursor = len(ds.games) - 1
	ds.screen = domain.ScreenPlay
	ds.wiz = nil

	r.mu.Lock()
	r.byGame[info.GameID] = ds.id
	r.mu.Unlock()

	obslog.L().Info("game created",
		zap.String("device_id", ds.id),
		zap.String("game_id", info.GameID),
		zap.String("side", string(info.Side)),
		zap.String("opponent", info.Opponent),
	)
	return nil
}

// closeGame drops the cursor's finished game and returns the device to the
// match screen. Other ongoing games keep their slots.
func (r *Router) closeGame(ctx context.Context, ds *session) error {
	if ds.cursor < 0 || ds.cursor >= len(ds.games) {
		ds.screen = domain.ScreenNewMatch
		return nil
	}
	gameID := ds.games[ds.cursor]
	r.registry.Delete(gameID)
	if err := r.kv.Delete(ctx, gameKey(gameID)); err != nil {
		obslog.L().Warn("delete stored game failed", zap.String("game_id", gameID), zap.Error(err))
	}
	r.mu.Lock()
	delete(r.byGame, gameID)
	r.mu.Unlock()

	ds.games = append(ds.games[:ds.cursor], ds.games[ds.cursor+1:]...)
	delete(ds.lastMove, gameID)
	if ds.cursor >= len(ds.games) {
		ds.cursor = 0
	}
	ds.wiz = nil
	ds.resignConfirm = false
	ds.screen = domain.ScreenNewMatch
	if ds.match == nil {
		match, err := newmatch.NewController(ctx, r.dir)
		if err != nil {
			ds.screen = domain.ScreenSetup
			return nil
		}
		ds.match = match
	}
	return nil
}

func (r *Router) persist(ctx context.Context, ds *session) {
	state := deviceState{
		Screen:  ds.screen,
		GameIDs: append([]string(nil), ds.games...),
		Cursor:  ds.cursor,
	}
	if ds.match != nil {
		m := ds.match.Memento()
		state.Match = &m
	}
	if err := r.kv.Set(ctx, deviceKey(ds.id), state, r.cfg.SessionTTL); err != nil {
		obslog.L().Warn("persist device failed", zap.String("device_id", ds.id), zap.Error(err))
	}
	for _, gameID := range ds.games {
		sess, ok := r.registry.Get(gameID)
		if !ok {
			continue
		}
		if err := r.kv.Set(ctx, gameKey(gameID), sess.Snapshot(), r.cfg.SessionTTL); err != nil {
			obslog.L().Warn("persist game failed", zap.String("game_id", gameID), zap.Error(err))
		}
	}
}

// GameChanged is wired as the reconciler's change listener. It drops a stale
// wizard when the changed game is on screen, surfaces notices, and schedules
// a redraw for the owning device.
func (r *Router) GameChanged(gameID string) {
	r.mu.Lock()
	deviceID, ok := r.byGame[gameID]
	var ds *session
	if ok {
		ds = r.devices[deviceID]
	}
	r.mu.Unlock()
	if ds == nil {
		return
	}

	sess, ok := r.registry.Get(gameID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ds.mu.Lock()
	if moves := sess.History(); len(moves) > 0 {
		ds.lastMove[gameID] = moves[len(moves)-1]
	}
	if onScreen := r.activeGame(ds); onScreen != nil && onScreen.GameID() == gameID {
		// Remote change invalidates any selection built on the old position.
		ds.wiz = nil
		if sess.DrawOffer() == domain.DrawOfferOpponent && !sess.Status().Terminal() {
			ds.notice = r.cat.Text("play.notice.draw_offered", map[string]string{"Opponent": sess.Opponent()})
		}
	}
	r.persist(ctx, ds)
	ds.mu.Unlock()

	r.render(deviceID)
}

func (r *Router) render(deviceID string) {
	if r.onRender != nil {
		r.onRender(deviceID)
	}
}

// ensureWizard builds the wizard for the current position when it is the
// player's move and none is active.
func (r *Router) ensureWizard(ds *session, game *board.Session) {
	if ds.wiz != nil || game == nil || !game.OurTurn() || game.Pending() != "" {
		return
	}
	ds.wiz = wizard.New(rules.LegalMoves(game.Game()))
}

func deviceKey(id string) string { return "device:" + strings.TrimSpace(id) }
func gameKey(id string) string   { return "game:" + strings.TrimSpace(id) }
