package screen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/eink-labs/chess-hlss/internal/accounts"
	"github.com/eink-labs/chess-hlss/internal/board"
	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/remote"
	"github.com/eink-labs/chess-hlss/internal/store"
	"github.com/eink-labs/chess-hlss/internal/uicat"
)

type fakeRemote struct {
	mu          sync.Mutex
	rejectMoves bool
	failCreate  bool

	created  []remote.CreateGameParams
	moves    []string
	versions []int
	draws    []bool
	resigns  int
}

func (f *fakeRemote) CreateGame(_ context.Context, p remote.CreateGameParams) (*remote.GameInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, errors.New("remote down")
	}
	f.created = append(f.created, p)
	side := p.Side
	if side == domain.Random {
		side = domain.White
	}
	opponent := p.OpponentUsername
	if opponent == "" {
		opponent = "stranger"
	}
	id := fmt.Sprintf("game-%d", len(f.created))
	return &remote.GameInfo{GameID: id, Side: side, Opponent: opponent, Status: domain.StatusStarted}, nil
}

func (f *fakeRemote) SubmitMove(_ context.Context, _, _, uci string, version int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectMoves {
		return &remote.Rejection{Code: 409, Reason: "stale"}
	}
	f.moves = append(f.moves, uci)
	f.versions = append(f.versions, version)
	return nil
}

func (f *fakeRemote) HandleDraw(_ context.Context, _, _ string, accept bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draws = append(f.draws, accept)
	return nil
}

func (f *fakeRemote) Resign(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resigns++
	return nil
}

func (f *fakeRemote) ActiveGames(context.Context, string) ([]remote.GameInfo, error) {
	return nil, nil
}

type fixture struct {
	router   *Router
	client   *fakeRemote
	registry *board.Registry
	kv       store.Store
	renders  *int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := accounts.NewMemoryDirectory(
		[]domain.Account{{ID: "a", Username: "alice", Enabled: true, Default: true}},
		[]domain.Adversary{{ID: "1", AccountID: "a", Username: "rival"}},
	)
	cat, err := uicat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	client := &fakeRemote{}
	registry := board.NewRegistry()
	kv := store.NewMemoryStore()
	router := NewRouter(dir, client, registry, kv, cat, Config{
		ConfigureURL:  "https://example.test/configure",
		SubmitTimeout: time.Second,
		CreateTimeout: time.Second,
		SessionTTL:    time.Hour,
	})
	renders := 0
	router.SetRenderHook(func(string) { renders++ })
	return &fixture{router: router, client: client, registry: registry, kv: kv, renders: &renders}
}

func (fx *fixture) press(t *testing.T, buttons ...string) {
	t.Helper()
	for _, b := range buttons {
		if err := fx.router.HandleInput(context.Background(), "dev-1", b); err != nil {
			t.Fatalf("press %s: %v", b, err)
		}
	}
}

func (fx *fixture) startGame(t *testing.T) *board.Session {
	t.Helper()
	fx.press(t, "ENTER")
	sess, ok := fx.registry.Get("game-1")
	if !ok {
		t.Fatalf("expected game-1 registered")
	}
	return sess
}

func TestUnknownButtonRejected(t *testing.T) {
	fx := newFixture(t)
	err := fx.router.HandleInput(context.Background(), "dev-1", "BTN_99")
	if !errors.Is(err, ErrUnknownButton) {
		t.Fatalf("expected ErrUnknownButton, got %v", err)
	}
}

func TestFreshDeviceLandsOnNewMatch(t *testing.T) {
	fx := newFixture(t)
	desc, err := fx.router.Describe(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(desc.Lines) == 0 || !strings.Contains(desc.Lines[0], "alice") {
		t.Fatalf("expected account line, got %v", desc.Lines)
	}
}

func TestEnterCreatesGameAndEntersPlay(t *testing.T) {
	fx := newFixture(t)
	sess := fx.startGame(t)

	if sess.Side() != domain.White || sess.Opponent() != "stranger" {
		t.Fatalf("unexpected session: side=%s opponent=%s", sess.Side(), sess.Opponent())
	}
	desc, err := fx.router.Describe(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if desc.Board == nil {
		t.Fatalf("play screen must show the board")
	}
	if len(fx.client.created) != 1 || fx.client.created[0].AccountID != "a" {
		t.Fatalf("unexpected create params: %+v", fx.client.created)
	}
}

func TestCreateFailureShowsNoticeAndStays(t *testing.T) {
	fx := newFixture(t)
	fx.client.failCreate = true
	fx.press(t, "ENTER")

	desc, err := fx.router.Describe(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if desc.Notice == "" {
		t.Fatalf("expected failure notice")
	}
	if desc.Board != nil {
		t.Fatalf("device must stay on the match screen")
	}
}

func TestWizardMoveSubmitsWithVersion(t *testing.T) {
	fx := newFixture(t)
	sess := fx.startGame(t)

	// Nf3: knight, f-file, confirm.
	fx.press(t, "BTN_2", "BTN_6", "ENTER")

	if len(fx.client.moves) != 1 || fx.client.moves[0] != "g1f3" {
		t.Fatalf("expected g1f3 submitted, got %v", fx.client.moves)
	}
	if fx.client.versions[0] != 0 {
		t.Fatalf("expected version 0, got %d", fx.client.versions[0])
	}
	if sess.Version() != 1 {
		t.Fatalf("move must be committed after acceptance, version=%d", sess.Version())
	}
}

func TestRejectedMoveRevertsAndNotifies(t *testing.T) {
	fx := newFixture(t)
	sess := fx.startGame(t)
	fx.client.rejectMoves = true

	fx.press(t, "BTN_2", "BTN_6", "ENTER")

	if sess.Version() != 0 || sess.Pending() != "" {
		t.Fatalf("rejected move must be reverted, version=%d pending=%q", sess.Version(), sess.Pending())
	}
	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if desc.Notice == "" {
		t.Fatalf("expected rejection notice")
	}

	// The next input clears the notice.
	fx.press(t, "BTN_1")
	desc, _ = fx.router.Describe(context.Background(), "dev-1")
	if desc.Notice != "" {
		t.Fatalf("notice must be one-shot, got %q", desc.Notice)
	}
}

func TestConfigOverlayOpensAndConsumesOneEvent(t *testing.T) {
	fx := newFixture(t)
	fx.press(t, "BTN_8")

	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if desc.Overlay == nil || desc.Overlay.QRContent == "" {
		t.Fatalf("expected config overlay with QR")
	}

	// The dismissing press does nothing else.
	fx.press(t, "ENTER")
	desc, _ = fx.router.Describe(context.Background(), "dev-1")
	if desc.Overlay != nil {
		t.Fatalf("overlay must close")
	}
	if desc.Board != nil {
		t.Fatalf("the dismissing ENTER must not start a match")
	}
}

func TestOverlayBlockedWhileWizardBindsBtn8(t *testing.T) {
	fx := newFixture(t)
	fx.startGame(t)

	// At the file step BTN_8 selects the h-file, not the overlay.
	fx.press(t, "BTN_1", "BTN_8")
	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if desc.Overlay != nil {
		t.Fatalf("overlay must not open while the wizard binds BTN_8")
	}
}

func TestOpponentMoveDiscardsWizardAndDrawsArrow(t *testing.T) {
	fx := newFixture(t)
	sess := fx.startGame(t)

	fx.press(t, "BTN_2", "BTN_6", "ENTER") // our Nf3 committed

	if _, err := sess.ApplyRemoteMove(domain.GameEvent{
		GameID: "game-1", Kind: domain.EventOpponentMove, MoveUCI: "e7e5", Seq: 2,
	}); err != nil {
		t.Fatalf("apply remote: %v", err)
	}
	fx.router.GameChanged("game-1")

	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if desc.Board == nil || desc.Board.Arrow == nil {
		t.Fatalf("expected opponent move arrow")
	}
	// Back at our turn with a fresh wizard at the piece step.
	if len(desc.Buttons) == 0 || desc.Buttons[0].Label != "P" {
		t.Fatalf("expected fresh piece-step buttons, got %+v", desc.Buttons)
	}
}

func TestWaitingControlsDrawAndResign(t *testing.T) {
	fx := newFixture(t)
	sess := fx.startGame(t)
	fx.press(t, "BTN_2", "BTN_6", "ENTER") // commit a move, now waiting

	fx.press(t, "ENTER") // offer draw
	if len(fx.client.draws) != 1 || !fx.client.draws[0] {
		t.Fatalf("expected draw offer, got %v", fx.client.draws)
	}
	if sess.DrawOffer() != domain.DrawOfferSelf {
		t.Fatalf("expected own draw offer recorded")
	}

	fx.press(t, "ESC") // ask to resign
	fx.press(t, "ESC") // second ESC confirms
	if fx.client.resigns != 1 {
		t.Fatalf("expected resign call, got %d", fx.client.resigns)
	}
	if sess.Status() != domain.StatusResign {
		t.Fatalf("expected resigned session, got %s", sess.Status())
	}
}

func TestResignConfirmCanBeAborted(t *testing.T) {
	fx := newFixture(t)
	fx.startGame(t)
	fx.press(t, "BTN_2", "BTN_6", "ENTER")

	fx.press(t, "ESC", "ENTER") // ask, then any other button aborts
	if fx.client.resigns != 0 {
		t.Fatalf("aborted confirmation must not resign")
	}
	if len(fx.client.draws) != 0 {
		t.Fatalf("the aborting press must have no side effects, draws=%v", fx.client.draws)
	}
}

func TestResignPromptClosesOnUnrelatedButton(t *testing.T) {
	fx := newFixture(t)
	fx.startGame(t)
	fx.press(t, "BTN_2", "BTN_6", "ENTER") // committed move, now waiting

	// ESC arms the prompt, BTN_1 closes it without side effects, and the
	// following ENTER is back to its waiting-mode meaning of offering a draw.
	fx.press(t, "ESC", "BTN_1", "ENTER")
	if fx.client.resigns != 0 {
		t.Fatalf("no resign may be sent, got %d", fx.client.resigns)
	}
	if len(fx.client.draws) != 1 || !fx.client.draws[0] {
		t.Fatalf("ENTER after the prompt closed must offer a draw, got %v", fx.client.draws)
	}
}

func TestEscWithEmptyWizardIsNoOp(t *testing.T) {
	fx := newFixture(t)
	fx.startGame(t)

	// Nothing is selected yet, so there is nothing to cancel and nothing to
	// confirm.
	fx.press(t, "ESC", "ENTER")
	if fx.client.resigns != 0 {
		t.Fatalf("ESC at the piece step must not arm the resign prompt")
	}
	if len(fx.client.moves) != 0 {
		t.Fatalf("no move may be submitted, got %v", fx.client.moves)
	}
	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if len(desc.Buttons) == 0 || desc.Buttons[0].Label != "P" {
		t.Fatalf("expected the piece step untouched, got %+v", desc.Buttons)
	}
}

func TestConfirmPreviewsOptimisticPosition(t *testing.T) {
	fx := newFixture(t)
	fx.startGame(t)

	fx.press(t, "BTN_2", "BTN_6") // Nf3 waiting at confirm
	desc, err := fx.router.Describe(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if desc.Board == nil || desc.Board.Arrow == nil {
		t.Fatalf("confirm must draw the move arrow")
	}
	if desc.Board.Arrow.From != nchess.G1 || desc.Board.Arrow.To != nchess.F3 {
		t.Fatalf("unexpected arrow %s -> %s", desc.Board.Arrow.From, desc.Board.Arrow.To)
	}
	if p := desc.Board.Board.Piece(nchess.F3); p.Type() != nchess.Knight {
		t.Fatalf("board must preview the knight on f3, got %v", p)
	}
	if len(fx.client.moves) != 0 {
		t.Fatalf("nothing may be submitted before ENTER, got %v", fx.client.moves)
	}
}

func TestGameOverEnterReturnsToNewMatch(t *testing.T) {
	fx := newFixture(t)
	sess := fx.startGame(t)

	sess.MarkEnded(domain.StatusMate, domain.White)
	fx.router.GameChanged("game-1")

	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if len(desc.Lines) == 0 || !strings.Contains(strings.Join(desc.Lines, " "), "Checkmate") {
		t.Fatalf("expected end-of-game lines, got %v", desc.Lines)
	}

	fx.press(t, "ENTER")
	desc, _ = fx.router.Describe(context.Background(), "dev-1")
	if desc.Board != nil {
		t.Fatalf("expected return to the match screen")
	}
	if _, ok := fx.registry.Get("game-1"); ok {
		t.Fatalf("finished game must leave the registry")
	}
}

func TestRestartRestoresPlaySession(t *testing.T) {
	fx := newFixture(t)
	fx.startGame(t)
	fx.press(t, "BTN_2", "BTN_6", "ENTER")

	// A new router over the same store simulates a process restart.
	dir := accounts.NewMemoryDirectory(
		[]domain.Account{{ID: "a", Username: "alice", Enabled: true, Default: true}}, nil)
	cat, _ := uicat.New("")
	registry := board.NewRegistry()
	router2 := NewRouter(dir, fx.client, registry, fx.kv, cat, Config{SessionTTL: time.Hour})

	if err := router2.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	sess, ok := registry.Get("game-1")
	if !ok {
		t.Fatalf("expected restored session in the registry")
	}
	if sess.Version() != 1 {
		t.Fatalf("expected restored history, version=%d", sess.Version())
	}
	desc, err := router2.Describe(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if desc.Board == nil {
		t.Fatalf("restored device must land back on the play screen")
	}
}

func TestRestartRestoresMatchSelection(t *testing.T) {
	fx := newFixture(t)
	fx.press(t, "BTN_2") // play as black
	fx.press(t, "BTN_3") // pick the configured rival

	dir := accounts.NewMemoryDirectory(
		[]domain.Account{{ID: "a", Username: "alice", Enabled: true, Default: true}},
		[]domain.Adversary{{ID: "1", AccountID: "a", Username: "rival"}},
	)
	cat, _ := uicat.New("")
	router2 := NewRouter(dir, fx.client, board.NewRegistry(), fx.kv, cat, Config{SessionTTL: time.Hour})
	if err := router2.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	desc, err := router2.Describe(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	joined := strings.Join(desc.Lines, "\n")
	if !strings.Contains(joined, "Black") || !strings.Contains(joined, "rival") {
		t.Fatalf("selection not restored, lines: %v", desc.Lines)
	}
}

func TestHighlightLeavesPlayAndDiscardsWizard(t *testing.T) {
	fx := newFixture(t)
	fx.startGame(t)

	// Mid-wizard at the file step; leaving the screen silently discards it.
	fx.press(t, "BTN_2", "HL_RIGHT")
	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if desc.Board != nil {
		t.Fatalf("expected the match screen after cycling away")
	}

	// Coming back starts over at the piece step.
	fx.press(t, "HL_RIGHT")
	desc, _ = fx.router.Describe(context.Background(), "dev-1")
	if desc.Board == nil {
		t.Fatalf("expected the play screen after cycling back")
	}
	if len(desc.Buttons) == 0 || desc.Buttons[0].Label != "P" {
		t.Fatalf("expected a fresh wizard at the piece step, got %+v", desc.Buttons)
	}
}

func TestHighlightCyclesAcrossGames(t *testing.T) {
	fx := newFixture(t)
	fx.startGame(t)

	// Back to the match screen and start a second game.
	fx.press(t, "HL_LEFT", "ENTER")
	if _, ok := fx.registry.Get("game-2"); !ok {
		t.Fatalf("expected a second game")
	}

	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if !strings.Contains(desc.Title, "[2/2]") {
		t.Fatalf("expected the second game on screen, title %q", desc.Title)
	}

	// Forward wraps through the match screen back to the first game.
	fx.press(t, "HL_RIGHT")
	desc, _ = fx.router.Describe(context.Background(), "dev-1")
	if desc.Board != nil {
		t.Fatalf("expected the match screen between wraps")
	}
	fx.press(t, "HL_RIGHT")
	desc, _ = fx.router.Describe(context.Background(), "dev-1")
	if !strings.Contains(desc.Title, "[1/2]") {
		t.Fatalf("expected the first game, title %q", desc.Title)
	}
}

func TestHighlightInertWithoutGames(t *testing.T) {
	fx := newFixture(t)
	fx.press(t, "HL_LEFT")
	desc, _ := fx.router.Describe(context.Background(), "dev-1")
	if desc.Board != nil {
		t.Fatalf("cycling with no games must stay on the match screen")
	}
}
