package screen

import (
	"context"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/eink-labs/chess-hlss/internal/board"
	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/frame"
	"github.com/eink-labs/chess-hlss/internal/rules"
)

// Describe builds the screen description for a device's current state. The
// gateway calls it from the render loop after every state change.
func (r *Router) Describe(ctx context.Context, deviceID string) (frame.ScreenDescription, error) {
	ds, err := r.device(ctx, deviceID)
	if err != nil {
		return frame.ScreenDescription{}, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	var desc frame.ScreenDescription
	switch ds.screen {
	case domain.ScreenSetup:
		desc = r.describeSetup()
	case domain.ScreenNewMatch:
		desc = r.describeNewMatch(ds)
	case domain.ScreenPlay:
		desc = r.describePlay(ds)
	}

	desc.Notice = ds.notice
	if ds.overlay {
		desc.Overlay = &frame.Overlay{
			Title:     r.cat.Text("overlay.config_title", nil),
			Lines:     []string{r.cat.Text("overlay.config_body", nil), r.cat.Text("overlay.dismiss", nil)},
			QRContent: r.cfg.ConfigureURL,
		}
	}
	return desc, nil
}

func (r *Router) describeSetup() frame.ScreenDescription {
	return frame.ScreenDescription{
		Title: r.cat.Text("setup.title", nil),
		Lines: []string{r.cat.Text("setup.body", nil), r.cat.Text("setup.hint", nil)},
		Overlay: &frame.Overlay{
			Title:     r.cat.Text("setup.title", nil),
			Lines:     []string{r.cat.Text("setup.body", nil)},
			QRContent: r.cfg.ConfigureURL,
		},
	}
}

func (r *Router) describeNewMatch(ds *session) frame.ScreenDescription {
	if ds.match == nil {
		return r.describeSetup()
	}
	sel := ds.match.Selection()

	opponentLine := r.cat.Text("new_match.adversary_open", nil)
	if sel.Adversary != nil {
		opponentLine = r.cat.Text("new_match.adversary", map[string]string{"Opponent": sel.Adversary.Label()})
	}

	return frame.ScreenDescription{
		Title: r.cat.Text("new_match.title", nil),
		Lines: []string{
			r.cat.Text("new_match.account", map[string]string{"Username": sel.Account.Username}),
			r.cat.Text("new_match.side", map[string]string{"Side": r.cat.Text("side."+string(sel.Side), nil)}),
			opponentLine,
			"",
			r.cat.Text("new_match.start", nil),
		},
		Buttons: []frame.ButtonHint{
			{Button: domain.Btn1, Label: "Acct", Enabled: true},
			{Button: domain.Btn2, Label: "Side", Enabled: true},
			{Button: domain.Btn3, Label: "Opp+", Enabled: true},
			{Button: domain.Btn4, Label: "Opp-", Enabled: true},
			{Button: domain.Btn8, Label: "Cfg", Enabled: true},
		},
	}
}

func (r *Router) describePlay(ds *session) frame.ScreenDescription {
	game := r.activeGame(ds)
	if game == nil {
		return frame.ScreenDescription{Title: r.cat.Text("new_match.title", nil)}
	}

	view := &frame.BoardView{
		Board:   game.DisplayGame().Position().Board(),
		Flipped: game.Side() == domain.Black,
	}
	if arrow := arrowFromUCI(ds.lastMove[game.GameID()]); arrow != nil {
		view.Arrow = arrow
	}
	if pending := game.Pending(); pending != "" {
		view.Arrow = arrowFromUCI(pending)
		if sq, ok := squareFromUCI(pending[2:]); ok {
			view.Marker = &sq
		}
	}

	title := fmt.Sprintf("%s vs %s (%s)", "You", game.Opponent(), game.Side())
	if len(ds.games) > 1 {
		title = fmt.Sprintf("[%d/%d] %s", ds.cursor+1, len(ds.games), title)
	}
	desc := frame.ScreenDescription{
		Title: title,
		Board: view,
	}

	switch {
	case game.Status().Terminal():
		desc.Lines = r.endedLines(game)
	case ds.resignConfirm:
		desc.Lines = []string{r.cat.Text("play.confirm_resign", nil)}
	case game.OurTurn() && game.Pending() == "":
		r.ensureWizard(ds, game)
		if sel := r.wizardSelection(ds); sel != nil {
			// The confirmation shows the position as if the move were played.
			preview := game.Game()
			if err := rules.Apply(preview, sel.UCI); err == nil {
				view.Board = preview.Position().Board()
			}
			view.Arrow = &frame.Arrow{From: sel.From, To: sel.To}
		}
		desc.Lines = r.wizardLines(ds)
		desc.Buttons = r.wizardButtons(ds)
	case game.Pending() != "":
		desc.Lines = []string{r.cat.Text("play.submitting", map[string]string{"SAN": game.Pending()})}
	default:
		desc.Lines = []string{
			r.cat.Text("play.wait", map[string]string{"Opponent": game.Opponent()}),
			"",
			r.cat.Text("play.controls", nil),
		}
		desc.Buttons = []frame.ButtonHint{{Button: domain.Btn8, Label: "Cfg", Enabled: true}}
	}
	return desc
}

func (r *Router) wizardSelection(ds *session) *rules.Move {
	if ds.wiz == nil {
		return nil
	}
	return ds.wiz.Selected()
}

func (r *Router) wizardLines(ds *session) []string {
	if ds.wiz == nil {
		return nil
	}
	key := "play.prompt." + ds.wiz.Step().String()
	if sel := ds.wiz.Selected(); sel != nil {
		return []string{r.cat.Text("play.prompt.confirm", map[string]string{"SAN": sel.SAN})}
	}
	return []string{r.cat.Text(key, nil)}
}

func (r *Router) wizardButtons(ds *session) []frame.ButtonHint {
	if ds.wiz == nil {
		return nil
	}
	hints := ds.wiz.Hints()
	out := make([]frame.ButtonHint, 0, len(hints)+1)
	bound := make(map[domain.Button]bool, len(hints))
	for _, h := range hints {
		out = append(out, frame.ButtonHint{Button: h.Button, Label: h.Label, Enabled: h.Enabled})
		bound[h.Button] = true
	}
	if !bound[domain.Btn8] && !ds.wiz.BindsButton(domain.Btn8) {
		out = append(out, frame.ButtonHint{Button: domain.Btn8, Label: "Cfg", Enabled: true})
	}
	return out
}

func (r *Router) endedLines(game *board.Session) []string {
	lines := []string{r.cat.Text("play.ended."+string(game.Status()), nil)}
	switch game.Winner() {
	case game.Side():
		lines = append(lines, r.cat.Text("play.ended.you_won", nil))
	case domain.White, domain.Black:
		lines = append(lines, r.cat.Text("play.ended.you_lost", nil))
	}
	lines = append(lines, "", r.cat.Text("play.ended.back", nil))
	return lines
}

// arrowFromUCI derives the last-move arrow from a UCI string.
func arrowFromUCI(uci string) *frame.Arrow {
	if len(uci) < 4 {
		return nil
	}
	from, okFrom := squareFromUCI(uci[:2])
	to, okTo := squareFromUCI(uci[2:4])
	if !okFrom || !okTo {
		return nil
	}
	return &frame.Arrow{From: from, To: to}
}

func squareFromUCI(s string) (nchess.Square, bool) {
	s = strings.ToLower(s)
	if len(s) < 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}
