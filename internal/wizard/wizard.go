// Package wizard turns a small fixed button set into a chess move. The
// player narrows the legal move list step by step: piece, then file, then
// rank, then an explicit pick when several moves still match, then a final
// confirmation. Every step only ever offers buttons that lead to at least
// one legal move; everything else is inert.
package wizard

import (
	nchess "github.com/corentings/chess/v2"

	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/rules"
)

// Step identifies the wizard's current screen.
type Step int

const (
	StepPiece Step = iota
	StepFile
	StepRank
	StepDisambiguate
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepPiece:
		return "piece"
	case StepFile:
		return "file"
	case StepRank:
		return "rank"
	case StepDisambiguate:
		return "disambiguate"
	case StepConfirm:
		return "confirm"
	}
	return "unknown"
}

// Effect tells the caller what a button press did.
type Effect int

const (
	// EffectNone means the button was inert; nothing changed.
	EffectNone Effect = iota
	// EffectUpdated means the wizard state changed and the screen is stale.
	EffectUpdated
	// EffectConfirmed means a move was confirmed; Result.Move is set.
	EffectConfirmed
	// EffectCancelled means the player backed out of the whole wizard.
	EffectCancelled
)

// Result is the outcome of one button press.
type Result struct {
	Effect Effect
	Move   *rules.Move
}

// Hint describes one numbered button for the frame composer.
type Hint struct {
	Button  domain.Button
	Label   string
	Enabled bool
}

// disambPageSize leaves BTN_8 free as the pager when the candidate list does
// not fit on one row.
const disambPageSize = 7

var pieceForButton = map[domain.Button]nchess.PieceType{
	domain.Btn1: nchess.Pawn,
	domain.Btn2: nchess.Knight,
	domain.Btn3: nchess.Bishop,
	domain.Btn4: nchess.Rook,
	domain.Btn5: nchess.Queen,
	domain.Btn6: nchess.King,
}

var pieceLabels = []struct {
	button domain.Button
	label  string
	piece  nchess.PieceType
}{
	{domain.Btn1, "P", nchess.Pawn},
	{domain.Btn2, "N", nchess.Knight},
	{domain.Btn3, "B", nchess.Bishop},
	{domain.Btn4, "R", nchess.Rook},
	{domain.Btn5, "Q", nchess.Queen},
	{domain.Btn6, "K", nchess.King},
}

// state is one level of the narrowing stack. ESC pops a level.
type state struct {
	step  Step
	cands []rules.Move
	files []nchess.File
	ranks []nchess.Rank
	page  int
}

// Wizard narrows the cached legal move list of one position. It is built
// fresh each time it becomes the player's turn and thrown away afterwards,
// so the legal list can never go stale inside it.
type Wizard struct {
	legal []rules.Move
	stack []state
}

// New starts a wizard over the legal moves of the current position.
func New(legal []rules.Move) *Wizard {
	return &Wizard{
		legal: legal,
		stack: []state{{step: StepPiece, cands: legal}},
	}
}

func (w *Wizard) cur() *state { return &w.stack[len(w.stack)-1] }

// Step returns the current step.
func (w *Wizard) Step() Step { return w.cur().step }

// Selected returns the confirmed-or-pending candidate at the confirm step.
func (w *Wizard) Selected() *rules.Move {
	cur := w.cur()
	if cur.step != StepConfirm || len(cur.cands) != 1 {
		return nil
	}
	mv := cur.cands[0]
	return &mv
}

// BindsButton reports whether the current step consumes the button. The
// screen router uses this to decide when BTN_8 is free for global chrome.
func (w *Wizard) BindsButton(b domain.Button) bool {
	idx := b.Index()
	if idx == 0 {
		return b == domain.Enter || b == domain.Esc
	}
	switch cur := w.cur(); cur.step {
	case StepPiece:
		return idx <= 7
	case StepFile, StepRank:
		return true
	case StepDisambiguate:
		if len(cur.cands) > disambPageSize+1 {
			return true
		}
		return idx <= len(cur.cands)
	case StepConfirm:
		return false
	}
	return false
}

// Press feeds one button into the wizard.
func (w *Wizard) Press(b domain.Button) Result {
	if b == domain.Esc {
		return w.back()
	}
	switch w.cur().step {
	case StepPiece:
		return w.pressPiece(b)
	case StepFile:
		return w.pressFile(b)
	case StepRank:
		return w.pressRank(b)
	case StepDisambiguate:
		return w.pressDisambiguate(b)
	case StepConfirm:
		if b == domain.Enter {
			return Result{Effect: EffectConfirmed, Move: w.Selected()}
		}
	}
	return Result{Effect: EffectNone}
}

func (w *Wizard) back() Result {
	if len(w.stack) == 1 {
		return Result{Effect: EffectCancelled}
	}
	if w.cur().step == StepConfirm {
		// Backing out of a confirmation discards the whole selection, not
		// just the last narrowing step.
		w.stack = w.stack[:1]
		return Result{Effect: EffectUpdated}
	}
	w.stack = w.stack[:len(w.stack)-1]
	return Result{Effect: EffectUpdated}
}

func (w *Wizard) push(s state) Result {
	w.stack = append(w.stack, s)
	return Result{Effect: EffectUpdated}
}

// advance narrows to cands and picks the next step for them. An empty list
// means the selection chain broke underneath us; restart from the piece step.
func (w *Wizard) advance(cands []rules.Move, next Step) Result {
	switch len(cands) {
	case 0:
		w.stack = w.stack[:1]
		return Result{Effect: EffectUpdated}
	case 1:
		return w.push(state{step: StepConfirm, cands: cands})
	}
	switch next {
	case StepFile:
		return w.push(state{step: StepFile, cands: cands, files: rules.Files(cands)})
	case StepRank:
		return w.push(state{step: StepRank, cands: cands, ranks: rules.Ranks(cands)})
	default:
		sorted := append([]rules.Move(nil), cands...)
		rules.SortCandidates(sorted)
		return w.push(state{step: StepDisambiguate, cands: sorted})
	}
}

func (w *Wizard) pressPiece(b domain.Button) Result {
	if b == domain.Btn7 {
		castles := castleMenu(w.legal)
		if len(castles) == 0 {
			return Result{Effect: EffectNone}
		}
		if len(castles) == 1 {
			return w.push(state{step: StepConfirm, cands: castles})
		}
		return w.push(state{step: StepDisambiguate, cands: castles})
	}
	piece, ok := pieceForButton[b]
	if !ok {
		return Result{Effect: EffectNone}
	}
	cands := rules.FilterPiece(w.legal, piece)
	if len(cands) == 0 {
		return Result{Effect: EffectNone}
	}
	return w.advance(cands, StepFile)
}

func (w *Wizard) pressFile(b domain.Button) Result {
	idx := b.Index()
	if idx == 0 {
		return Result{Effect: EffectNone}
	}
	file := nchess.File(idx - 1)
	cur := w.cur()
	if !containsFile(cur.files, file) {
		return Result{Effect: EffectNone}
	}
	return w.advance(rules.FilterFile(cur.cands, file), StepRank)
}

func (w *Wizard) pressRank(b domain.Button) Result {
	idx := b.Index()
	if idx == 0 {
		return Result{Effect: EffectNone}
	}
	rank := nchess.Rank(idx - 1)
	cur := w.cur()
	if !containsRank(cur.ranks, rank) {
		return Result{Effect: EffectNone}
	}
	return w.advance(rules.FilterRank(cur.cands, rank), StepDisambiguate)
}

func (w *Wizard) pressDisambiguate(b domain.Button) Result {
	cur := w.cur()
	paged := len(cur.cands) > disambPageSize+1
	size := len(cur.cands)
	if paged {
		size = disambPageSize
	}
	if paged && b == domain.Btn8 {
		pages := (len(cur.cands) + disambPageSize - 1) / disambPageSize
		cur.page = (cur.page + 1) % pages
		return Result{Effect: EffectUpdated}
	}
	idx := b.Index()
	if idx == 0 || idx > size {
		return Result{Effect: EffectNone}
	}
	pos := cur.page*disambPageSize + idx - 1
	if pos >= len(cur.cands) {
		return Result{Effect: EffectNone}
	}
	return w.push(state{step: StepConfirm, cands: []rules.Move{cur.cands[pos]}})
}

// Hints describes the numbered buttons for the current step.
func (w *Wizard) Hints() []Hint {
	cur := w.cur()
	switch cur.step {
	case StepPiece:
		hints := make([]Hint, 0, 7)
		for _, p := range pieceLabels {
			hints = append(hints, Hint{
				Button:  p.button,
				Label:   p.label,
				Enabled: len(rules.FilterPiece(w.legal, p.piece)) > 0,
			})
		}
		hints = append(hints, Hint{
			Button:  domain.Btn7,
			Label:   "O-O",
			Enabled: len(rules.CastleMoves(w.legal)) > 0,
		})
		return hints
	case StepFile:
		hints := make([]Hint, 0, 8)
		for i := 0; i < 8; i++ {
			f := nchess.File(i)
			hints = append(hints, Hint{
				Button:  domain.NumberedButtons[i],
				Label:   f.String(),
				Enabled: containsFile(cur.files, f),
			})
		}
		return hints
	case StepRank:
		hints := make([]Hint, 0, 8)
		for i := 0; i < 8; i++ {
			r := nchess.Rank(i)
			hints = append(hints, Hint{
				Button:  domain.NumberedButtons[i],
				Label:   r.String(),
				Enabled: containsRank(cur.ranks, r),
			})
		}
		return hints
	case StepDisambiguate:
		paged := len(cur.cands) > disambPageSize+1
		size := len(cur.cands)
		if paged {
			size = disambPageSize
		}
		hints := make([]Hint, 0, 8)
		for i := 0; i < size; i++ {
			pos := cur.page*disambPageSize + i
			h := Hint{Button: domain.NumberedButtons[i]}
			if pos < len(cur.cands) {
				h.Label = cur.cands[pos].SAN
				h.Enabled = true
			}
			hints = append(hints, h)
		}
		if paged {
			hints = append(hints, Hint{Button: domain.Btn8, Label: "...", Enabled: true})
		}
		return hints
	}
	return nil
}

// castleMenu orders castling moves kingside first.
func castleMenu(legal []rules.Move) []rules.Move {
	castles := rules.CastleMoves(legal)
	if len(castles) == 2 && castles[0].Queenside {
		castles[0], castles[1] = castles[1], castles[0]
	}
	return castles
}

func containsFile(files []nchess.File, f nchess.File) bool {
	for _, x := range files {
		if x == f {
			return true
		}
	}
	return false
}

func containsRank(ranks []nchess.Rank, r nchess.Rank) bool {
	for _, x := range ranks {
		if x == r {
			return true
		}
	}
	return false
}
