package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove = errors.New("move is not legal in this position")
	ErrBadHistory  = errors.New("move history does not replay")
)

// Move is one legal move with its precomputed notations and origin metadata,
// enough for the wizard to filter without going back to the engine.
type Move struct {
	UCI       string
	SAN       string
	From      nchess.Square
	To        nchess.Square
	Piece     nchess.PieceType
	Promo     nchess.PieceType
	Kingside  bool
	Queenside bool
}

// Replay rebuilds a game from the start position by applying UCI moves in order.
// The committed history is the single source of truth for a position; FEN is
// derived, never stored authoritatively.
func Replay(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, mv := range moves {
		decoded, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrBadHistory, mv, err)
		}
		if err := game.Move(decoded, nil); err != nil {
			return nil, fmt.Errorf("%w: apply %s: %v", ErrBadHistory, mv, err)
		}
	}
	return game, nil
}

// LegalMoves returns every legal move in the game's current position. The
// slice ordering follows the engine's generation order and is stable for a
// given position.
func LegalMoves(game *nchess.Game) []Move {
	pos := game.Position()
	board := pos.Board()
	uciNotation := nchess.UCINotation{}
	sanNotation := nchess.AlgebraicNotation{}

	valid := game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for i := range valid {
		mv := &valid[i]
		piece := board.Piece(mv.S1())
		out = append(out, Move{
			UCI:       strings.ToLower(uciNotation.Encode(pos, mv)),
			SAN:       sanNotation.Encode(pos, mv),
			From:      mv.S1(),
			To:        mv.S2(),
			Piece:     piece.Type(),
			Promo:     mv.Promo(),
			Kingside:  mv.HasTag(nchess.KingSideCastle),
			Queenside: mv.HasTag(nchess.QueenSideCastle),
		})
	}
	return out
}

// Apply plays a UCI move on the game, failing if it is not legal.
func Apply(game *nchess.Game, uci string) error {
	notation := nchess.UCINotation{}
	mv, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(uci)))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	if err := game.Move(mv, nil); err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	return nil
}

// SANOf encodes a UCI move as SAN in the game's current position without
// mutating the game.
func SANOf(game *nchess.Game, uci string) (string, error) {
	pos := game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(strings.TrimSpace(uci)))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv), nil
}

// OutcomeStatus maps the engine outcome of a finished game onto a terminal
// game status, or "" when the game is still running.
func OutcomeStatus(game *nchess.Game) string {
	switch game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		return "mate"
	case nchess.Draw:
		return "draw"
	}
	return ""
}
