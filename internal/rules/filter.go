package rules

import (
	"sort"

	nchess "github.com/corentings/chess/v2"
)

// FilterPiece keeps the moves of one piece type, castling excluded. Castling
// is always selected through the dedicated castle entry, never via the king.
func FilterPiece(cands []Move, piece nchess.PieceType) []Move {
	out := make([]Move, 0, len(cands))
	for _, m := range cands {
		if m.Kingside || m.Queenside {
			continue
		}
		if m.Piece == piece {
			out = append(out, m)
		}
	}
	return out
}

// CastleMoves keeps only castling moves.
func CastleMoves(cands []Move) []Move {
	out := make([]Move, 0, 2)
	for _, m := range cands {
		if m.Kingside || m.Queenside {
			out = append(out, m)
		}
	}
	return out
}

// Files returns the distinct files a file-selection step should offer for the
// candidates, ascending. Destination files always count; for pawns the origin
// file counts too, so captures can be keyed the way players say them
// ("exd5" starts from the e-file).
func Files(cands []Move) []nchess.File {
	var seen [8]bool
	for _, m := range cands {
		seen[int(m.To.File())] = true
		if m.Piece == nchess.Pawn {
			seen[int(m.From.File())] = true
		}
	}
	out := make([]nchess.File, 0, 8)
	for i, ok := range seen {
		if ok {
			out = append(out, nchess.File(i))
		}
	}
	return out
}

// FilterFile keeps moves matching a selected file. A move matches on its
// destination file, or for pawns on its origin file as well.
func FilterFile(cands []Move, file nchess.File) []Move {
	out := make([]Move, 0, len(cands))
	for _, m := range cands {
		if m.To.File() == file || (m.Piece == nchess.Pawn && m.From.File() == file) {
			out = append(out, m)
		}
	}
	return out
}

// Ranks returns the distinct destination ranks among the candidates, ascending.
func Ranks(cands []Move) []nchess.Rank {
	var seen [8]bool
	for _, m := range cands {
		seen[int(m.To.Rank())] = true
	}
	out := make([]nchess.Rank, 0, 8)
	for i, ok := range seen {
		if ok {
			out = append(out, nchess.Rank(i))
		}
	}
	return out
}

// FilterRank keeps moves whose destination rank matches.
func FilterRank(cands []Move, rank nchess.Rank) []Move {
	out := make([]Move, 0, len(cands))
	for _, m := range cands {
		if m.To.Rank() == rank {
			out = append(out, m)
		}
	}
	return out
}

// SortCandidates orders moves for a disambiguation menu: by origin rank, then
// origin file, then UCI string so promotions list deterministically.
func SortCandidates(cands []Move) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.From.Rank() != b.From.Rank() {
			return a.From.Rank() < b.From.Rank()
		}
		if a.From.File() != b.From.File() {
			return a.From.File() < b.From.File()
		}
		return a.UCI < b.UCI
	})
}
