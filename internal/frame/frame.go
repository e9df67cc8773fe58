// Package frame turns a screen description into the PNG the terminal shows.
// Descriptions are deliberately declarative so the composition backend can be
// swapped without touching the controllers that build them.
package frame

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	nchess "github.com/corentings/chess/v2"

	"github.com/eink-labs/chess-hlss/internal/domain"
)

// Arrow marks the last move on the board.
type Arrow struct {
	From nchess.Square
	To   nchess.Square
}

// BoardView describes the chessboard area of a play screen.
type BoardView struct {
	Board *nchess.Board
	// Flipped renders rank 1 at the top, for the black player.
	Flipped bool
	// Arrow shows the most recent move.
	Arrow *Arrow
	// Marker tints one square, used for the staged move's destination.
	Marker *nchess.Square
}

// ButtonHint labels one numbered button in the footer bar.
type ButtonHint struct {
	Button  domain.Button
	Label   string
	Enabled bool
}

// Overlay is a modal box drawn over the whole screen.
type Overlay struct {
	Title string
	Lines []string
	// QRContent, when set, is rendered as a QR code inside the overlay.
	QRContent string
}

// ScreenDescription is everything needed to draw one full screen.
type ScreenDescription struct {
	Title   string
	Lines   []string
	Board   *BoardView
	Buttons []ButtonHint
	// Notice is a one-shot message shown prominently until the next input.
	Notice  string
	Overlay *Overlay
}

// Frame is a composed image ready for submission, with a content hash the
// display service uses to skip unchanged refreshes.
type Frame struct {
	PNG  []byte
	Hash string
}

// Composer renders screen descriptions.
type Composer interface {
	Compose(ctx context.Context, desc ScreenDescription) (*Frame, error)
}

func hashPNG(png []byte) string {
	sum := sha256.Sum256(png)
	return hex.EncodeToString(sum[:])
}
