package frame

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/eink-labs/chess-hlss/internal/domain"
)

// Grayscale palette tuned for the e-Ink panel.
var (
	paperColor    = color.RGBA{255, 255, 255, 255}
	inkColor      = color.RGBA{16, 16, 16, 255}
	fadedInkColor = color.RGBA{120, 120, 120, 255}
	lightSquare   = color.RGBA{232, 232, 232, 255}
	darkSquare    = color.RGBA{160, 160, 160, 255}
	markerColor   = color.NRGBA{40, 40, 40, 90}
	arrowColor    = color.NRGBA{30, 30, 30, 170}
	slotFillColor = color.RGBA{212, 212, 212, 255}
)

const (
	headerHeight = 50
	footerHeight = 50
)

// PNGComposer renders screen descriptions into grayscale PNGs sized for the
// terminal panel.
type PNGComposer struct {
	width  int
	height int
}

func NewPNGComposer(width, height int) *PNGComposer {
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 480
	}
	return &PNGComposer{width: width, height: height}
}

func (c *PNGComposer) Compose(ctx context.Context, desc ScreenDescription) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(paperColor), image.Point{}, imagedraw.Src)

	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}

	c.drawHeader(img, drawer, desc.Title)

	bodyTop := headerHeight + 2
	bodyBottom := c.height - footerHeight - 2
	textLeft := 16

	if desc.Board != nil {
		boardSize := (bodyBottom - bodyTop - 4) / 8 * 8
		origin := image.Point{X: 12, Y: bodyTop + (bodyBottom-bodyTop-boardSize)/2}
		if err := c.drawBoard(img, drawer, desc.Board, boardSize/8, origin); err != nil {
			return nil, err
		}
		textLeft = origin.X + boardSize + 24
	}

	c.drawLines(drawer, desc.Lines, textLeft, bodyTop+20)

	if desc.Notice != "" {
		c.drawNotice(img, drawer, desc.Notice, textLeft, bodyBottom)
	}

	c.drawButtonBar(img, drawer, desc.Buttons)

	if desc.Overlay != nil {
		if err := c.drawOverlay(img, drawer, desc.Overlay); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &Frame{PNG: buf.Bytes(), Hash: hashPNG(buf.Bytes())}, nil
}

func (c *PNGComposer) drawHeader(img *image.RGBA, drawer *font.Drawer, title string) {
	line := image.Rect(0, headerHeight-2, c.width, headerHeight)
	imagedraw.Draw(img, line, image.NewUniform(inkColor), image.Point{}, imagedraw.Src)
	drawString(drawer, title, 16, headerHeight/2+5, inkColor)
}

func (c *PNGComposer) drawLines(drawer *font.Drawer, lines []string, x, y int) {
	const lineHeight = 20
	for i, ln := range lines {
		drawString(drawer, ln, x, y+i*lineHeight, inkColor)
	}
}

func (c *PNGComposer) drawNotice(img *image.RGBA, drawer *font.Drawer, notice string, x, bodyBottom int) {
	boxTop := bodyBottom - 36
	box := image.Rect(x-8, boxTop, c.width-12, bodyBottom-4)
	drawBorder(img, box, inkColor)
	drawString(drawer, notice, x, boxTop+21, inkColor)
}

// drawButtonBar renders the eight numbered-button slots along the bottom,
// mirroring the physical key row under the panel.
func (c *PNGComposer) drawButtonBar(img *image.RGBA, drawer *font.Drawer, hints []ButtonHint) {
	barTop := c.height - footerHeight
	line := image.Rect(0, barTop, c.width, barTop+2)
	imagedraw.Draw(img, line, image.NewUniform(inkColor), image.Point{}, imagedraw.Src)

	byButton := make(map[domain.Button]ButtonHint, len(hints))
	for _, h := range hints {
		byButton[h.Button] = h
	}

	slotWidth := c.width / len(domain.NumberedButtons)
	for i, b := range domain.NumberedButtons {
		slot := image.Rect(i*slotWidth+2, barTop+4, (i+1)*slotWidth-2, c.height-4)
		h, ok := byButton[b]
		if ok && h.Enabled {
			imagedraw.Draw(img, slot, image.NewUniform(slotFillColor), image.Point{}, imagedraw.Src)
		}
		drawBorder(img, slot, fadedInkColor)

		label := h.Label
		clr := inkColor
		if !ok || !h.Enabled {
			clr = fadedInkColor
		}
		if label == "" {
			label = fmt.Sprintf("%d", i+1)
			clr = fadedInkColor
		}
		drawCenteredString(drawer, label, slot, clr)
	}
}

func (c *PNGComposer) drawBoard(img *image.RGBA, drawer *font.Drawer, view *BoardView, squareSize int, origin image.Point) error {
	for file := 0; file < 8; file++ {
		for rank := 0; rank < 8; rank++ {
			sq := nchess.NewSquare(nchess.File(file), nchess.Rank(rank))
			rect := squareRect(sq, squareSize, origin, view.Flipped)
			clr := lightSquare
			if (file+rank)%2 == 0 {
				clr = darkSquare
			}
			imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}

	if view.Board != nil {
		for sq, piece := range view.Board.SquareMap() {
			if piece == nchess.NoPiece {
				continue
			}
			pieceImg, err := renderPieceImage(piece, squareSize)
			if err != nil {
				return err
			}
			rect := squareRect(sq, squareSize, origin, view.Flipped)
			imagedraw.Draw(img, rect, pieceImg, image.Point{}, imagedraw.Over)
		}
	}

	if view.Marker != nil {
		rect := squareRect(*view.Marker, squareSize, origin, view.Flipped)
		imagedraw.Draw(img, rect, image.NewUniform(markerColor), image.Point{}, imagedraw.Over)
	}
	if view.Arrow != nil && view.Arrow.From != view.Arrow.To {
		drawArrow(img, view.Arrow.From, view.Arrow.To, squareSize, origin, view.Flipped)
	}

	c.drawCoordinates(drawer, squareSize, origin, view.Flipped)
	return nil
}

func (c *PNGComposer) drawCoordinates(drawer *font.Drawer, squareSize int, origin image.Point, flipped bool) {
	for i := 0; i < 8; i++ {
		fileSq := nchess.NewSquare(nchess.File(i), nchess.Rank1)
		rankSq := nchess.NewSquare(nchess.FileA, nchess.Rank(i))

		fileRect := squareRect(fileSq, squareSize, origin, flipped)
		drawString(drawer, nchess.File(i).String(), fileRect.Min.X+squareSize-8, origin.Y+8*squareSize-3, inkColor)

		rankRect := squareRect(rankSq, squareSize, origin, flipped)
		drawString(drawer, nchess.Rank(i).String(), origin.X+3, rankRect.Min.Y+12, inkColor)
	}
}

func (c *PNGComposer) drawOverlay(img *image.RGBA, drawer *font.Drawer, ov *Overlay) error {
	const qrSize = 200
	boxW, boxH := 360, 120
	if ov.QRContent != "" {
		boxH += qrSize + 16
	}
	boxH += len(ov.Lines) * 20

	box := image.Rect((c.width-boxW)/2, (c.height-boxH)/2, (c.width+boxW)/2, (c.height+boxH)/2)
	imagedraw.Draw(img, box, image.NewUniform(paperColor), image.Point{}, imagedraw.Src)
	drawBorder(img, box, inkColor)
	drawBorder(img, box.Inset(3), inkColor)

	y := box.Min.Y + 28
	drawCenteredString(drawer, ov.Title, image.Rect(box.Min.X, y-14, box.Max.X, y+6), inkColor)
	y += 24

	for _, ln := range ov.Lines {
		drawCenteredString(drawer, ln, image.Rect(box.Min.X, y-14, box.Max.X, y+6), inkColor)
		y += 20
	}

	if ov.QRContent != "" {
		qr, err := qrcode.New(ov.QRContent, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("build qr code: %w", err)
		}
		qrImg := qr.Image(qrSize)
		target := image.Rect((c.width-qrSize)/2, y, (c.width+qrSize)/2, y+qrSize)
		imagedraw.Draw(img, target, qrImg, qrImg.Bounds().Min, imagedraw.Over)
	}
	return nil
}

// squareRect maps a square onto the image, honoring board orientation.
func squareRect(sq nchess.Square, squareSize int, origin image.Point, flipped bool) image.Rectangle {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	if flipped {
		col = 7 - col
		row = int(sq.Rank())
	}
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawArrow(img *image.RGBA, from, to nchess.Square, squareSize int, origin image.Point, flipped bool) {
	startRect := squareRect(from, squareSize, origin, flipped)
	endRect := squareRect(to, squareSize, origin, flipped)
	start := pointF{
		X: float64(startRect.Min.X + squareSize/2),
		Y: float64(startRect.Min.Y + squareSize/2),
	}
	end := pointF{
		X: float64(endRect.Min.X + squareSize/2),
		Y: float64(endRect.Min.Y + squareSize/2),
	}

	dx := end.X - start.X
	dy := end.Y - start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	halfWidth := float64(squareSize) * 0.12
	headWidth := float64(squareSize) * 0.3
	baseLength := length - float64(squareSize)*0.4
	if baseLength < float64(squareSize)*0.3 {
		baseLength = length * 0.6
	}
	base := pointF{X: start.X + dirX*baseLength, Y: start.Y + dirY*baseLength}

	fillQuad(img,
		pointF{X: start.X - perpX*halfWidth, Y: start.Y - perpY*halfWidth},
		pointF{X: start.X + perpX*halfWidth, Y: start.Y + perpY*halfWidth},
		pointF{X: base.X + perpX*halfWidth, Y: base.Y + perpY*halfWidth},
		pointF{X: base.X - perpX*halfWidth, Y: base.Y - perpY*halfWidth},
	)
	fillTriangle(img,
		end,
		pointF{X: base.X - perpX*headWidth/2, Y: base.Y - perpY*headWidth/2},
		pointF{X: base.X + perpX*headWidth/2, Y: base.Y + perpY*headWidth/2},
	)
}

type pointF struct {
	X float64
	Y float64
}

func fillQuad(img *image.RGBA, p0, p1, p2, p3 pointF) {
	fillTriangle(img, p0, p1, p2)
	fillTriangle(img, p0, p2, p3)
}

func fillTriangle(img *image.RGBA, a, b, c pointF) {
	minX := int(math.Floor(min(a.X, min(b.X, c.X))))
	maxX := int(math.Ceil(max(a.X, max(b.X, c.X))))
	minY := int(math.Floor(min(a.Y, min(b.Y, c.Y))))
	maxY := int(math.Ceil(max(a.Y, max(b.Y, c.Y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if pointInTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, arrowColor)
			}
		}
	}
}

func pointInTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	return alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0
}

func blendPixel(img *image.RGBA, x, y int, clr color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	dst := img.RGBAAt(x, y)
	srcA := float64(clr.A) / 255.0
	blend := func(s uint8, d uint8) uint8 {
		v := float64(s)*srcA + float64(d)*(1-srcA)
		if v > 255 {
			v = 255
		}
		return uint8(v + 0.5)
	}
	img.SetRGBA(x, y, color.RGBA{
		R: blend(clr.R, dst.R),
		G: blend(clr.G, dst.G),
		B: blend(clr.B, dst.B),
		A: 255,
	})
}

func drawBorder(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	fill := image.NewUniform(clr)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+1), fill, image.Point{}, imagedraw.Src)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Max.Y-1, rect.Max.X, rect.Max.Y), fill, image.Point{}, imagedraw.Src)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+1, rect.Max.Y), fill, image.Point{}, imagedraw.Src)
	imagedraw.Draw(img, image.Rect(rect.Max.X-1, rect.Min.Y, rect.Max.X, rect.Max.Y), fill, image.Point{}, imagedraw.Src)
}

func drawString(drawer *font.Drawer, text string, x, baseline int, clr color.Color) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredString(drawer *font.Drawer, text string, rect image.Rectangle, clr color.Color) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X+2 {
		x = rect.Min.X + 2
	}
	baseline := rect.Min.Y + (rect.Dy()+9)/2
	drawString(drawer, text, x, baseline, clr)
}
