// Package covergen implements the auto-cover generator spec.md §6 describes
// as an external interface the core consumes but doesn't implement: a
// title-grid JPEG rendered from a title string and a TTF/OTF font, for
// books that carry no embedded cover image. Grounded on
// original_source/lib/src/cover.rs's gen_cover/ImageCrop (ab_glyph +
// imageproc in the original), translated onto golang.org/x/image's
// sfnt/opentype/font stack, the teacher's indirect x/image dependency
// (pulled in via disintegration/imaging) that nothing previously imported
// directly.
package covergen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

const (
	coverWidth    = 150
	coverHeight   = 240
	coverMargin   = 5
	scratchHeight = 120
	jpegQuality   = 90
)

// Generate renders title as white text on a black 150x240 JPEG cover image
// using fontTTF (raw TTF/OTF bytes), per spec.md §6: title runes are laid
// out on a grid (3 columns if the rune count divides by 3, else 2 if it
// divides by 2, else min(3, count)), and each glyph is centered within its
// cell by rendering it to a scratch canvas and scanning the non-black ink
// column extent.
func Generate(title string, fontTTF []byte) ([]byte, error) {
	runes := []rune(title)
	n := len(runes)
	if n == 0 {
		return nil, fmt.Errorf("covergen: title is empty")
	}

	cols, rows := gridSize(n)
	useWidth := (coverWidth - 2*coverMargin) / cols
	useHeight := (coverHeight - 2*coverMargin) / rows
	if useWidth <= 0 || useHeight <= 0 {
		return nil, fmt.Errorf("covergen: title %q has too many characters for a %dx%d cover", title, coverWidth, coverHeight)
	}

	face, err := newFace(fontTTF, useHeight)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	img := image.NewRGBA(image.Rect(0, 0, coverWidth, coverHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for i, r := range runes {
		row, col := i/cols, i%cols
		width, left := measureGlyph(face, r, useWidth)
		x := (useWidth-width)/2 - left + coverMargin + col*useWidth
		y := coverMargin + row*useHeight
		drawRune(img, face, r, x, y)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("covergen: encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// gridSize picks the column/row layout for n title runes, per spec.md §6's
// grid formula.
func gridSize(n int) (cols, rows int) {
	switch {
	case n%3 == 0:
		cols = 3
	case n%2 == 0:
		cols = 2
	default:
		cols = min(3, n)
	}
	rows = (n + cols - 1) / cols
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// newFace parses fontTTF and builds a face sized so a single glyph roughly
// fills a cell of height size pixels.
func newFace(fontTTF []byte, size int) (font.Face, error) {
	f, err := sfnt.Parse(fontTTF)
	if err != nil {
		return nil, fmt.Errorf("covergen: parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("covergen: build face: %w", err)
	}
	return face, nil
}

// measureGlyph renders r alone onto a scratch canvas and scans its
// non-black ink extent, returning the ink width and the left inset from
// the canvas origin, mirroring original_source's ImageCrop::text_width.
func measureGlyph(face font.Face, r rune, scratchWidth int) (width, left int) {
	scratch := image.NewRGBA(image.Rect(0, 0, scratchWidth, scratchHeight))
	draw.Draw(scratch, scratch.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	drawRune(scratch, face, r, 0, 0)

	leftX, rightX := 0, 0
	for x := 0; x < scratchWidth; x++ {
		for y := 0; y < scratchHeight; y++ {
			if isNotBlack(scratch.RGBAAt(x, y)) {
				if leftX == 0 {
					leftX = x
				}
				if x >= rightX {
					rightX = x
				}
			}
		}
	}
	return rightX - leftX, leftX
}

// drawRune paints r in white onto dst with its top-left corner at (x, y).
func drawRune(dst draw.Image, face font.Face, r rune, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	ascent := face.Metrics().Ascent.Ceil()
	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + ascent)}
	d.DrawString(string(r))
}

func isNotBlack(c color.RGBA) bool {
	return c.R != 0 && c.G != 0 && c.B != 0
}
