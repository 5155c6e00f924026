package thumb

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Placeholder fills. The pending tile is a neutral light gray; the failure
// tile is darker so a broken file is visibly different from one still
// loading.
var (
	pendingFill = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	failedFill  = color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
	videoFill   = color.RGBA{R: 0x20, G: 0x2a, B: 0x3a, A: 0xff}
	glyphFill   = color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}
)

// renderFlatIcon produces a solid-color JPEG tile.
func renderFlatIcon(w, h, quality int, fill color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	return encodeTile(img, quality)
}

// renderVideoIcon produces the fixed generic icon used for every video row:
// a dark tile with a centered play triangle. Videos never decode.
func renderVideoIcon(w, h, quality int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(videoFill), image.Point{}, draw.Src)

	// Play triangle: flat left edge, apex pointing right, sized to a third
	// of the tile. Row width shrinks linearly toward the apex.
	cx, cy := w/2, h/2
	half := min(w, h) / 6
	for dy := -half; dy <= half; dy++ {
		right := half - (3*abs(dy))/2
		for dx := -half / 2; dx <= right; dx++ {
			img.Set(cx+dx, cy+dy, glyphFill)
		}
	}
	return encodeTile(img, quality)
}

func encodeTile(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	// Encoding a freshly drawn RGBA tile cannot fail in practice; fall back
	// to nil bytes if it somehow does.
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil
	}
	return buf.Bytes()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
