// internal/imaging/placeholder.go
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// placeholderSVG is a neutral tile: light frame, accent corner, crossed frame.
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">
  <rect x="2" y="2" width="96" height="96" fill="#f5f5f5" stroke="#e0e0e0" stroke-width="3"/>
  <path d="M20 20 L80 80 M80 20 L20 80" stroke="#666666" stroke-width="2"/>
  <rect x="2" y="2" width="18" height="6" fill="#e94560"/>
</svg>`

// Placeholder renders the missing-image tile as a w x h PNG.
func Placeholder(w, h int) ([]byte, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid placeholder size %dx%d", w, h)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader([]byte(placeholderSVG)))
	if err != nil {
		return nil, fmt.Errorf("parse placeholder svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
