package imaging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"strings"
)

// Canonical glyph cell shape. Every stored template and every normalized
// cell has exactly this shape.
const (
	GlyphWidth  = 9
	GlyphHeight = 11
)

// MaxDistance is the largest possible Hamming distance between two glyphs.
const MaxDistance = GlyphWidth * GlyphHeight

// Glyph is one normalized binary glyph cell: 1 is foreground ink, 0 is
// background. The zero value is an all-background cell.
type Glyph struct {
	Pix [GlyphHeight][GlyphWidth]uint8
}

// Hamming returns the number of pixel positions where g and o differ.
func (g Glyph) Hamming(o Glyph) int {
	d := 0
	for y := 0; y < GlyphHeight; y++ {
		for x := 0; x < GlyphWidth; x++ {
			if g.Pix[y][x] != o.Pix[y][x] {
				d++
			}
		}
	}
	return d
}

// Pack serializes the glyph as one byte per pixel, row-major.
func (g Glyph) Pack() []byte {
	out := make([]byte, 0, MaxDistance)
	for y := 0; y < GlyphHeight; y++ {
		out = append(out, g.Pix[y][:]...)
	}
	return out
}

// Unpack restores a glyph serialized by Pack.
func Unpack(data []byte) (Glyph, error) {
	var g Glyph
	if len(data) != MaxDistance {
		return g, fmt.Errorf("glyph pattern must be %d bytes, got %d", MaxDistance, len(data))
	}
	for y := 0; y < GlyphHeight; y++ {
		copy(g.Pix[y][:], data[y*GlyphWidth:(y+1)*GlyphWidth])
	}
	return g, nil
}

// Hash returns the deterministic content hash of the glyph pattern, used by
// the template store to deduplicate appends.
func (g Glyph) Hash() string {
	sum := sha256.Sum256(g.Pack())
	return hex.EncodeToString(sum[:])
}

// Render draws the glyph as a grayscale image, scaled up by scale and padded
// with border background pixels on every side. Classifier engines want more
// resolution than the 9x11 cell carries.
func (g Glyph) Render(scale, border int) *image.Gray {
	if scale < 1 {
		scale = 1
	}
	w := GlyphWidth*scale + 2*border
	h := GlyphHeight*scale + 2*border
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 255}) // white background
		}
	}
	for y := 0; y < GlyphHeight; y++ {
		for x := 0; x < GlyphWidth; x++ {
			if g.Pix[y][x] == 0 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetGray(border+x*scale+dx, border+y*scale+dy, color.Gray{Y: 0})
				}
			}
		}
	}
	return img
}

// String renders an ASCII preview, one row per line.
func (g Glyph) String() string {
	var b strings.Builder
	for y := 0; y < GlyphHeight; y++ {
		for x := 0; x < GlyphWidth; x++ {
			if g.Pix[y][x] != 0 {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		if y < GlyphHeight-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
