package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/yxzhu/wubiq/internal/model"
)

// drawCaptcha renders a white canvas with one filled black block per entry
// of blocks (x0, y0, x1, y1) and returns it PNG-encoded.
func drawCaptcha(t *testing.T, w, h int, blocks [][4]int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	for _, b := range blocks {
		for y := b[1]; y <= b[3]; y++ {
			for x := b[0]; x <= b[2]; x++ {
				img.Set(x, y, color.Black)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeYieldsFourGlyphs(t *testing.T) {
	raw := drawCaptcha(t, 60, 20, [][4]int{
		{3, 4, 10, 16},
		{18, 4, 25, 16},
		{33, 4, 40, 16},
		{48, 4, 55, 16},
	})

	glyphs, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(glyphs) != model.DigitCount {
		t.Fatalf("expected %d glyphs, got %d", model.DigitCount, len(glyphs))
	}

	// Each cell was a solid block, so every normalized cell is all ink.
	for i, g := range glyphs {
		for y := 0; y < GlyphHeight; y++ {
			for x := 0; x < GlyphWidth; x++ {
				if g.Pix[y][x] != 1 {
					t.Fatalf("glyph %d: expected solid ink at (%d,%d)", i, x, y)
				}
			}
		}
	}
}

func TestNormalizeFallsBackToSlicesWhenComponentsMerge(t *testing.T) {
	// A single block spanning the canvas means one connected component;
	// segmentation must still produce four cells.
	raw := drawCaptcha(t, 60, 20, [][4]int{{2, 5, 57, 15}})

	glyphs, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(glyphs) != model.DigitCount {
		t.Fatalf("expected %d glyphs from slice fallback, got %d", model.DigitCount, len(glyphs))
	}
}

func TestNormalizeIgnoresIsolatedDots(t *testing.T) {
	blocks := [][4]int{
		{3, 4, 10, 16},
		{18, 4, 25, 16},
		{33, 4, 40, 16},
		{48, 4, 55, 16},
	}
	// Single-pixel specks between the digits.
	blocks = append(blocks, [4]int{14, 2, 14, 2}, [4]int{30, 18, 30, 18}, [4]int{44, 1, 44, 1})
	raw := drawCaptcha(t, 60, 20, blocks)

	glyphs, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(glyphs) != model.DigitCount {
		t.Fatalf("expected dots to be denoised away, got %d glyphs", len(glyphs))
	}
}

func TestNormalizeMalformedBytes(t *testing.T) {
	_, err := Normalize([]byte("definitely not a bitmap"))
	if !errors.Is(err, model.ErrMalformedImage) {
		t.Fatalf("expected ErrMalformedImage, got %v", err)
	}
}

func TestGlyphPackUnpackRoundTrip(t *testing.T) {
	var g Glyph
	g.Pix[0][0] = 1
	g.Pix[5][4] = 1
	g.Pix[GlyphHeight-1][GlyphWidth-1] = 1

	got, err := Unpack(g.Pack())
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got != g {
		t.Fatalf("round trip changed glyph:\n%s\nvs\n%s", g, got)
	}

	if _, err := Unpack([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short pattern")
	}
}

func TestGlyphHashAndHamming(t *testing.T) {
	var a, b Glyph
	if a.Hash() != b.Hash() {
		t.Fatal("identical glyphs must hash identically")
	}
	if a.Hamming(b) != 0 {
		t.Fatal("identical glyphs must have zero distance")
	}

	b.Pix[2][3] = 1
	b.Pix[7][1] = 1
	if a.Hash() == b.Hash() {
		t.Fatal("different glyphs must hash differently")
	}
	if d := a.Hamming(b); d != 2 {
		t.Fatalf("expected distance 2, got %d", d)
	}
}
