package imaging

import (
	"bytes"
	"fmt"
	"image"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"github.com/yxzhu/wubiq/internal/model"
)

// minComponentPixels filters specks that survive denoising but are too small
// to be a digit stroke cluster.
const minComponentPixels = 8

// Normalize decodes raw captcha bytes and segments them into exactly
// model.DigitCount same-shape glyph cells, left to right. The remote serves
// palette BMPs; any format registered with image.Decode is accepted.
// Returns model.ErrMalformedImage when the bytes cannot be decoded or the
// canvas is too small to hold the expected layout.
func Normalize(raw []byte) ([]Glyph, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", model.ErrMalformedImage, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < model.DigitCount || h < 1 {
		return nil, fmt.Errorf("%w: canvas %dx%d too small", model.ErrMalformedImage, w, h)
	}

	mask := binarize(img)
	denoise(mask)

	comps := components(mask)
	if len(comps) != model.DigitCount {
		// Touching digits merge components; an over-noisy image splits them.
		// Either way, fall back to equal-width slices so one bad segmentation
		// does not hard-fail the whole image.
		comps = evenSlices(mask)
	}

	glyphs := make([]Glyph, 0, model.DigitCount)
	for _, c := range comps {
		glyphs = append(glyphs, resample(mask, c))
	}
	return glyphs, nil
}

// binarize converts the image to a foreground mask. The background is taken
// to be the most frequent color, which holds for the fixed palette the
// remote generator uses.
func binarize(img image.Image) [][]uint8 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	counts := make(map[uint64]int)
	keys := make([][]uint64, h)
	for y := 0; y < h; y++ {
		keys[y] = make([]uint64, w)
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			k := uint64(r)<<32 | uint64(g)<<16 | uint64(b)
			keys[y][x] = k
			counts[k]++
		}
	}

	var background uint64
	best := -1
	for k, n := range counts {
		if n > best || (n == best && k < background) {
			background, best = k, n
		}
	}

	mask := make([][]uint8, h)
	for y := 0; y < h; y++ {
		mask[y] = make([]uint8, w)
		for x := 0; x < w; x++ {
			if keys[y][x] != background {
				mask[y][x] = 1
			}
		}
	}
	return mask
}

// denoise clears foreground pixels with no 4-connected foreground neighbor.
// The generator sprinkles single-pixel dots that would otherwise split
// digits into extra components.
func denoise(mask [][]uint8) {
	h, w := len(mask), len(mask[0])
	isolated := make([][2]int, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y][x] == 0 {
				continue
			}
			n := 0
			if x > 0 {
				n += int(mask[y][x-1])
			}
			if x < w-1 {
				n += int(mask[y][x+1])
			}
			if y > 0 {
				n += int(mask[y-1][x])
			}
			if y < h-1 {
				n += int(mask[y+1][x])
			}
			if n == 0 {
				isolated = append(isolated, [2]int{x, y})
			}
		}
	}
	for _, p := range isolated {
		mask[p[1]][p[0]] = 0
	}
}

// box is a component bounding box in mask coordinates, inclusive.
type box struct {
	x0, y0, x1, y1 int
}

// components finds 4-connected foreground components of at least
// minComponentPixels pixels, sorted left to right.
func components(mask [][]uint8) []box {
	h, w := len(mask), len(mask[0])
	seen := make([][]bool, h)
	for y := range seen {
		seen[y] = make([]bool, w)
	}

	var out []box
	var stack [][2]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if seen[y][x] || mask[y][x] == 0 {
				continue
			}
			b := box{x, y, x, y}
			size := 0
			stack = append(stack[:0], [2]int{x, y})
			seen[y][x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cx, cy := p[0], p[1]
				size++
				if cx < b.x0 {
					b.x0 = cx
				}
				if cx > b.x1 {
					b.x1 = cx
				}
				if cy < b.y0 {
					b.y0 = cy
				}
				if cy > b.y1 {
					b.y1 = cy
				}
				for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := cx+d[0], cy+d[1]
					if nx >= 0 && nx < w && ny >= 0 && ny < h && !seen[ny][nx] && mask[ny][nx] != 0 {
						seen[ny][nx] = true
						stack = append(stack, [2]int{nx, ny})
					}
				}
			}
			if size >= minComponentPixels {
				out = append(out, b)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].x0 < out[j].x0 })
	return out
}

// evenSlices splits the canvas into DigitCount equal-width cells, tightening
// each to its own foreground bounding box when it has any ink.
func evenSlices(mask [][]uint8) []box {
	h, w := len(mask), len(mask[0])
	sliceW := w / model.DigitCount

	out := make([]box, 0, model.DigitCount)
	for i := 0; i < model.DigitCount; i++ {
		x0 := i * sliceW
		x1 := (i+1)*sliceW - 1
		if i == model.DigitCount-1 {
			x1 = w - 1
		}

		b := box{-1, -1, -1, -1}
		for y := 0; y < h; y++ {
			for x := x0; x <= x1; x++ {
				if mask[y][x] == 0 {
					continue
				}
				if b.x0 < 0 {
					b = box{x, y, x, y}
					continue
				}
				if x < b.x0 {
					b.x0 = x
				}
				if x > b.x1 {
					b.x1 = x
				}
				if y < b.y0 {
					b.y0 = y
				}
				if y > b.y1 {
					b.y1 = y
				}
			}
		}
		if b.x0 < 0 {
			b = box{x0, 0, x1, h - 1} // blank slice keeps its full extent
		}
		out = append(out, b)
	}
	return out
}

// resample crops the mask to the component box and nearest-neighbor scales
// it to the canonical glyph shape.
func resample(mask [][]uint8, b box) Glyph {
	srcW := b.x1 - b.x0 + 1
	srcH := b.y1 - b.y0 + 1

	var g Glyph
	for y := 0; y < GlyphHeight; y++ {
		sy := b.y0 + y*srcH/GlyphHeight
		for x := 0; x < GlyphWidth; x++ {
			sx := b.x0 + x*srcW/GlyphWidth
			g.Pix[y][x] = mask[sy][sx]
		}
	}
	return g
}
