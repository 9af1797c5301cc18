package gifenc

import (
	"image"
	"image/color"

	"github.com/ericpauley/go-quantize/quantize"
)

// maxPaletteColors leaves index 0 for the transparent color.
const maxPaletteColors = 255

// minSamples keeps small frames from being sampled down to a handful of pixels.
const minSamples = 1024

// Quantize builds a palette for img by median cut. Index 0 is always the
// transparent key; opaque colors fill indices 1..255. quality is the
// sampling stride: 1 looks at every pixel, larger values look at fewer.
// Fully transparent pixels and pixels matching the key are not sampled.
func Quantize(img *image.NRGBA, quality int, key color.NRGBA) color.Palette {
	stride := max(1, min(quality, 100))
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n/stride < minSamples {
		stride = max(1, n/minSamples)
	}

	sampled := func(x, y int) bool {
		if ((y-b.Min.Y)*b.Dx()+(x-b.Min.X))%stride != 0 {
			return false
		}
		c := img.NRGBAAt(x, y)
		return c.A != 0 && (c.R != key.R || c.G != key.G || c.B != key.B)
	}

	palette := make(color.Palette, 1, maxPaletteColors+1)
	palette[0] = color.RGBA{R: key.R, G: key.G, B: key.B, A: 0xff}
	if !anySampled(b, stride, sampled) {
		return palette
	}

	q := quantize.MedianCutQuantizer{
		Aggregation: quantize.Mean,
		Weighting: func(_ image.Image, x, y int) uint32 {
			if sampled(x, y) {
				return 1
			}
			return 0
		},
	}
	return opaquePalette(q.Quantize(palette, opaqueView{img}))
}

func anySampled(b image.Rectangle, stride int, sampled func(x, y int) bool) bool {
	for i := 0; i < b.Dx()*b.Dy(); i += stride {
		if sampled(b.Min.X+i%b.Dx(), b.Min.Y+i/b.Dx()) {
			return true
		}
	}
	return false
}

// opaqueView hides alpha from the quantizer so partially transparent pixels
// keep their straight color instead of a premultiplied, darker one.
type opaqueView struct {
	*image.NRGBA
}

func (v opaqueView) At(x, y int) color.Color {
	c := v.NRGBAAt(x, y)
	c.A = 0xff
	return c
}

// opaquePalette converts entries to opaque color.RGBA and drops duplicates,
// keeping the key at index 0.
func opaquePalette(p color.Palette) color.Palette {
	out := make(color.Palette, 0, len(p))
	seen := make(map[color.RGBA]bool, len(p))
	for _, c := range p {
		rgba := color.RGBAModel.Convert(c).(color.RGBA)
		rgba.A = 0xff
		if seen[rgba] {
			continue
		}
		seen[rgba] = true
		out = append(out, rgba)
	}
	return out
}

// indexer maps pixels onto a palette built by Quantize.
type indexer struct {
	palette color.Palette
	key     color.NRGBA
	cache   map[[3]uint8]uint8
}

func newIndexer(palette color.Palette, key color.NRGBA) *indexer {
	return &indexer{palette: palette, key: key, cache: make(map[[3]uint8]uint8)}
}

func (x *indexer) index(r, g, b, a uint8) uint8 {
	if a == 0 || (r == x.key.R && g == x.key.G && b == x.key.B) || len(x.palette) < 2 {
		return 0
	}
	k := [3]uint8{r, g, b}
	if idx, ok := x.cache[k]; ok {
		return idx
	}
	best, bestDist := 1, -1
	for i := 1; i < len(x.palette); i++ {
		c := x.palette[i].(color.RGBA)
		dr, dg, db := int(r)-int(c.R), int(g)-int(c.G), int(b)-int(c.B)
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}
	x.cache[k] = uint8(best)
	return uint8(best)
}
