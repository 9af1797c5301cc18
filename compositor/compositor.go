// Package compositor turns dumped frame files into full-canvas NRGBA frames
// ready for palette encoding.
package compositor

import (
	"fmt"
	"image"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"webpconv/models"
)

// Frame is one composited frame. It is handed to the encoder and dropped.
type Frame struct {
	Image   *image.NRGBA
	Index   int
	DelayMs int
}

// Compositor draws frames onto a fixed canvas and applies the alpha threshold.
type Compositor struct {
	Width, Height int
	// AlphaThreshold snaps any alpha in (0, AlphaThreshold) to 0, since GIF
	// transparency is binary. 0 disables it.
	AlphaThreshold uint8
}

// New sizes a compositor from the animation's canvas.
func New(meta models.AnimationMetadata, alphaThreshold int) (*Compositor, error) {
	if meta.CanvasWidth <= 0 || meta.CanvasHeight <= 0 {
		return nil, fmt.Errorf("compositor: invalid canvas %dx%d", meta.CanvasWidth, meta.CanvasHeight)
	}
	if alphaThreshold < 0 || alphaThreshold > 255 {
		return nil, fmt.Errorf("compositor: alpha threshold %d out of range", alphaThreshold)
	}
	return &Compositor{Width: meta.CanvasWidth, Height: meta.CanvasHeight, AlphaThreshold: uint8(alphaThreshold)}, nil
}

// Load decodes the frame file at path (PNG or TIFF) and composites it.
func (c *Compositor) Load(path string, index, delayMs int) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %d: %w", index, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %d (%s): %w", index, path, err)
	}
	return &Frame{Image: c.Composite(src), Index: index, DelayMs: delayMs}, nil
}

// Composite copies src onto a fresh canvas at (0,0) and thresholds alpha.
// Decoder frames are already full-canvas, so there is no offset handling;
// anything outside the canvas is clipped and uncovered canvas stays
// transparent.
func (c *Compositor) Composite(src image.Image) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, c.Width, c.Height))
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		w := min(b.Dx(), c.Width) * 4
		for y := 0; y < min(b.Dy(), c.Height); y++ {
			copy(canvas.Pix[y*canvas.Stride:y*canvas.Stride+w], n.Pix[y*n.Stride:y*n.Stride+w])
		}
	} else {
		draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)
	}
	ThresholdAlpha(canvas, c.AlphaThreshold)
	return canvas
}

// ThresholdAlpha sets alpha to 0 wherever 0 < alpha < threshold. Color
// channels are left as they are.
func ThresholdAlpha(img *image.NRGBA, threshold uint8) {
	if threshold == 0 {
		return
	}
	for i := 3; i < len(img.Pix); i += 4 {
		if a := img.Pix[i]; a > 0 && a < threshold {
			img.Pix[i] = 0
		}
	}
}
