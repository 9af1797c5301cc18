package compositor

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"webpconv/models"
	"webpconv/webptest"
)

func TestThresholdLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := image.NewNRGBA(image.Rect(0, 0, 256, 4))
	for y := 0; y < 4; y++ {
		for a := 0; a < 256; a++ {
			img.SetNRGBA(a, y, color.NRGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(a)})
		}
	}
	before := append([]uint8(nil), img.Pix...)

	ThresholdAlpha(img, 128)

	for i := 0; i < len(img.Pix); i += 4 {
		in, out := before[i+3], img.Pix[i+3]
		want := in
		if in > 0 && in < 128 {
			want = 0
		}
		if out != want {
			t.Fatalf("alpha %d -> %d, want %d", in, out, want)
		}
		if !bytes.Equal(before[i:i+3], img.Pix[i:i+3]) {
			t.Fatalf("color channels changed at %d", i/4)
		}
	}
}

func TestThresholdDisabled(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Pix[3] = 5
	ThresholdAlpha(img, 0)
	if img.Pix[3] != 5 {
		t.Errorf("threshold 0 should leave alpha alone, got %d", img.Pix[3])
	}
}

func TestCompositeNRGBA(t *testing.T) {
	c := &Compositor{Width: 4, Height: 3, AlphaThreshold: 128}
	src := image.NewNRGBA(image.Rect(0, 0, 6, 2))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	src.SetNRGBA(1, 1, color.NRGBA{10, 20, 30, 100})

	out := c.Composite(src)
	if out.Bounds() != image.Rect(0, 0, 4, 3) {
		t.Fatalf("canvas bounds = %v", out.Bounds())
	}
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{200, 200, 200, 200}) {
		t.Errorf("(0,0) = %v", got)
	}
	if got := out.NRGBAAt(1, 1); got != (color.NRGBA{10, 20, 30, 0}) {
		t.Errorf("(1,1) = %v, want alpha snapped to 0", got)
	}
	if got := out.NRGBAAt(2, 2); got.A != 0 {
		t.Errorf("uncovered canvas should be transparent, got %v", got)
	}
}

func TestCompositeConvertsOtherModels(t *testing.T) {
	c := &Compositor{Width: 2, Height: 2, AlphaThreshold: 128}
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	src.SetRGBA(1, 1, color.RGBA{20, 20, 20, 40})

	out := c.Composite(src)
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("(0,0) = %v", got)
	}
	if got := out.NRGBAAt(1, 1); got.A != 0 {
		t.Errorf("(1,1) alpha = %d, want 0", got.A)
	}
}

func TestLoadPNGAndTIFF(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "dump_0000.png")
	if err := os.WriteFile(pngPath, webptest.FramePNG(3, 3, color.NRGBA{0, 0, 255, 255}), 0o644); err != nil {
		t.Fatal(err)
	}

	src := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+3] = 255, 60
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}
	tiffPath := filepath.Join(dir, "dump_0001.tiff")
	if err := os.WriteFile(tiffPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := New(models.AnimationMetadata{CanvasWidth: 3, CanvasHeight: 3}, 128)
	if err != nil {
		t.Fatal(err)
	}
	f, err := c.Load(pngPath, 0, 100)
	if err != nil {
		t.Fatalf("Load png: %v", err)
	}
	if f.Index != 0 || f.DelayMs != 100 || f.Image.NRGBAAt(2, 2) != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("png frame = %+v, pixel %v", f, f.Image.NRGBAAt(2, 2))
	}

	f, err = c.Load(tiffPath, 1, 150)
	if err != nil {
		t.Fatalf("Load tiff: %v", err)
	}
	if a := f.Image.NRGBAAt(1, 1).A; a != 0 {
		t.Errorf("tiff pixel alpha = %d, want 0 after threshold", a)
	}
}

func TestLoadErrors(t *testing.T) {
	c := &Compositor{Width: 1, Height: 1}
	if _, err := c.Load(filepath.Join(t.TempDir(), "missing.png"), 0, 0); err == nil {
		t.Error("expected error for missing frame")
	}
	bad := filepath.Join(t.TempDir(), "dump_0000.png")
	os.WriteFile(bad, []byte("not an image"), 0o644)
	if _, err := c.Load(bad, 0, 0); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(models.AnimationMetadata{}, 128); err == nil {
		t.Error("expected error for empty canvas")
	}
	if _, err := New(models.AnimationMetadata{CanvasWidth: 1, CanvasHeight: 1}, 300); err == nil {
		t.Error("expected error for threshold > 255")
	}
}
