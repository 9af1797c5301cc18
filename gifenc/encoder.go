// Package gifenc writes animated GIF89a files one frame at a time, so a long
// animation never has to be held in memory.
//
// Every frame carries its own median-cut palette in a local color table.
// Palette index 0 is reserved for the transparent color and every frame
// uses disposal "restore to background".
package gifenc

import (
	"bufio"
	"compress/lzw"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
)

// Options configure one animation.
type Options struct {
	Width, Height int
	// Quality is the quantizer's sampling stride, 1..100; lower is better.
	// 0 is treated as 1.
	Quality     int
	Transparent string // "0xRRGGBB" or "0xRRGGBBAA"
	LoopCount   int    // 0 loops forever
}

// Encoder streams frames to an io.Writer. It is not safe for concurrent use.
type Encoder struct {
	w      *bufio.Writer
	opts   Options
	key    color.NRGBA
	frames int
	closed bool
	err    error
	block  [256]byte
}

const (
	disposalBackground = 2 << 2
	flagTransparent    = 0x01
)

// NewEncoder writes the GIF header and the looping extension. Frames follow
// with AddFrame and Close writes the trailer.
func NewEncoder(w io.Writer, opts Options) (*Encoder, error) {
	if opts.Width < 1 || opts.Width > 0xffff || opts.Height < 1 || opts.Height > 0xffff {
		return nil, fmt.Errorf("gifenc: canvas %dx%d out of range", opts.Width, opts.Height)
	}
	if opts.LoopCount < 0 || opts.LoopCount > 0xffff {
		return nil, fmt.Errorf("gifenc: loop count %d out of range", opts.LoopCount)
	}
	key, err := ParseTransparent(opts.Transparent)
	if err != nil {
		return nil, err
	}
	if opts.Quality < 1 {
		opts.Quality = 1
	}

	e := &Encoder{w: bufio.NewWriter(w), opts: opts, key: key}
	e.write([]byte("GIF89a"))
	e.writeUint16(opts.Width)
	e.writeUint16(opts.Height)
	e.write([]byte{0x00, 0x00, 0x00}) // no global table, background 0, square pixels

	e.write([]byte{0x21, 0xff, 0x0b})
	e.write([]byte("NETSCAPE2.0"))
	e.write([]byte{0x03, 0x01})
	e.writeUint16(opts.LoopCount)
	e.write([]byte{0x00})
	if e.err != nil {
		return nil, e.err
	}
	return e, nil
}

// Frames returns how many frames have been written.
func (e *Encoder) Frames() int { return e.frames }

// AddFrame quantizes img and appends it with the given delay. GIF delays are
// in hundredths of a second, so delayMs is rounded to the nearest 10ms.
func (e *Encoder) AddFrame(img *image.NRGBA, delayMs int) error {
	if e.closed {
		return errors.New("gifenc: AddFrame after Close")
	}
	if e.err != nil {
		return e.err
	}
	if b := img.Bounds(); b.Dx() != e.opts.Width || b.Dy() != e.opts.Height {
		return fmt.Errorf("gifenc: frame %d is %dx%d, canvas is %dx%d", e.frames, b.Dx(), b.Dy(), e.opts.Width, e.opts.Height)
	}
	delay := (max(delayMs, 0) + 5) / 10
	if delay > 0xffff {
		delay = 0xffff
	}

	palette := Quantize(img, e.opts.Quality, e.key)
	bits := 1
	for 1<<bits < len(palette) {
		bits++
	}

	// graphic control extension
	e.write([]byte{0x21, 0xf9, 0x04, disposalBackground | flagTransparent})
	e.writeUint16(delay)
	e.write([]byte{0x00, 0x00})

	// image descriptor with a local color table
	e.write([]byte{0x2c})
	e.writeUint16(0)
	e.writeUint16(0)
	e.writeUint16(e.opts.Width)
	e.writeUint16(e.opts.Height)
	e.write([]byte{0x80 | uint8(bits-1)})

	table := make([]byte, 3<<bits)
	for i, c := range palette {
		rgba := c.(color.RGBA)
		table[3*i], table[3*i+1], table[3*i+2] = rgba.R, rgba.G, rgba.B
	}
	e.write(table)

	litWidth := max(bits, 2)
	e.write([]byte{uint8(litWidth)})
	lz := lzw.NewWriter(blockWriter{e}, lzw.LSB, litWidth)
	idx := newIndexer(palette, e.key)
	row := make([]byte, e.opts.Width)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for x := range row {
			p := img.Pix[off+4*x : off+4*x+4 : off+4*x+4]
			row[x] = idx.index(p[0], p[1], p[2], p[3])
		}
		if _, err := lz.Write(row); err != nil {
			lz.Close()
			return e.fail(err)
		}
	}
	if err := lz.Close(); err != nil {
		return e.fail(err)
	}
	e.flushBlock()
	e.write([]byte{0x00})
	if e.err != nil {
		return e.err
	}
	e.frames++
	return nil
}

// Close writes the trailer and flushes everything buffered to the
// underlying writer. Syncing and closing a file is left to the caller.
func (e *Encoder) Close() error {
	if e.closed {
		return e.err
	}
	e.closed = true
	if e.err != nil {
		return e.err
	}
	if e.frames == 0 {
		e.err = errors.New("gifenc: no frames written")
		return e.err
	}
	e.write([]byte{0x3b})
	if e.err == nil {
		e.err = e.w.Flush()
	}
	return e.err
}

func (e *Encoder) fail(err error) error {
	if e.err == nil {
		e.err = err
	}
	return e.err
}

func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *Encoder) writeUint16(v int) {
	e.write([]byte{uint8(v), uint8(v >> 8)})
}

func (e *Encoder) flushBlock() {
	if n := e.block[0]; n > 0 {
		e.write(e.block[:int(n)+1])
		e.block[0] = 0
	}
}

// blockWriter splits LZW output into data sub-blocks of at most 255 bytes.
type blockWriter struct {
	e *Encoder
}

func (b blockWriter) Write(data []byte) (int, error) {
	for i, c := range data {
		if b.e.err != nil {
			return i, b.e.err
		}
		b.e.block[0]++
		b.e.block[b.e.block[0]] = c
		if b.e.block[0] == 255 {
			b.e.flushBlock()
		}
	}
	return len(data), b.e.err
}
