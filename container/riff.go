// Package container inspects the RIFF structure of WebP files without
// decoding any pixel data.
package container

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/image/riff"

	"webpconv/models"
)

var (
	ErrNotWebP   = errors.New("container: not a RIFF/WEBP file")
	ErrTruncated = errors.New("container: truncated chunk")
	ErrNoImage   = errors.New("container: no image data")
)

var fourCCWEBP = riff.FourCC{'W', 'E', 'B', 'P'}

const (
	flagAnimation = 0x02
	flagAlpha     = 0x10

	vp8lSignature = 0x2f
)

// Frame is one ANMF entry, or the single image of a still file.
type Frame struct {
	OffsetX, OffsetY int
	Width, Height    int
	DelayMs          int
}

// Info is what the container says about a WebP file.
type Info struct {
	Format    string // "VP8", "VP8L" or "VP8X"
	Width     int
	Height    int
	HasAlpha  bool
	Animated  bool
	LoopCount int
	Frames    []Frame
}

// Metadata converts Info into the pipeline's animation metadata.
func (i *Info) Metadata() models.AnimationMetadata {
	m := models.AnimationMetadata{
		FrameCount:   len(i.Frames),
		LoopCount:    i.LoopCount,
		CanvasWidth:  i.Width,
		CanvasHeight: i.Height,
		Frames:       make([]models.FrameMeta, len(i.Frames)),
	}
	for n, f := range i.Frames {
		m.Frames[n].DelayMs = f.DelayMs
	}
	return m
}

// IsAnimated reports whether the file carries an animation marker: the VP8X
// animation flag or an ANIM/ANMF chunk. Only chunk headers are read.
func IsAnimated(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	animated, sawChunk := false, false
	err = walk(bufio.NewReader(f), func(id string, _ uint32, data io.Reader) (bool, error) {
		sawChunk = true
		switch id {
		case "ANIM", "ANMF":
			animated = true
			return true, nil
		case "VP8X":
			var flags [1]byte
			if _, err := io.ReadFull(data, flags[:]); err != nil {
				return true, ErrTruncated
			}
			if flags[0]&flagAnimation != 0 {
				animated = true
				return true, nil
			}
		case "VP8 ", "VP8L":
			// image data before any animation chunk means a still image
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	if !sawChunk {
		return false, ErrNoImage
	}
	return animated, nil
}

// walk hands each top-level chunk of a RIFF/WEBP stream to fn until fn asks
// to stop or the chunks run out.
func walk(r io.Reader, fn func(id string, size uint32, data io.Reader) (stop bool, err error)) error {
	formType, rr, err := riff.NewReader(r)
	if err != nil || formType != fourCCWEBP {
		return ErrNotWebP
	}
	for {
		id, size, data, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		stop, err := fn(string(id[:]), size, data)
		if err != nil || stop {
			return err
		}
	}
}

// ReadMetadata parses the file at path and returns its animation metadata.
// A still image yields one frame with a zero delay.
func ReadMetadata(path string) (models.AnimationMetadata, error) {
	info, err := ParseFile(path)
	if err != nil {
		return models.AnimationMetadata{}, err
	}
	return info.Metadata(), nil
}

// ParseFile reads and parses a WebP file.
func ParseFile(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

type chunk struct {
	fourcc  string
	payload []byte
}

func readChunks(r io.Reader) ([]chunk, error) {
	var chunks []chunk
	err := walk(r, func(id string, size uint32, data io.Reader) (bool, error) {
		payload, err := io.ReadAll(data)
		if err != nil || uint32(len(payload)) != size {
			return true, ErrTruncated
		}
		chunks = append(chunks, chunk{fourcc: id, payload: payload})
		return false, nil
	})
	return chunks, err
}

// Parse parses a complete WebP file held in memory.
func Parse(data []byte) (*Info, error) {
	chunks, err := readChunks(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoImage
	}

	info := &Info{}
	switch chunks[0].fourcc {
	case "VP8 ", "VP8L":
		w, h, alpha, err := bitstreamSize(chunks[0])
		if err != nil {
			return nil, err
		}
		info.Format = trimFourCC(chunks[0].fourcc)
		info.Width, info.Height, info.HasAlpha = w, h, alpha
		info.Frames = []Frame{{Width: w, Height: h}}
		return info, nil
	case "VP8X":
	default:
		return nil, fmt.Errorf("container: unexpected first chunk %q", chunks[0].fourcc)
	}

	vp8x := chunks[0].payload
	if len(vp8x) < 10 {
		return nil, ErrTruncated
	}
	info.Format = "VP8X"
	info.Animated = vp8x[0]&flagAnimation != 0
	info.HasAlpha = vp8x[0]&flagAlpha != 0
	info.Width = int(uint24(vp8x[4:7])) + 1
	info.Height = int(uint24(vp8x[7:10])) + 1

	for _, c := range chunks[1:] {
		switch c.fourcc {
		case "ANIM":
			if len(c.payload) < 6 {
				return nil, ErrTruncated
			}
			info.Animated = true
			info.LoopCount = int(binary.LittleEndian.Uint16(c.payload[4:6]))
		case "ANMF":
			if len(c.payload) < 16 {
				return nil, ErrTruncated
			}
			p := c.payload
			info.Animated = true
			info.Frames = append(info.Frames, Frame{
				OffsetX: int(uint24(p[0:3])) * 2,
				OffsetY: int(uint24(p[3:6])) * 2,
				Width:   int(uint24(p[6:9])) + 1,
				Height:  int(uint24(p[9:12])) + 1,
				DelayMs: int(uint24(p[12:15])),
			})
		case "VP8 ", "VP8L":
			if !info.Animated && len(info.Frames) == 0 {
				info.Frames = []Frame{{Width: info.Width, Height: info.Height}}
			}
		}
	}
	if len(info.Frames) == 0 {
		return nil, ErrNoImage
	}
	return info, nil
}

// bitstreamSize reads dimensions from a VP8 key frame header or a VP8L header.
func bitstreamSize(c chunk) (w, h int, alpha bool, err error) {
	p := c.payload
	switch c.fourcc {
	case "VP8L":
		if len(p) < 5 || p[0] != vp8lSignature {
			return 0, 0, false, fmt.Errorf("container: bad VP8L header")
		}
		bits := binary.LittleEndian.Uint32(p[1:5])
		w = int(bits&0x3fff) + 1
		h = int((bits>>14)&0x3fff) + 1
		alpha = (bits>>28)&1 == 1
		return w, h, alpha, nil
	default:
		if len(p) < 10 || p[3] != 0x9d || p[4] != 0x01 || p[5] != 0x2a {
			return 0, 0, false, fmt.Errorf("container: bad VP8 header")
		}
		w = int(binary.LittleEndian.Uint16(p[6:8]) & 0x3fff)
		h = int(binary.LittleEndian.Uint16(p[8:10]) & 0x3fff)
		return w, h, false, nil
	}
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func trimFourCC(s string) string {
	if s == "VP8 " {
		return "VP8"
	}
	return s
}
