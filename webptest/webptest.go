// Package webptest builds small WebP containers and frame files for tests.
// The containers are structurally valid (chunk layout, headers, dimensions,
// timings) but the bitstreams carry no decodable pixels.
package webptest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Animated returns an animated WebP container with one ANMF chunk per delay.
func Animated(width, height int, delays []int, loopCount int) []byte {
	var body bytes.Buffer

	vp8x := make([]byte, 10)
	vp8x[0] = 0x02 | 0x10 // animation + alpha
	putUint24(vp8x[4:7], uint32(width-1))
	putUint24(vp8x[7:10], uint32(height-1))
	writeChunk(&body, "VP8X", vp8x)

	anim := make([]byte, 6)
	binary.LittleEndian.PutUint16(anim[4:6], uint16(loopCount))
	writeChunk(&body, "ANIM", anim)

	for _, d := range delays {
		var frame bytes.Buffer
		hdr := make([]byte, 16)
		putUint24(hdr[6:9], uint32(width-1))
		putUint24(hdr[9:12], uint32(height-1))
		putUint24(hdr[12:15], uint32(d))
		frame.Write(hdr)
		writeChunk(&frame, "VP8L", vp8lHeader(width, height, true))
		writeChunk(&body, "ANMF", frame.Bytes())
	}
	return riff(body.Bytes())
}

// Static returns a simple (VP8L) still-image container.
func Static(width, height int) []byte {
	var body bytes.Buffer
	writeChunk(&body, "VP8L", vp8lHeader(width, height, false))
	return riff(body.Bytes())
}

// ExtendedStatic returns a VP8X container without the animation flag.
func ExtendedStatic(width, height int) []byte {
	var body bytes.Buffer
	vp8x := make([]byte, 10)
	vp8x[0] = 0x10
	putUint24(vp8x[4:7], uint32(width-1))
	putUint24(vp8x[7:10], uint32(height-1))
	writeChunk(&body, "VP8X", vp8x)
	writeChunk(&body, "VP8L", vp8lHeader(width, height, true))
	return riff(body.Bytes())
}

// FramePNG encodes a width x height image filled with c.
func FramePNG(width, height int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func vp8lHeader(width, height int, alpha bool) []byte {
	bits := uint32(width-1)&0x3fff | (uint32(height-1)&0x3fff)<<14
	if alpha {
		bits |= 1 << 28
	}
	p := make([]byte, 8)
	p[0] = 0x2f
	binary.LittleEndian.PutUint32(p[1:5], bits)
	return p
}

func riff(body []byte) []byte {
	out := make([]byte, 12, 12+len(body))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(4+len(body)))
	copy(out[8:12], "WEBP")
	return append(out, body...)
}

func writeChunk(w *bytes.Buffer, fourcc string, payload []byte) {
	var hdr [8]byte
	copy(hdr[0:4], fourcc)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	w.Write(hdr[:])
	w.Write(payload)
	if len(payload)%2 == 1 {
		w.WriteByte(0)
	}
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// WriteScript writes an executable shell script standing in for an external
// tool and returns its path. Tests that use it are skipped on Windows.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
	return path
}

// FakeAnimDump is an anim_dump stand-in that copies every file found in the
// directory named by $WEBPCONV_FAKE_FRAMES into the -folder argument.
const FakeAnimDump = `dir=""
while [ $# -gt 1 ]; do
  case "$1" in
    -folder) dir="$2"; shift 2 ;;
    -prefix) shift 2 ;;
    *) shift ;;
  esac
done
[ -n "$dir" ] || { echo "missing -folder" >&2; exit 1; }
for f in "$WEBPCONV_FAKE_FRAMES"/*; do
  [ -e "$f" ] || continue
  cp "$f" "$dir/" || exit 1
done`

// FakeDWebP is a dwebp stand-in that writes its input file unchanged to stdout.
const FakeDWebP = `cat "$1"`
