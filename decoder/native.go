package decoder

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/webp"

	"webpconv/container"
	"webpconv/logger"
	"webpconv/models"
)

// Native decodes in-process with golang.org/x/image/webp. It has no
// animation support, so DumpFrames only handles single-frame files.
type Native struct{}

func (Native) DecodeStatic(ctx context.Context, inputPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return decodeToPNG(inputPath)
}

func (Native) DumpFrames(ctx context.Context, inputPath, workspaceDir string) (*FrameDump, error) {
	meta, err := container.ReadMetadata(inputPath)
	if err != nil {
		return nil, &models.ExternalProcessError{Tool: "webp", Err: err}
	}
	if meta.FrameCount > 1 {
		return nil, &models.ExternalProcessError{
			Tool: "webp",
			Err:  errors.New("animated input needs anim_dump; the in-process decoder reads single frames only"),
		}
	}

	exited := make(chan error, 1)
	go func() {
		defer close(exited)
		if err := ctx.Err(); err != nil {
			exited <- err
			return
		}
		data, err := decodeToPNG(inputPath)
		if err == nil {
			err = os.WriteFile(filepath.Join(workspaceDir, FramePrefix+"0000.png"), data, 0o644)
		}
		if err != nil {
			exited <- &models.ExternalProcessError{Tool: "webp", Err: err}
			return
		}
		exited <- nil
	}()
	return &FrameDump{Metadata: meta, Exited: exited}, nil
}

func decodeToPNG(inputPath string) ([]byte, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, &models.ExternalProcessError{Tool: "webp", Err: err}
	}
	defer f.Close()

	img, err := webp.Decode(f)
	if err != nil {
		return nil, &models.ExternalProcessError{Tool: "webp", Err: err}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &models.ExternalProcessError{Tool: "png", Err: err}
	}
	logger.Debugf("decoded %s in-process (%d bytes PNG)", inputPath, buf.Len())
	return buf.Bytes(), nil
}
