package decoder

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"webpconv/container"
	"webpconv/logger"
	"webpconv/models"
)

// LibWebP drives the libwebp command line tools.
type LibWebP struct {
	DWebP       string
	AnimDump    string
	FrameFormat string // "png" or "tiff"
}

// DecodeStatic runs dwebp and returns the PNG it writes to stdout.
func (d *LibWebP) DecodeStatic(ctx context.Context, inputPath string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.DWebP, inputPath, "-o", "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &models.ExternalProcessError{Tool: "dwebp", Stderr: stderr.String(), Err: err}
	}
	if stdout.Len() == 0 {
		return nil, &models.ExternalProcessError{Tool: "dwebp", Stderr: stderr.String(), Err: errors.New("empty output")}
	}
	logger.Debugf("dwebp decoded %s (%d bytes)", inputPath, stdout.Len())
	return stdout.Bytes(), nil
}

// DumpFrames reads the animation metadata from the container and starts
// anim_dump writing one file per frame into workspaceDir.
func (d *LibWebP) DumpFrames(ctx context.Context, inputPath, workspaceDir string) (*FrameDump, error) {
	meta, err := container.ReadMetadata(inputPath)
	if err != nil {
		return nil, &models.ExternalProcessError{Tool: "anim_dump", Err: err}
	}

	args := []string{"-folder", workspaceDir, "-prefix", FramePrefix}
	if strings.EqualFold(d.FrameFormat, "tiff") {
		args = append(args, "-tiff")
	}
	args = append(args, inputPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.AnimDump, args...)
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, &models.ExternalProcessError{Tool: "anim_dump", Err: err}
	}
	logger.Debugf("anim_dump started for %s (%d frames) into %s", inputPath, meta.FrameCount, workspaceDir)

	exited := make(chan error, 1)
	go func() {
		defer close(exited)
		if err := cmd.Wait(); err != nil {
			exited <- &models.ExternalProcessError{Tool: "anim_dump", Stderr: stderr.String(), Err: err}
			return
		}
		exited <- nil
	}()
	return &FrameDump{Metadata: meta, Exited: exited}, nil
}
