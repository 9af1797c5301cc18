package decoder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"webpconv/config"
	"webpconv/logger"
	"webpconv/models"
)

// Decoder turns WebP input into raster data. DecodeStatic blocks until the
// whole PNG is available. DumpFrames only starts the dump: frame files land
// in workspaceDir asynchronously and Exited reports how the dump ended.
type Decoder interface {
	DecodeStatic(ctx context.Context, inputPath string) ([]byte, error)
	DumpFrames(ctx context.Context, inputPath, workspaceDir string) (*FrameDump, error)
}

// FrameDump is a running frame dump. Exited receives exactly one value
// (nil on a clean exit) and is then closed.
type FrameDump struct {
	Metadata models.AnimationMetadata
	Exited   <-chan error
}

// FramePrefix is the file name prefix every decoder uses for dumped frames.
const FramePrefix = "dump_"

// FromConfig returns the libwebp decoder when both tools are on PATH,
// otherwise the in-process decoder, which cannot dump animations.
func FromConfig(cfg config.Decoder) Decoder {
	dwebp := available("dwebp", cfg.DWebP)
	animDump := available("anim_dump", cfg.AnimDump)
	if dwebp && animDump {
		logger.Debugf("decoder [libwebp] selected (dwebp: %s, anim_dump: %s)", cfg.DWebP, cfg.AnimDump)
		return &LibWebP{DWebP: cfg.DWebP, AnimDump: cfg.AnimDump, FrameFormat: cfg.FrameFormat}
	}
	logger.Warnf("decoder [native] selected: animated input will fail until dwebp and anim_dump are installed")
	return Native{}
}

func available(name, cmd string) bool {
	if _, err := exec.LookPath(cmd); err != nil {
		logger.Warnf("decoder tool [%s] skipped: command '%s' not found in PATH", name, cmd)
		return false
	}
	return true
}

// ToolStatus reports whether one external tool can be run.
type ToolStatus struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// CheckTools reports the availability of the configured libwebp tools.
func CheckTools(cfg config.Decoder) []ToolStatus {
	reqs := []ToolStatus{
		{Name: "dwebp", Command: cfg.DWebP, Description: "static WebP to PNG decode"},
		{Name: "anim_dump", Command: cfg.AnimDump, Description: "animated WebP frame dump"},
	}
	for i := range reqs {
		cmd := strings.TrimSpace(reqs[i].Command)
		reqs[i].Command = cmd
		switch {
		case cmd == "":
			reqs[i].Detail = "command not configured"
		default:
			path, err := exec.LookPath(cmd)
			if err != nil {
				reqs[i].Detail = fmt.Sprintf("binary %q not found", cmd)
				continue
			}
			reqs[i].Available = true
			reqs[i].Detail = path
		}
	}
	return reqs
}
