package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Load builds the configuration: defaults, then the TOML file at path (or
// WEBPCONV_CONFIG when path is empty), then environment overrides.
// A missing file is only an error when a path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = strings.TrimSpace(os.Getenv("WEBPCONV_CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			dec := toml.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Decoder.FrameFormat = strings.ToLower(strings.TrimSpace(cfg.Decoder.FrameFormat))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.TempRoot) == "" {
		problems = append(problems, "temp_root must be set")
	}
	switch strings.ToLower(c.Decoder.FrameFormat) {
	case "png", "tiff":
	default:
		problems = append(problems, fmt.Sprintf("decoder.frame_format: unsupported value %q", c.Decoder.FrameFormat))
	}
	if c.Sync.PollIntervalMs <= 0 {
		problems = append(problems, "sync.poll_interval_ms must be positive")
	}
	if c.Sync.TimeoutSeconds <= 0 {
		problems = append(problems, "sync.timeout_seconds must be positive")
	}
	if c.Cleanup.Attempts < 1 {
		problems = append(problems, "cleanup.attempts must be at least 1")
	}
	if c.Defaults.Quality < 0 || c.Defaults.Quality > 100 {
		problems = append(problems, "defaults.quality must be within 0-100")
	}
	if c.Defaults.AlphaThreshold < 0 || c.Defaults.AlphaThreshold > 255 {
		problems = append(problems, "defaults.alpha_threshold must be within 0-255")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
