package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration, built once at startup and handed
// to the packages that need it.
type Config struct {
	DataDir  string   `toml:"data_dir"`
	TempRoot string   `toml:"temp_root"`
	Decoder  Decoder  `toml:"decoder"`
	Sync     Sync     `toml:"sync"`
	Cleanup  Cleanup  `toml:"cleanup"`
	Defaults Defaults `toml:"defaults"`
	Log      Log      `toml:"log"`
}

// Decoder holds the external libwebp tool locations.
type Decoder struct {
	DWebP       string `toml:"dwebp"`
	AnimDump    string `toml:"anim_dump"`
	FrameFormat string `toml:"frame_format"` // "png" or "tiff"
}

// Sync bounds the wait for dumped frames to land on disk.
type Sync struct {
	PollIntervalMs int `toml:"poll_interval_ms"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Cleanup controls workspace removal retries.
type Cleanup struct {
	Attempts     int `toml:"attempts"`
	RetryDelayMs int `toml:"retry_delay_ms"`
	GraceMs      int `toml:"grace_ms"`
}

// Defaults are converter-level settings applied under each job's own settings.
type Defaults struct {
	Quality        int    `toml:"quality"`
	Transparent    string `toml:"transparent"`
	AlphaThreshold int    `toml:"alpha_threshold"`
}

// Log configures the logger package.
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:  GetDataDir(),
		TempRoot: GetWorkspaceRoot(),
		Decoder: Decoder{
			DWebP:       "dwebp",
			AnimDump:    "anim_dump",
			FrameFormat: "png",
		},
		Sync:     Sync{PollIntervalMs: 50, TimeoutSeconds: 60},
		Cleanup:  Cleanup{Attempts: 3, RetryDelayMs: 200, GraceMs: 100},
		Defaults: Defaults{Quality: 10, Transparent: "0x000000", AlphaThreshold: 128},
		Log:      Log{Level: "info"},
	}
}

// PollInterval returns the frame poll interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMs) * time.Millisecond
}

// SyncTimeout returns the hard bound on waiting for frames.
func (c Config) SyncTimeout() time.Duration {
	return time.Duration(c.Sync.TimeoutSeconds) * time.Second
}

// CleanupDelay returns the pause between workspace removal attempts.
func (c Config) CleanupDelay() time.Duration {
	return time.Duration(c.Cleanup.RetryDelayMs) * time.Millisecond
}

// CleanupGrace returns the settle delay before removing a workspace after success.
func (c Config) CleanupGrace() time.Duration {
	return time.Duration(c.Cleanup.GraceMs) * time.Millisecond
}

// applyEnv overrides fields from WEBPCONV_* environment variables.
func (c *Config) applyEnv() {
	setString(&c.DataDir, "WEBPCONV_DATA_DIR")
	setString(&c.TempRoot, "WEBPCONV_TEMP_ROOT")
	setString(&c.Decoder.DWebP, "WEBPCONV_DWEBP")
	setString(&c.Decoder.AnimDump, "WEBPCONV_ANIM_DUMP")
	setString(&c.Decoder.FrameFormat, "WEBPCONV_FRAME_FORMAT")
	setInt(&c.Sync.PollIntervalMs, "WEBPCONV_POLL_INTERVAL_MS")
	setInt(&c.Sync.TimeoutSeconds, "WEBPCONV_SYNC_TIMEOUT_SECONDS")
	setInt(&c.Cleanup.Attempts, "WEBPCONV_CLEANUP_ATTEMPTS")
	setInt(&c.Cleanup.RetryDelayMs, "WEBPCONV_CLEANUP_RETRY_DELAY_MS")
	setInt(&c.Cleanup.GraceMs, "WEBPCONV_CLEANUP_GRACE_MS")
	setInt(&c.Defaults.Quality, "WEBPCONV_QUALITY")
	setString(&c.Defaults.Transparent, "WEBPCONV_TRANSPARENT")
	setInt(&c.Defaults.AlphaThreshold, "WEBPCONV_ALPHA_THRESHOLD")
	setString(&c.Log.Level, "WEBPCONV_LOG_LEVEL")
	setString(&c.Log.File, "WEBPCONV_LOG_FILE")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// GetDataDir returns the directory holding the history and credential stores.
// WEBPCONV_DATA_DIR is read at call time so it can change without a restart.
func GetDataDir() string {
	if dir := os.Getenv("WEBPCONV_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetWorkspaceRoot returns the process-wide parent of per-job workspaces.
func GetWorkspaceRoot() string {
	if dir := os.Getenv("WEBPCONV_TEMP_ROOT"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "webpconv")
}

// CredentialsDBPath, FailuresDBPath and SuccessDBPath resolve store paths
// against a loaded Config rather than the environment.
func (c Config) CredentialsDBPath() string { return filepath.Join(c.DataDir, "credentials.db") }
func (c Config) FailuresDBPath() string    { return filepath.Join(c.DataDir, "failures.db") }
func (c Config) SuccessDBPath() string     { return filepath.Join(c.DataDir, "success.db") }
