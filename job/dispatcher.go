// Package job validates conversion requests and drives each one through the
// static or animated pipeline, strictly one job at a time.
package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webpconv/config"
	"webpconv/decoder"
	"webpconv/framesync"
	"webpconv/gifenc"
	"webpconv/models"
	"webpconv/workspace"
)

// Options are the converter-level settings shared by every job in a batch.
type Options struct {
	Defaults *models.Settings
	// AlphaThreshold is handed to the compositor; 0 disables thresholding.
	AlphaThreshold int
	WorkspaceRoot  string
	Workspace      workspace.Options
	Sync           framesync.Synchronizer
	History        History            // optional
	Publish        *models.PublishJob // optional
}

// OptionsFromConfig maps the process configuration onto converter options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Defaults: &models.Settings{
			Quality:     models.IntPtr(cfg.Defaults.Quality),
			Transparent: models.StringPtr(cfg.Defaults.Transparent),
		},
		AlphaThreshold: cfg.Defaults.AlphaThreshold,
		WorkspaceRoot:  cfg.TempRoot,
		Workspace: workspace.Options{
			Attempts:   cfg.Cleanup.Attempts,
			RetryDelay: cfg.CleanupDelay(),
			Grace:      cfg.CleanupGrace(),
		},
		Sync: framesync.Synchronizer{Interval: cfg.PollInterval(), Timeout: cfg.SyncTimeout()},
	}
}

// Converter runs conversion jobs against one decoder.
type Converter struct {
	dec  decoder.Decoder
	opts Options
}

// NewConverter checks the converter-level options once, so a bad default is
// reported before any job is looked at.
func NewConverter(dec decoder.Decoder, opts Options) (*Converter, error) {
	if dec == nil {
		return nil, fmt.Errorf("job: decoder is required")
	}
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = config.GetWorkspaceRoot()
	}
	if opts.Sync.Interval <= 0 {
		opts.Sync.Interval = 50 * time.Millisecond
	}
	if opts.Sync.Timeout <= 0 {
		opts.Sync.Timeout = time.Minute
	}
	if opts.AlphaThreshold < 0 || opts.AlphaThreshold > 255 {
		return nil, fmt.Errorf("job: alpha threshold %d out of range", opts.AlphaThreshold)
	}
	if _, err := checkSettings(-1, "", models.MergeSettings(opts.Defaults, nil)); err != nil {
		return nil, fmt.Errorf("job: converter defaults: %w", err)
	}
	if opts.Publish != nil && !isPublishTarget(opts.Publish.Type) {
		return nil, fmt.Errorf("job: unknown publish backend %q", opts.Publish.Type)
	}
	return &Converter{dec: dec, opts: opts}, nil
}

// WithDefaults returns a converter whose defaults are layered under defaults,
// e.g. the defaults block of a batch manifest.
func (c *Converter) WithDefaults(defaults *models.Settings) (*Converter, error) {
	if defaults == nil {
		return c, nil
	}
	eff := models.MergeSettings(c.opts.Defaults, defaults)
	if _, err := checkSettings(-1, "", eff); err != nil {
		return nil, fmt.Errorf("manifest defaults: %w", err)
	}
	next := *c
	next.opts.Defaults = &models.Settings{Quality: &eff.Quality, Transparent: &eff.Transparent}
	return &next, nil
}

// Validate checks one job and returns the settings it will run with. index is
// the job's batch position, or -1 for a single job. It has no side effects.
func (c *Converter) Validate(index int, j models.ConversionJob) (models.EffectiveSettings, error) {
	invalid := func(format string, args ...any) error {
		return &models.ValidationError{Index: index, Input: j.Input, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(j.Input) == "" {
		return models.EffectiveSettings{}, invalid("input is required")
	}
	if filepath.Ext(j.Input) != ".webp" {
		return models.EffectiveSettings{}, invalid("input must have the .webp extension")
	}
	info, err := os.Stat(j.Input)
	switch {
	case os.IsNotExist(err):
		return models.EffectiveSettings{}, invalid("input does not exist")
	case err != nil:
		return models.EffectiveSettings{}, invalid("cannot stat input: %v", err)
	case !info.Mode().IsRegular():
		return models.EffectiveSettings{}, invalid("input is not a regular file")
	}
	if j.Output != "" {
		switch strings.ToLower(filepath.Ext(j.Output)) {
		case ".gif", ".png":
		default:
			return models.EffectiveSettings{}, invalid("output %q must end in .gif or .png", j.Output)
		}
	}

	return checkSettings(index, j.Input, models.MergeSettings(c.opts.Defaults, j.Settings))
}

func checkSettings(index int, input string, eff models.EffectiveSettings) (models.EffectiveSettings, error) {
	if eff.Quality < 0 || eff.Quality > 100 {
		return eff, &models.ValidationError{Index: index, Input: input, Reason: fmt.Sprintf("quality %d is outside 0-100", eff.Quality)}
	}
	if _, err := gifenc.ParseTransparent(eff.Transparent); err != nil {
		return eff, &models.ValidationError{Index: index, Input: input, Reason: err.Error()}
	}
	return eff, nil
}

// Convert validates and runs a single job, returning its output path.
func (c *Converter) Convert(ctx context.Context, j models.ConversionJob) (string, error) {
	eff, err := c.Validate(-1, j)
	if err != nil {
		return "", err
	}
	return c.process(ctx, j, eff)
}

// ConvertAll validates every job before running any, then runs them in order.
// The first processing error aborts the rest of the batch; outputs already
// written stay on disk but are not reported.
func (c *Converter) ConvertAll(ctx context.Context, jobs []models.ConversionJob) ([]string, error) {
	if len(jobs) == 0 {
		return nil, &models.ValidationError{Index: -1, Reason: "batch has no jobs"}
	}

	settings := make([]models.EffectiveSettings, len(jobs))
	for i, j := range jobs {
		eff, err := c.Validate(i, j)
		if err != nil {
			return nil, err
		}
		settings[i] = eff
	}

	outputs := make([]string, 0, len(jobs))
	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled before job %d: %w", i, err)
		}
		out, err := c.process(ctx, j, settings[i])
		if err != nil {
			return nil, fmt.Errorf("job %d (%s): %w", i, j.Input, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// ConvertManifest runs a decoded batch document with its defaults applied.
func (c *Converter) ConvertManifest(ctx context.Context, m *models.Manifest) ([]string, error) {
	conv, err := c.WithDefaults(m.Defaults)
	if err != nil {
		return nil, err
	}
	return conv.ConvertAll(ctx, m.Jobs)
}
