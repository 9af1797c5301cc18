package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"webpconv/compositor"
	"webpconv/gifenc"
	"webpconv/logger"
	"webpconv/models"
	"webpconv/success"
	"webpconv/workspace"
	writerbackends "webpconv/writerBackends"
)

// process runs one validated job and records the outcome in the history.
func (c *Converter) process(ctx context.Context, j models.ConversionJob, eff models.EffectiveSettings) (string, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	start := time.Now()
	output, animated := ResolveOutput(j.Input, j.Output)
	mode := "static"
	if animated {
		mode = "animated"
	}
	logger.Infof("Processing job %s: %s -> %s (%s)", j.ID, j.Input, output, mode)

	frames, err := c.run(ctx, j.Input, output, animated, eff)
	published := ""
	if err == nil && c.opts.Publish != nil {
		err = c.publish(ctx, output)
		published = c.opts.Publish.Type
	}
	if err != nil {
		logger.Errorf("Job %s failed: %v", j.ID, err)
		c.storeFailure(j, output, err)
		return "", err
	}

	c.storeSuccess(success.SuccessRecord{
		ID:         j.ID,
		Input:      j.Input,
		Output:     output,
		Mode:       mode,
		FrameCount: frames,
		Settings:   eff,
		Published:  published,
		DurationMs: time.Since(start).Milliseconds(),
	})
	logger.Infof("Successfully processed job %s in %s", j.ID, time.Since(start).Round(time.Millisecond))
	return output, nil
}

func (c *Converter) run(ctx context.Context, input, output string, animated bool, eff models.EffectiveSettings) (int, error) {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return 0, &models.EncodingError{Path: output, Err: fmt.Errorf("failed to create output directory: %w", err)}
	}
	if !animated {
		return 1, c.convertStatic(ctx, input, output)
	}
	return c.convertAnimated(ctx, input, output, eff)
}

// convertStatic writes the decoder's PNG bytes unchanged.
func (c *Converter) convertStatic(ctx context.Context, input, output string) error {
	data, err := c.dec.DecodeStatic(ctx, input)
	if err != nil {
		return err
	}
	out, err := createOutput(output)
	if err != nil {
		return err
	}
	if _, err := out.f.Write(data); err != nil {
		return out.abort(err)
	}
	return out.finish()
}

// convertAnimated dumps the frames into a workspace, waits for them, and
// streams them through the compositor into the GIF encoder. The workspace is
// released on every path; a cleanup failure is only logged.
func (c *Converter) convertAnimated(ctx context.Context, input, output string, eff models.EffectiveSettings) (frames int, err error) {
	ws, err := workspace.New(c.opts.WorkspaceRoot, input, c.opts.Workspace)
	if err != nil {
		return 0, err
	}
	dumpCtx, cancel := context.WithCancel(ctx)
	var exited <-chan error
	defer func() {
		// the decoder must be gone before its directory is removed
		cancel()
		awaitExit(exited, decoderExitWait)
		// Release already logs a CleanupWarning.
		_ = ws.Release(err == nil)
	}()

	dump, err := c.dec.DumpFrames(dumpCtx, input, ws.Dir())
	if err != nil {
		return 0, err
	}
	exited = dump.Exited
	if err = ws.Advance(workspace.Populated); err != nil {
		return 0, err
	}
	meta := dump.Metadata

	paths, err := c.opts.Sync.Wait(ctx, ws.Dir(), meta.FrameCount, dump.Exited)
	if err != nil {
		return 0, err
	}
	if err = ws.Advance(workspace.Synced); err != nil {
		return 0, err
	}

	comp, err := compositor.New(meta, c.opts.AlphaThreshold)
	if err != nil {
		return 0, &models.ExternalProcessError{Tool: "frame dump", Err: err}
	}
	out, err := createOutput(output)
	if err != nil {
		return 0, err
	}
	enc, err := gifenc.NewEncoder(out.f, gifenc.Options{
		Width:       comp.Width,
		Height:      comp.Height,
		Quality:     eff.Quality,
		Transparent: eff.Transparent,
		LoopCount:   meta.LoopCount,
	})
	if err != nil {
		return 0, out.abort(err)
	}

	for i, path := range paths {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, out.abort(ctxErr)
		}
		frame, loadErr := comp.Load(path, i, meta.Delay(i))
		if loadErr != nil {
			out.abort(nil)
			return 0, &models.ExternalProcessError{Tool: "frame dump", Err: loadErr}
		}
		if encErr := enc.AddFrame(frame.Image, frame.DelayMs); encErr != nil {
			return 0, out.abort(encErr)
		}
	}
	if err = enc.Close(); err != nil {
		return 0, out.abort(err)
	}
	if err = ws.Advance(workspace.Consumed); err != nil {
		return 0, out.abort(err)
	}
	if err = out.finish(); err != nil {
		return 0, err
	}
	logger.Debugf("encoded %d frames into %s", enc.Frames(), output)
	return enc.Frames(), nil
}

// decoderExitWait bounds how long a cancelled decoder gets to exit before
// its workspace is removed anyway.
const decoderExitWait = 2 * time.Second

// awaitExit drains exited until the decoder closes it or bound passes.
func awaitExit(exited <-chan error, bound time.Duration) {
	if exited == nil {
		return
	}
	timer := time.NewTimer(bound)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-exited:
			if !ok {
				return
			}
		case <-timer.C:
			logger.Warnf("decoder still running %s after cancel; removing its workspace anyway", bound)
			return
		}
	}
}

// outputFile is a file being written as a job result. A failed write removes
// the partial file.
type outputFile struct {
	path string
	f    *os.File
}

func createOutput(path string) (*outputFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &models.EncodingError{Path: path, Err: err}
	}
	return &outputFile{path: path, f: f}, nil
}

// finish returns only once the data has reached the disk.
func (o *outputFile) finish() error {
	if err := o.f.Sync(); err != nil {
		return o.abort(err)
	}
	if err := o.f.Close(); err != nil {
		os.Remove(o.path)
		return &models.EncodingError{Path: o.path, Err: err}
	}
	return nil
}

// abort closes and removes the partial output. A nil cause just cleans up.
func (o *outputFile) abort(cause error) error {
	o.f.Close()
	if err := os.Remove(o.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("failed to remove partial output %s: %v", o.path, err)
	}
	if cause == nil {
		return nil
	}
	var enc *models.EncodingError
	if errors.As(cause, &enc) || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return &models.EncodingError{Path: o.path, Err: cause}
}

func isPublishTarget(backend string) bool {
	return writerbackends.IsBackend(backend)
}

// publish streams the finished output to the configured backend.
func (c *Converter) publish(ctx context.Context, output string) error {
	p := c.opts.Publish
	if err := writerbackends.PublishFile(ctx, p.Type, p.Credentials, output); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", output, p.Type, err)
	}
	logger.Infof("Published %s to %s", output, p.Type)
	return nil
}

// storeFailure records a processing failure; a history error never changes
// the job's result.
func (c *Converter) storeFailure(j models.ConversionJob, output string, err error) {
	if c.opts.History == nil {
		return
	}
	if storeErr := c.opts.History.RecordFailure(j.ID, j, output, err); storeErr != nil {
		logger.Errorf("Failed to store failure record for %s: %v", j.ID, storeErr)
	}
}

func (c *Converter) storeSuccess(record success.SuccessRecord) {
	if c.opts.History == nil {
		return
	}
	if err := c.opts.History.RecordSuccess(record); err != nil {
		logger.Errorf("Failed to store success record for %s: %v", record.ID, err)
	}
}
