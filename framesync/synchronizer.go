// Package framesync waits for an out-of-process frame dump to become visible
// on disk. The decoder gives no completion signal other than its exit, and
// its files may still be landing when it exits.
package framesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"webpconv/logger"
	"webpconv/models"
)

var frameIndex = regexp.MustCompile(`(\d+)\.[A-Za-z]+$`)

// FrameIndex returns the numeric frame index embedded at the end of a frame
// file name, e.g. 12 for "dump_0012.png".
func FrameIndex(name string) (int, bool) {
	m := frameIndex.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortFrames orders frame paths by numeric index, so "f_10" follows "f_9".
func SortFrames(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		a, _ := FrameIndex(paths[i])
		b, _ := FrameIndex(paths[j])
		if a != b {
			return a < b
		}
		return paths[i] < paths[j]
	})
}

// ListFrames returns the indexed frame files in dir, sorted numerically.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := FrameIndex(e.Name()); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	SortFrames(paths)
	return paths, nil
}

// Synchronizer polls a workspace at Interval for at most Timeout.
type Synchronizer struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Wait blocks until dir holds expected frame files and the decoder has
// exited, then returns the first expected frames in index order.
//
// exited may be nil for a decoder with no exit signal; the file count alone
// then decides. A non-nil error on exited is returned as soon as it arrives.
// A clean exit with frames still missing keeps polling until Timeout, which
// yields a *models.SynchronizationTimeoutError.
func (s Synchronizer) Wait(ctx context.Context, dir string, expected int, exited <-chan error) ([]string, error) {
	if expected <= 0 {
		return nil, fmt.Errorf("framesync: expected frame count must be positive, got %d", expected)
	}
	if s.Interval <= 0 || s.Timeout <= 0 {
		return nil, errors.New("framesync: interval and timeout must be positive")
	}

	start := time.Now()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.Timeout)
	defer deadline.Stop()

	done := exited == nil
	observed := 0
	for {
		if !done {
			select {
			case err, ok := <-exited:
				if ok && err != nil {
					return nil, err
				}
				done = true
				exited = nil
			default:
			}
		}

		paths, err := ListFrames(dir)
		if err != nil {
			return nil, fmt.Errorf("framesync: listing %s: %w", dir, err)
		}
		observed = len(paths)
		if observed >= expected && done {
			if observed > expected {
				logger.Warnf("workspace %s holds %d frame files, expected %d; using the first %d", dir, observed, expected, expected)
			}
			logger.Debugf("%d frames synced in %s after %s", expected, dir, time.Since(start))
			return paths[:expected], nil
		}

		select {
		case err, ok := <-exited:
			if ok && err != nil {
				return nil, err
			}
			done = true
			exited = nil
		case <-ticker.C:
		case <-deadline.C:
			return nil, &models.SynchronizationTimeoutError{
				Dir:      dir,
				Expected: expected,
				Observed: observed,
				Waited:   time.Since(start),
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
