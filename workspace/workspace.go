// Package workspace owns the per-job scratch directories that hold dumped
// animation frames.
package workspace

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"webpconv/logger"
	"webpconv/models"
)

// State is a workspace lifecycle stage. Stages only move forward.
type State int

const (
	Created State = iota
	Populated
	Synced
	Consumed
	Released
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Populated:
		return "populated"
	case Synced:
		return "synced"
	case Consumed:
		return "consumed"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options controls removal. Sleep and RemoveAll default to time.Sleep and
// os.RemoveAll; tests swap them out.
type Options struct {
	Attempts   int
	RetryDelay time.Duration
	Grace      time.Duration
	Sleep      func(time.Duration)
	RemoveAll  func(string) error
}

func (o *Options) fill() {
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.RemoveAll == nil {
		o.RemoveAll = os.RemoveAll
	}
}

// Workspace is one job's frame directory. It is used by a single goroutine.
type Workspace struct {
	dir   string
	state State
	opts  Options
}

// DirFor returns the workspace directory for input under root. The name keeps
// the input's basename for readability and adds a digest of its absolute path
// so two inputs sharing a basename never collide.
func DirFor(root, input string) string {
	abs, err := filepath.Abs(input)
	if err != nil {
		abs = input
	}
	sum := sha256.Sum256([]byte(abs))
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(root, fmt.Sprintf("%s-%x", base, sum[:4]))
}

// New creates the workspace for input, force-removing a stale directory left
// behind by an earlier run.
func New(root, input string, opts Options) (*Workspace, error) {
	opts.fill()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	dir := DirFor(root, input)
	if _, err := os.Stat(dir); err == nil {
		logger.Warnf("removing stale workspace %s", dir)
		if err := opts.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove stale workspace %s: %w", dir, err)
		}
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	logger.Debugf("workspace %s created for %s", dir, input)
	return &Workspace{dir: dir, state: Created, opts: opts}, nil
}

func (w *Workspace) Dir() string { return w.dir }
func (w *Workspace) State() State { return w.state }

// Advance moves to the next lifecycle stage. Skipping a stage, going back, or
// reaching Released this way is an error; Release is the only way out.
func (w *Workspace) Advance(next State) error {
	if next == Released || next != w.state+1 {
		return fmt.Errorf("workspace %s: invalid transition %s -> %s", w.dir, w.state, next)
	}
	w.state = next
	return nil
}

// Release removes the directory tree. After a successful job it waits the
// grace delay first so the output writer can settle. Removal is retried up to
// Attempts times; if every attempt fails the returned *models.CleanupWarning
// has already been logged and must not replace the job's own result.
// Releasing twice is a no-op.
func (w *Workspace) Release(succeeded bool) error {
	if w.state == Released {
		return nil
	}
	from := w.state
	w.state = Released

	if succeeded && w.opts.Grace > 0 {
		w.opts.Sleep(w.opts.Grace)
	}

	var err error
	for attempt := 1; attempt <= w.opts.Attempts; attempt++ {
		if err = w.opts.RemoveAll(w.dir); err == nil {
			logger.Debugf("workspace %s released from %s", w.dir, from)
			return nil
		}
		logger.Warnf("workspace %s: removal attempt %d/%d failed: %v", w.dir, attempt, w.opts.Attempts, err)
		if attempt < w.opts.Attempts {
			w.opts.Sleep(w.opts.RetryDelay)
		}
	}
	warning := &models.CleanupWarning{Dir: w.dir, Attempts: w.opts.Attempts, Err: err}
	logger.Warnf("%v", warning)
	return warning
}

// RootLock is an exclusive lock on a workspace root held for a batch, so that
// another process cannot treat a live workspace as stale.
type RootLock struct {
	path string
	lock *flock.Flock
}

// LockRoot takes the root's lock without blocking.
func LockRoot(root string) (*RootLock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	path := filepath.Join(root, ".lock")
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("workspace root %s is in use by another webpconv process", root)
	}
	return &RootLock{path: path, lock: l}, nil
}

// Path returns the lock file path.
func (r *RootLock) Path() string { return r.path }

// Unlock releases the lock.
func (r *RootLock) Unlock() error {
	if err := r.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
