package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError rejects a job before any side effect. Index is the job's
// position in a batch, or -1 outside of one.
type ValidationError struct {
	Index  int
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Index >= 0 {
		fmt.Fprintf(&b, " for job %d", e.Index)
	}
	if e.Input != "" {
		fmt.Fprintf(&b, " (%s)", e.Input)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// ExternalProcessError covers a missing decoder binary, a non-zero exit, or
// output that could not be read.
type ExternalProcessError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ExternalProcessError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExternalProcessError) Unwrap() error { return e.Err }

// SynchronizationTimeoutError means the expected frame files never all showed
// up in the workspace within the bound.
type SynchronizationTimeoutError struct {
	Dir      string
	Expected int
	Observed int
	Waited   time.Duration
}

func (e *SynchronizationTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for frames in %s: expected %d, observed %d",
		e.Waited, e.Dir, e.Expected, e.Observed)
}

// EncodingError is a failure writing the output file.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// CleanupWarning is non-fatal: the workspace could not be removed after all
// retries. It is logged and never returned as a conversion result.
type CleanupWarning struct {
	Dir      string
	Attempts int
	Err      error
}

func (e *CleanupWarning) Error() string {
	return fmt.Sprintf("could not remove workspace %s after %d attempts: %v", e.Dir, e.Attempts, e.Err)
}

func (e *CleanupWarning) Unwrap() error { return e.Err }

// ErrorKind names the taxonomy class of err for history records and exit
// reporting.
func ErrorKind(err error) string {
	var (
		validation *ValidationError
		process    *ExternalProcessError
		timeout    *SynchronizationTimeoutError
		encoding   *EncodingError
		cleanup    *CleanupWarning
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &process):
		return "external_process"
	case errors.As(err, &timeout):
		return "sync_timeout"
	case errors.As(err, &encoding):
		return "encoding"
	case errors.As(err, &cleanup):
		return "cleanup"
	default:
		return "other"
	}
}
