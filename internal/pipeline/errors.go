package pipeline

import (
	"errors"
	"fmt"
)

// ErrTotalFailure wraps the case where every chunk failed validation and the
// run as a whole cannot produce a result.
var ErrTotalFailure = errors.New("pipeline: every chunk failed")

// SourceFetchError is a failure reaching the version-control hosting API for
// a commit list or branch reference. It aborts the source and fails the run.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("pipeline: source %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// PersistenceError marks a best-effort persistence failure. It is logged and
// surfaced on the run record but never aborts the pipeline.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pipeline: persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
