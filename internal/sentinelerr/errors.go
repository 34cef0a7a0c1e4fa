// Package sentinelerr defines the error taxonomy used across the indexing
// pipeline (spec §7): component methods return either success or a
// taxonomy-kind plus context, and the orchestrator aggregates non-fatal
// kinds into IndexResult.Errors rather than aborting the run.
package sentinelerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind names one of the taxonomy's error categories. Kinds are not classes:
// every error in this package carries exactly one.
type Kind string

const (
	KindFileIO              Kind = "file_io"
	KindParseTimeout        Kind = "parse_timeout"
	KindParseError          Kind = "parse_error"
	KindResolutionAmbiguity Kind = "resolution_ambiguity"
	KindSchemaMismatch      Kind = "schema_mismatch"
	KindStoreConflict       Kind = "store_conflict"
	KindCancelled           Kind = "cancelled"
)

// Fatal reports whether an error of this kind must terminate the run: only
// SchemaMismatch is reported fatal. StoreConflict is not, whether or not its
// retries were exhausted; everything else is recorded and the pipeline
// continues.
func (k Kind) Fatal() bool {
	return k == KindSchemaMismatch
}

// Error is the concrete error type carried through the pipeline. FilePath is
// empty for errors with no file context (e.g. SchemaMismatch).
type Error struct {
	Kind       Kind
	FilePath   string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// New creates an Error of the given kind with operation context.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Operation: op, Underlying: err, Timestamp: time.Now()}
}

// WithFile attaches the file path this error occurred for.
func (e *Error) WithFile(path string) *Error {
	e.FilePath = path
	return e
}

func (e *Error) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Operation, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

func (e *Error) Unwrap() error { return e.Underlying }

// As reports whether err is (or wraps) a *Error of the given kind.
func As(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}

// Multi aggregates several non-fatal errors, e.g. from a batch of files
// processed in parallel by the orchestrator.
type Multi struct {
	Errors []error
}

func NewMulti(errs []error) *Multi {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &Multi{Errors: filtered}
}

func (m *Multi) Error() string {
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred, first: %v", len(m.Errors), m.Errors[0])
}

func (m *Multi) Unwrap() []error { return m.Errors }
