package usecase

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a lookup failed.
type ErrorKind string

const (
	KindInvalidInput  ErrorKind = "invalid_input"
	KindUpstreamFetch ErrorKind = "upstream_fetch"
	KindExtraction    ErrorKind = "extraction"
	KindStore         ErrorKind = "store"
)

var (
	ErrInvalidISBN   = errors.New("invalid isbn query")
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	ErrExtraction    = errors.New("extraction failed")
	ErrStore         = errors.New("cache store failed")
)

// Stage is a step of a single lookup.
//
//	Checking -> Fetching -> Extracting -> Storing -> Done
//	Checking -> Done on a cache hit; any step but Done may exit to Failed.
type Stage string

const (
	StageChecking   Stage = "checking"
	StageFetching   Stage = "fetching"
	StageExtracting Stage = "extracting"
	StageStoring    Stage = "storing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// LookupError is the only error type returned by BookLookup.Lookup.
// It matches the sentinel for its Kind and the underlying cause with errors.Is.
type LookupError struct {
	Kind  ErrorKind
	Stage Stage // the stage that failed
	ISBN  string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %q failed while %s: %v", e.ISBN, e.Stage, e.Err)
}

func (e *LookupError) Unwrap() []error {
	return []error{kindSentinel(e.Kind), e.Err}
}

func kindSentinel(kind ErrorKind) error {
	switch kind {
	case KindInvalidInput:
		return ErrInvalidISBN
	case KindUpstreamFetch:
		return ErrUpstreamFetch
	case KindExtraction:
		return ErrExtraction
	default:
		return ErrStore
	}
}

func newLookupError(kind ErrorKind, stage Stage, isbn string, err error) *LookupError {
	return &LookupError{Kind: kind, Stage: stage, ISBN: isbn, Err: err}
}
