package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrEmptyResponse = errors.New("empty response body")
	ErrNoContent     = errors.New("no content fetched")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrNoComments    = errors.New("no comments found")
	ErrUnknownMethod = errors.New("unknown extraction method")
	ErrNoSession     = errors.New("no browser session")
	ErrInvalidMax    = errors.New("max comments must be > 0")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// AnalysisError wraps failures of the content analyzer.
type AnalysisError struct {
	Stage string // request, decode, parse
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis error at %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ExtractError wraps errors raised by an extraction strategy.
type ExtractError struct {
	Method    string
	PatternID string
	Err       error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract error (method=%s, pattern=%s): %v", e.Method, e.PatternID, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the comment cleaning pipeline.
type PipelineError struct {
	Stage   string
	Comment *Comment
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
