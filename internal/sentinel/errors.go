package sentinel

import (
	"errors"
	"fmt"
)

// ErrRetryLater reports that the provider accepted a retrieval request for an
// archived dataset; the job should be rescheduled rather than failed.
var ErrRetryLater = errors.New("dataset not yet available")

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrBadCredentials  = errors.New("credentials must be user:password")
	ErrMalformedTitle  = errors.New("malformed dataset title")
	ErrFilenameMissing = errors.New("no filename in response headers")
)

// Kind classifies a fatal download failure.
type Kind int

const (
	KindTransport Kind = iota + 1
	KindCredentials
	KindTriggerFailed
	KindFetchFailed
	KindFilenameMissing
	KindMalformedTitle
	KindIOFailure
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindCredentials:
		return "credentials"
	case KindTriggerFailed:
		return "trigger_failed"
	case KindFetchFailed:
		return "fetch_failed"
	case KindFilenameMissing:
		return "filename_missing"
	case KindMalformedTitle:
		return "malformed_title"
	case KindIOFailure:
		return "io_failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure of one download job.
type Error struct {
	Kind       Kind
	DatasetID  string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTriggerFailed:
		return fmt.Sprintf("failed to trigger retrieval for %s, status %d: %s", e.DatasetID, e.StatusCode, e.Body)
	case KindFetchFailed:
		return fmt.Sprintf("failed to fetch %s, status %d: %s", e.DatasetID, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.DatasetID, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.DatasetID)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is returned by the fetcher for non-200 download responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status %d: %s", e.StatusCode, e.Body)
}

// IOError wraps a local filesystem failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// classify maps a raw fetcher or prober failure onto the job error taxonomy.
func classify(datasetID string, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &Error{Kind: KindFetchFailed, DatasetID: datasetID, StatusCode: statusErr.StatusCode, Body: statusErr.Body, Err: err}
	}
	var ioErr *IOError
	switch {
	case errors.Is(err, ErrFilenameMissing):
		return &Error{Kind: KindFilenameMissing, DatasetID: datasetID, Err: err}
	case errors.Is(err, ErrMalformedTitle):
		return &Error{Kind: KindMalformedTitle, DatasetID: datasetID, Err: err}
	case errors.Is(err, ErrBadCredentials):
		return &Error{Kind: KindCredentials, DatasetID: datasetID, Err: err}
	case errors.As(err, &ioErr):
		return &Error{Kind: KindIOFailure, DatasetID: datasetID, Err: err}
	}
	return &Error{Kind: KindTransport, DatasetID: datasetID, Err: err}
}
