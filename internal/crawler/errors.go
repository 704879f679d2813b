package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrInvalidRecord is returned when a record lacks a natural key.
	ErrInvalidRecord = errors.New("record has no natural key")
	// ErrSkippedAd marks a listing entry that carried no usable detail.
	ErrSkippedAd = errors.New("ad skipped")
)

// FetchError reports a page that could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same request could succeed.
// Request timeouts are temporary; cancellation is not. Callers decide
// separately whether their own context still allows another attempt.
func (e *FetchError) Temporary() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// NewFetchError wraps err with the URL and status that produced it.
func NewFetchError(url string, status int, err error) *FetchError {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	return &FetchError{URL: url, StatusCode: status, Err: err}
}

// ExtractionError reports a payload that could not be parsed at all.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsCanceled reports whether err stems from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
