package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves one URL. Failures are reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Payload, error)
}

// Extractor turns a payload into records. Unparseable payloads are reported
// as *ExtractionError.
type Extractor interface {
	Extract(payload Payload, category string) (Page, error)
}

// LinkExtractor lists the hyperlink targets of an HTML document in order.
type LinkExtractor interface {
	Links(body []byte) ([]string, error)
}

// Persister stores records with at-most-once semantics per natural key.
type Persister interface {
	StoreAll(ctx context.Context, runID string, records []Record) BatchResult
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Limiter gates outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for page signatures.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
