package crawler

import (
	"strings"
	"time"
)

// Mode selects how listing pages are read.
type Mode string

// Supported crawl modes.
const (
	ModeJSON Mode = "json"
	ModeHTML Mode = "html"
)

// Extension returns the file extension used when archiving payloads of this mode.
func (m Mode) Extension() string {
	if m == ModeHTML {
		return "html"
	}
	return "json"
}

// StopReason is the state of a paginated source.
type StopReason string

// Pagination states. Every source starts in StopRunning and ends in exactly
// one of the terminal states.
const (
	StopRunning      StopReason = "running"
	StopEmpty        StopReason = "stopped_empty"
	StopDuplicate    StopReason = "stopped_duplicate"
	StopFetchFailure StopReason = "stopped_fetch_failure"
	StopPageCeiling  StopReason = "stopped_page_ceiling"
	StopCanceled     StopReason = "stopped_canceled"
)

// Terminal reports whether the source has finished.
func (s StopReason) Terminal() bool {
	return s != StopRunning && s != ""
}

// NoNewData is true for the empty and duplicate stops, which are treated as
// one "no new data" condition.
func (s StopReason) NoNewData() bool {
	return s == StopEmpty || s == StopDuplicate
}

// Signature is a digest of a page's extracted content. The zero value never
// matches a computed signature.
type Signature string

// Record is one normalized listing.
type Record struct {
	NaturalKey     string   `json:"natural_key"`
	Category       string   `json:"category,omitempty"`
	Title          string   `json:"title"`
	PriceText      string   `json:"price"`
	LocationText   string   `json:"location"`
	PostedTimeText string   `json:"posted_time"`
	ImageURL       string   `json:"image_url"`
	DetailFields   []string `json:"details,omitempty"`
	ModifiedDate   string   `json:"modified_date,omitempty"`
	Year           string   `json:"year,omitempty"`
	Mileage        string   `json:"mileage,omitempty"`
	Description    string   `json:"description,omitempty"`
	SourceURL      string   `json:"source_url,omitempty"`
}

// RecordOption sets one optional field on a Record under construction.
type RecordOption func(*Record)

// WithTitle sets the listing title.
func WithTitle(v string) RecordOption { return func(r *Record) { r.Title = v } }

// WithPrice sets the price text.
func WithPrice(v string) RecordOption { return func(r *Record) { r.PriceText = v } }

// WithLocation sets the location text.
func WithLocation(v string) RecordOption { return func(r *Record) { r.LocationText = v } }

// WithPostedTime sets the posted-time text.
func WithPostedTime(v string) RecordOption { return func(r *Record) { r.PostedTimeText = v } }

// WithImage sets the image URL.
func WithImage(v string) RecordOption { return func(r *Record) { r.ImageURL = v } }

// WithDetails sets the ordered detail fields.
func WithDetails(v []string) RecordOption {
	return func(r *Record) {
		if len(v) == 0 {
			r.DetailFields = nil
			return
		}
		r.DetailFields = append([]string(nil), v...)
	}
}

// WithCategory sets the category the record was found under.
func WithCategory(v string) RecordOption { return func(r *Record) { r.Category = v } }

// WithModifiedDate sets the upstream modification stamp.
func WithModifiedDate(v string) RecordOption { return func(r *Record) { r.ModifiedDate = v } }

// WithYear sets the model year.
func WithYear(v string) RecordOption { return func(r *Record) { r.Year = v } }

// WithMileage sets the mileage text.
func WithMileage(v string) RecordOption { return func(r *Record) { r.Mileage = v } }

// WithDescription sets the free-text description.
func WithDescription(v string) RecordOption { return func(r *Record) { r.Description = v } }

// WithSourceURL sets the page URL the record was extracted from.
func WithSourceURL(v string) RecordOption { return func(r *Record) { r.SourceURL = v } }

// NewRecord builds a Record field by field. The natural key is trimmed and
// must not be empty.
func NewRecord(naturalKey string, opts ...RecordOption) (Record, error) {
	key := strings.TrimSpace(naturalKey)
	if key == "" {
		return Record{}, ErrInvalidRecord
	}
	rec := Record{NaturalKey: key}
	for _, opt := range opts {
		opt(&rec)
	}
	return rec, nil
}

// Payload is the raw result of fetching one URL.
type Payload struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Page is what an Extractor produces from one payload.
type Page struct {
	Records   []Record
	Signature Signature
	Skipped   int
}

// Source describes one numbered page sequence.
type Source struct {
	Name     string
	Category string
	PageURL  func(page int) string
	MaxPages int
}

// RejectReason classifies a persistence rejection.
type RejectReason string

// Rejection reasons.
const (
	RejectDuplicate RejectReason = "duplicate"
	RejectOther     RejectReason = "other"
)

// BatchResult tallies the persistence outcomes of one page of records.
type BatchResult struct {
	Stored       int
	Rejected     map[RejectReason]int
	NotAttempted int
}

// RejectedTotal sums rejections across reasons.
func (b BatchResult) RejectedTotal() int {
	total := 0
	for _, n := range b.Rejected {
		total += n
	}
	return total
}

// SourceResult summarizes one paginated source.
type SourceResult struct {
	Name             string               `json:"name"`
	Category         string               `json:"category,omitempty"`
	Stop             StopReason           `json:"stop"`
	PagesFetched     int                  `json:"pages_fetched"`
	PagesSucceeded   int                  `json:"pages_succeeded"`
	PagesFailed      int                  `json:"pages_failed"`
	LastPage         int                  `json:"last_page"`
	RecordsExtracted int                  `json:"records_extracted"`
	AdsSkipped       int                  `json:"ads_skipped"`
	RecordsStored    int                  `json:"records_stored"`
	RecordsRejected  map[RejectReason]int `json:"records_rejected,omitempty"`
	NotAttempted     int                  `json:"records_not_attempted,omitempty"`
	Err              error                `json:"-"`
	ErrorText        string               `json:"error,omitempty"`
}

// Failed reports whether the source counts as a failure: it stopped on a
// fetch error, or it never produced a usable page and recorded an error.
// Canceled sources are not failures.
func (r SourceResult) Failed() bool {
	switch r.Stop {
	case StopFetchFailure:
		return true
	case StopCanceled:
		return false
	}
	return r.PagesSucceeded == 0 && r.Err != nil
}

func (r *SourceResult) addBatch(b BatchResult) {
	r.RecordsStored += b.Stored
	r.NotAttempted += b.NotAttempted
	for reason, n := range b.Rejected {
		if n == 0 {
			continue
		}
		if r.RecordsRejected == nil {
			r.RecordsRejected = make(map[RejectReason]int)
		}
		r.RecordsRejected[reason] += n
	}
}

func (r *SourceResult) finish(stop StopReason, err error) {
	r.Stop = stop
	if err != nil {
		r.Err = err
		r.ErrorText = err.Error()
	}
}

// RunSummary is the outcome of one Engine.Scrape call.
type RunSummary struct {
	RunID            string               `json:"run_id"`
	Mode             Mode                 `json:"mode"`
	StartedAt        time.Time            `json:"started_at"`
	FinishedAt       time.Time            `json:"finished_at"`
	PagesFetched     int                  `json:"pages_fetched"`
	PagesFailed      int                  `json:"pages_failed"`
	RecordsExtracted int                  `json:"records_extracted"`
	AdsSkipped       int                  `json:"ads_skipped"`
	RecordsStored    int                  `json:"records_stored"`
	RecordsRejected  map[RejectReason]int `json:"records_rejected"`
	CategoriesFound  int                  `json:"categories_found,omitempty"`
	CategoriesFailed int                  `json:"categories_failed,omitempty"`
	DiscoveryError   string               `json:"discovery_error,omitempty"`
	Sources          []SourceResult       `json:"sources"`
	Degraded         bool                 `json:"degraded"`
	Canceled         bool                 `json:"canceled,omitempty"`
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// RejectedTotal sums rejections across reasons.
func (s RunSummary) RejectedTotal() int {
	total := 0
	for _, n := range s.RecordsRejected {
		total += n
	}
	return total
}

func (s *RunSummary) add(r SourceResult) {
	s.Sources = append(s.Sources, r)
	s.PagesFetched += r.PagesFetched
	s.PagesFailed += r.PagesFailed
	s.RecordsExtracted += r.RecordsExtracted
	s.AdsSkipped += r.AdsSkipped
	s.RecordsStored += r.RecordsStored
	if s.RecordsRejected == nil {
		s.RecordsRejected = make(map[RejectReason]int)
	}
	for reason, n := range r.RecordsRejected {
		s.RecordsRejected[reason] += n
	}
	if r.Failed() || r.PagesFailed > 0 || r.AdsSkipped > 0 {
		s.Degraded = true
	}
	if r.Stop == StopCanceled {
		s.Canceled = true
	}
}
