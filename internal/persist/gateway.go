package persist

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
	"github.com/JakeFAU/listing-crawler/internal/store"
)

// Status is the result class of one store attempt.
type Status string

// Store statuses.
const (
	StatusStored   Status = "stored"
	StatusRejected Status = "rejected"
)

// Outcome reports what happened to one record.
type Outcome struct {
	NaturalKey string
	Status     Status
	Reason     crawler.RejectReason
	Err        error
}

// Stored reports whether the record was written.
func (o Outcome) Stored() bool { return o.Status == StatusStored }

// Publisher announces stored listings.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// StoredEvent is the notification published after a successful insert.
type StoredEvent struct {
	NaturalKey string    `json:"natural_key"`
	Category   string    `json:"category,omitempty"`
	Title      string    `json:"title"`
	RunID      string    `json:"run_id"`
	StoredAt   time.Time `json:"stored_at"`
}

// Attributes exposes routing attributes for brokers that support them.
func (e StoredEvent) Attributes() map[string]string {
	attrs := map[string]string{"run_id": e.RunID}
	if e.Category != "" {
		attrs["category"] = e.Category
	}
	return attrs
}

// Config tunes the Gateway.
type Config struct {
	// Topic receives StoredEvents. Empty disables publishing.
	Topic string
	// DetailsSeparator joins detail fields into a single column.
	DetailsSeparator string
}

// Gateway implements crawler.Persister on top of a ListingStore.
type Gateway struct {
	store     store.ListingStore
	publisher Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewGateway builds a Gateway. publisher may be nil.
func NewGateway(s store.ListingStore, publisher Publisher, clock crawler.Clock, cfg Config, logger *zap.Logger) (*Gateway, error) {
	if s == nil {
		return nil, errors.New("persist: listing store is required")
	}
	if clock == nil {
		return nil, errors.New("persist: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DetailsSeparator == "" {
		cfg.DetailsSeparator = ", "
	}
	return &Gateway{store: s, publisher: publisher, clock: clock, cfg: cfg, logger: logger}, nil
}

// ToListing maps a record onto its stored form.
func ToListing(rec crawler.Record, runID, separator string, scrapedAt time.Time) store.Listing {
	return store.Listing{
		NaturalKey:   rec.NaturalKey,
		Category:     rec.Category,
		Title:        rec.Title,
		Price:        rec.PriceText,
		Location:     rec.LocationText,
		PostedTime:   rec.PostedTimeText,
		ImageURL:     rec.ImageURL,
		Details:      strings.Join(rec.DetailFields, separator),
		Year:         rec.Year,
		Mileage:      rec.Mileage,
		Description:  rec.Description,
		ModifiedDate: rec.ModifiedDate,
		SourceURL:    rec.SourceURL,
		RunID:        runID,
		ScrapedAt:    scrapedAt,
	}
}

// Store writes one record.
func (g *Gateway) Store(ctx context.Context, runID string, rec crawler.Record) Outcome {
	out := Outcome{NaturalKey: rec.NaturalKey}
	now := g.clock.Now()
	err := g.store.Insert(ctx, ToListing(rec, runID, g.cfg.DetailsSeparator, now))
	switch {
	case err == nil:
		out.Status = StatusStored
		metrics.ObserveRecord(metrics.OutcomeStored, "")
		g.publish(ctx, runID, rec, now)
	case errors.Is(err, store.ErrDuplicate):
		out.Status, out.Reason, out.Err = StatusRejected, crawler.RejectDuplicate, err
		metrics.ObserveRecord(metrics.OutcomeRejected, string(crawler.RejectDuplicate))
		g.logger.Debug("record already stored", zap.String("natural_key", rec.NaturalKey))
	default:
		out.Status, out.Reason, out.Err = StatusRejected, crawler.RejectOther, err
		metrics.ObserveRecord(metrics.OutcomeRejected, string(crawler.RejectOther))
		g.logger.Warn("record rejected", zap.String("natural_key", rec.NaturalKey), zap.Error(err))
	}
	return out
}

// StoreAll writes records in order. Repeats within the batch are rejected as
// duplicates without touching the store, and nothing is attempted once ctx
// is done.
func (g *Gateway) StoreAll(ctx context.Context, runID string, records []crawler.Record) crawler.BatchResult {
	result := crawler.BatchResult{Rejected: make(map[crawler.RejectReason]int)}
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if ctx.Err() != nil {
			result.NotAttempted = len(records) - i
			break
		}
		if _, dup := seen[rec.NaturalKey]; dup {
			result.Rejected[crawler.RejectDuplicate]++
			metrics.ObserveRecord(metrics.OutcomeRejected, string(crawler.RejectDuplicate))
			continue
		}
		seen[rec.NaturalKey] = struct{}{}
		out := g.Store(ctx, runID, rec)
		if out.Stored() {
			result.Stored++
			continue
		}
		result.Rejected[out.Reason]++
	}
	return result
}

func (g *Gateway) publish(ctx context.Context, runID string, rec crawler.Record, at time.Time) {
	if g.publisher == nil || g.cfg.Topic == "" {
		return
	}
	event := StoredEvent{
		NaturalKey: rec.NaturalKey,
		Category:   rec.Category,
		Title:      rec.Title,
		RunID:      runID,
		StoredAt:   at,
	}
	if _, err := g.publisher.Publish(ctx, g.cfg.Topic, event); err != nil {
		metrics.ObservePublishFailure()
		g.logger.Warn("publish stored event failed", zap.String("natural_key", rec.NaturalKey), zap.Error(err))
	}
}
