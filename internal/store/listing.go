package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicate signals that a listing with the same natural key exists.
	ErrDuplicate = errors.New("listing already stored")
	// ErrNotFound signals that the requested listing does not exist.
	ErrNotFound = errors.New("listing not found")
	// ErrUnsupportedField is returned for lookups on a non-queryable column.
	ErrUnsupportedField = errors.New("unsupported query field")
)

// Listing is the persisted form of a crawled record.
type Listing struct {
	ID           int64     `json:"id"`
	NaturalKey   string    `json:"natural_key"`
	Category     string    `json:"category,omitempty"`
	Title        string    `json:"title"`
	Price        string    `json:"price"`
	Location     string    `json:"location"`
	PostedTime   string    `json:"posted_time"`
	ImageURL     string    `json:"image_url"`
	Details      string    `json:"details,omitempty"`
	Year         string    `json:"year,omitempty"`
	Mileage      string    `json:"mileage,omitempty"`
	Description  string    `json:"description,omitempty"`
	ModifiedDate string    `json:"modified_date,omitempty"`
	SourceURL    string    `json:"source_url,omitempty"`
	RunID        string    `json:"run_id"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// Field names a column that QueryByField accepts.
type Field string

// Queryable fields.
const (
	FieldNaturalKey Field = "natural_key"
	FieldCategory   Field = "category"
	FieldTitle      Field = "title"
	FieldRunID      Field = "run_id"
)

// Valid reports whether f may be used in QueryByField.
func (f Field) Valid() bool {
	switch f {
	case FieldNaturalKey, FieldCategory, FieldTitle, FieldRunID:
		return true
	default:
		return false
	}
}

// ParseField converts a column name into a Field.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedField, name)
	}
	return f, nil
}

// ListingStore persists listings. Insert commits each listing on its own
// and reports ErrDuplicate when the natural key is already present.
type ListingStore interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, listing Listing) error
	QueryAll(ctx context.Context) ([]Listing, error)
	QueryByField(ctx context.Context, field Field, value string) (Listing, error)
	Delete(ctx context.Context, naturalKey string) error
	Ping(ctx context.Context) error
	Close()
}

// Pinger is the readiness subset of ListingStore.
type Pinger interface {
	Ping(ctx context.Context) error
}
