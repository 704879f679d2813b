package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/listing-crawler/internal/store"
)

// ListingStore keeps listings in-memory with the same uniqueness rule as the
// Postgres store.
type ListingStore struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[string]store.Listing
	closed bool
}

// NewListingStore constructs a ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{byKey: make(map[string]store.Listing)}
}

// EnsureSchema is a no-op for the in-memory store.
func (s *ListingStore) EnsureSchema(context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *ListingStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("listing store closed")
	}
	return nil
}

// Close marks the store closed; later writes fail.
func (s *ListingStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Insert stores the listing unless its natural key is already present.
func (s *ListingStore) Insert(ctx context.Context, l store.Listing) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("insert listing: store closed")
	}
	if _, ok := s.byKey[l.NaturalKey]; ok {
		return fmt.Errorf("insert listing %s: %w", l.NaturalKey, store.ErrDuplicate)
	}
	s.nextID++
	l.ID = s.nextID
	s.byKey[l.NaturalKey] = l
	return nil
}

// QueryAll returns every listing ordered by insertion.
func (s *ListingStore) QueryAll(context.Context) ([]store.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Listing, 0, len(s.byKey))
	for _, l := range s.byKey {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// QueryByField returns the earliest listing whose field equals value.
func (s *ListingStore) QueryByField(ctx context.Context, field store.Field, value string) (store.Listing, error) {
	if !field.Valid() {
		return store.Listing{}, fmt.Errorf("%w: %q", store.ErrUnsupportedField, field)
	}
	all, err := s.QueryAll(ctx)
	if err != nil {
		return store.Listing{}, err
	}
	for _, l := range all {
		if fieldValue(l, field) == value {
			return l, nil
		}
	}
	return store.Listing{}, store.ErrNotFound
}

// Delete removes the listing with the given natural key.
func (s *ListingStore) Delete(_ context.Context, naturalKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[naturalKey]; !ok {
		return store.ErrNotFound
	}
	delete(s.byKey, naturalKey)
	return nil
}

func fieldValue(l store.Listing, f store.Field) string {
	switch f {
	case store.FieldNaturalKey:
		return l.NaturalKey
	case store.FieldCategory:
		return l.Category
	case store.FieldTitle:
		return l.Title
	case store.FieldRunID:
		return l.RunID
	default:
		return ""
	}
}
