// Package postgres provides the Postgres-backed listing store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/listing-crawler/internal/store"
)

const uniqueViolation = "23505"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ListingStoreConfig controls the Postgres connection pool used for listings.
type ListingStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// ListingStore reads and writes listing rows in one Postgres table.
type ListingStore struct {
	pool  pool
	table string
}

// NewListingStore connects to Postgres using the provided config.
func NewListingStore(ctx context.Context, cfg ListingStoreConfig) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ListingStore{pool: p, table: table}, nil
}

// NewListingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewListingStoreWithPool(p pool, table string) (*ListingStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ListingStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "listings"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *ListingStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the listing table and its category index if absent.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	natural_key TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	price TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	posted_time TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT '',
	year TEXT NOT NULL DEFAULT '',
	mileage TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	modified_date TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	run_id TEXT NOT NULL DEFAULT '',
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create listing table: %w", err)
	}
	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_category_idx ON %s (category)`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("create category index: %w", err)
	}
	return nil
}

// Insert writes one listing in its own transaction. A natural key that is
// already stored yields store.ErrDuplicate; the transaction is rolled back on
// every failure.
func (s *ListingStore) Insert(ctx context.Context, l store.Listing) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	natural_key, category, title, price, location, posted_time, image_url,
	details, year, mileage, description, modified_date, source_url, run_id, scraped_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`, s.table)
	args := []any{
		l.NaturalKey, l.Category, l.Title, l.Price, l.Location, l.PostedTime, l.ImageURL,
		l.Details, l.Year, l.Mileage, l.Description, l.ModifiedDate, l.SourceURL, l.RunID, l.ScrapedAt,
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		rollback(ctx, tx)
		return classify("insert listing", err)
	}
	if err := tx.Commit(ctx); err != nil {
		rollback(ctx, tx)
		return classify("commit listing", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(context.WithoutCancel(ctx))
}

func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w (%s)", op, store.ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}

const listingColumns = `id, natural_key, category, title, price, location, posted_time, image_url,
	details, year, mileage, description, modified_date, source_url, run_id, scraped_at`

// QueryAll returns every listing ordered by insertion.
func (s *ListingStore) QueryAll(ctx context.Context) ([]store.Listing, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, listingColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []store.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return out, nil
}

// QueryByField returns the first listing whose field equals value.
func (s *ListingStore) QueryByField(ctx context.Context, field store.Field, value string) (store.Listing, error) {
	if !field.Valid() {
		return store.Listing{}, fmt.Errorf("%w: %q", store.ErrUnsupportedField, field)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY id LIMIT 1`, listingColumns, s.table, field)
	l, err := scanListing(s.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Listing{}, store.ErrNotFound
		}
		return store.Listing{}, fmt.Errorf("query listing by %s: %w", field, err)
	}
	return l, nil
}

// Delete removes the listing with the given natural key.
func (s *ListingStore) Delete(ctx context.Context, naturalKey string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE natural_key = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, naturalKey)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanListing(row pgx.Row) (store.Listing, error) {
	var l store.Listing
	err := row.Scan(
		&l.ID,
		&l.NaturalKey,
		&l.Category,
		&l.Title,
		&l.Price,
		&l.Location,
		&l.PostedTime,
		&l.ImageURL,
		&l.Details,
		&l.Year,
		&l.Mileage,
		&l.Description,
		&l.ModifiedDate,
		&l.SourceURL,
		&l.RunID,
		&l.ScrapedAt,
	)
	return l, err
}
