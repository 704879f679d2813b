// Package app opens the long-lived services a crawl run depends on: the
// listing store, the page archive and the notification publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/persist"
	pubsubpublisher "github.com/JakeFAU/listing-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/listing-crawler/internal/storage/gcs"
	"github.com/JakeFAU/listing-crawler/internal/storage/local"
	"github.com/JakeFAU/listing-crawler/internal/storage/memory"
	"github.com/JakeFAU/listing-crawler/internal/storage/postgres"
	"github.com/JakeFAU/listing-crawler/internal/store"
)

// Publisher is a persist.Publisher that must be closed.
type Publisher interface {
	persist.Publisher
	Close() error
}

// StoreOpener opens the listing store described by cfg.
type StoreOpener func(ctx context.Context, cfg config.DBConfig) (store.ListingStore, error)

// PublisherOpener connects to the notification broker.
type PublisherOpener func(ctx context.Context, cfg config.PubSubConfig) (Publisher, error)

// ArchiveOpener opens the page archive. It returns nil when archiving is off.
type ArchiveOpener func(ctx context.Context, cfg config.ArchiveConfig) (crawler.BlobStore, func() error, error)

// Option overrides how a service is opened.
type Option func(*openers)

type openers struct {
	store     StoreOpener
	publisher PublisherOpener
	archive   ArchiveOpener
}

// WithStoreOpener replaces the default store opener.
func WithStoreOpener(fn StoreOpener) Option { return func(o *openers) { o.store = fn } }

// WithPublisherOpener replaces the default publisher opener.
func WithPublisherOpener(fn PublisherOpener) Option { return func(o *openers) { o.publisher = fn } }

// WithArchiveOpener replaces the default archive opener.
func WithArchiveOpener(fn ArchiveOpener) Option { return func(o *openers) { o.archive = fn } }

// App holds the services shared by one process.
type App struct {
	logger    *zap.Logger
	store     store.ListingStore
	archive   crawler.BlobStore
	publisher Publisher
	closers   []func() error
}

// NewApp opens every configured service. It fails fast when the store cannot
// be opened or its schema cannot be created; everything opened so far is
// closed again on failure.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := openers{store: OpenStore, publisher: OpenPublisher, archive: OpenArchive}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{logger: logger}

	s, err := o.store(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open listing store: %w", err)
	}
	a.store = s
	a.closers = append(a.closers, func() error { s.Close(); return nil })
	if err := s.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure listing schema: %w", err)
	}
	logger.Info("listing store ready", zap.String("backend", storeBackend(cfg.DB.DSN)), zap.String("table", cfg.DB.Table))

	archive, closeArchive, err := o.archive(ctx, cfg.Archive)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open page archive: %w", err)
	}
	a.archive = archive
	if closeArchive != nil {
		a.closers = append(a.closers, closeArchive)
	}
	if archive != nil {
		logger.Info("page archive enabled", zap.String("backend", cfg.Archive.Backend), zap.String("prefix", cfg.Archive.Prefix))
	}

	if cfg.PublishEnabled() {
		pub, err := o.publisher(ctx, cfg.PubSub)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
		logger.Info("stored-listing notifications enabled", zap.String("topic", cfg.PubSub.TopicName))
	}

	return a, nil
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the listing store.
func (a *App) Store() store.ListingStore { return a.store }

// Archive returns the page archive, or nil when archiving is off.
func (a *App) Archive() crawler.BlobStore { return a.archive }

// Publisher returns the notification publisher, or nil when disabled.
func (a *App) Publisher() persist.Publisher {
	if a.publisher == nil {
		return nil
	}
	return a.publisher
}

// Close releases services in reverse opening order.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
}

func storeBackend(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "memory"
}

// OpenStore opens an in-memory store for memory:// DSNs and a pgx pool for
// postgres ones.
func OpenStore(ctx context.Context, cfg config.DBConfig) (store.ListingStore, error) {
	switch {
	case cfg.DSN == "":
		return nil, errors.New("db.dsn is empty")
	case cfg.Ephemeral():
		return memory.NewListingStore(), nil
	case storeBackend(cfg.DSN) == "postgres":
		s, err := postgres.NewListingStore(ctx, postgres.ListingStoreConfig{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported dsn scheme in %q", redact(cfg.DSN))
	}
}

// OpenArchive opens the configured page archive.
func OpenArchive(ctx context.Context, cfg config.ArchiveConfig) (crawler.BlobStore, func() error, error) {
	switch cfg.Backend {
	case "", config.ArchiveNone:
		return nil, nil, nil
	case config.ArchiveMemory:
		return memory.NewBlobStore(), nil, nil
	case config.ArchiveLocal:
		s, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.ArchiveGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// OpenPublisher connects to Google Cloud Pub/Sub.
func OpenPublisher(ctx context.Context, cfg config.PubSubConfig) (Publisher, error) {
	return pubsubpublisher.NewClient(ctx, cfg.ProjectID)
}

// redact hides everything before the host in a DSN.
func redact(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}
