package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// EngineConfig holds the run-level options of a scrape.
type EngineConfig struct {
	Mode        Mode
	BaseURL     string
	MaxPages    int
	Concurrency int

	CategoryName        string
	CategoryURLTemplate string
	CategoryMaxPages    int

	ArchivePrefix string
}

// Engine runs one crawl: a single numbered source in JSON mode, or category
// discovery plus fan-out in HTML mode.
type Engine struct {
	cfg       EngineConfig
	fetcher   Fetcher
	extractor Extractor
	links     LinkExtractor
	persister Persister
	archive   BlobStore
	ids       IDGenerator
	clock     Clock
	logger    *zap.Logger
}

// EngineDeps groups the collaborators of an Engine. Links is required in
// HTML mode only; Archive is optional.
type EngineDeps struct {
	Fetcher   Fetcher
	Extractor Extractor
	Links     LinkExtractor
	Persister Persister
	Archive   BlobStore
	IDs       IDGenerator
	Clock     Clock
}

// NewEngine validates deps and builds an Engine.
func NewEngine(cfg EngineConfig, deps EngineDeps, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("engine: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("engine: extractor is required")
	case deps.Persister == nil:
		return nil, errors.New("engine: persister is required")
	case deps.IDs == nil:
		return nil, errors.New("engine: id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("engine: clock is required")
	}
	switch cfg.Mode {
	case ModeJSON:
	case ModeHTML:
		if deps.Links == nil {
			return nil, errors.New("engine: link extractor is required in html mode")
		}
	default:
		return nil, fmt.Errorf("engine: unknown mode %q", cfg.Mode)
	}
	if cfg.MaxPages <= 0 {
		return nil, errors.New("engine: max pages must be > 0")
	}
	return &Engine{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		links:     deps.Links,
		persister: deps.Persister,
		archive:   deps.Archive,
		ids:       deps.IDs,
		clock:     deps.Clock,
		logger:    logger,
	}, nil
}

// Scrape performs one crawl run and returns its summary. Page, record and
// category failures are reported in the summary, never as an error.
func (e *Engine) Scrape(ctx context.Context) (RunSummary, error) {
	runID, err := e.ids.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := e.logger.With(zap.String("run_id", runID), zap.String("mode", string(e.cfg.Mode)))
	summary := RunSummary{
		RunID:           runID,
		Mode:            e.cfg.Mode,
		StartedAt:       e.clock.Now(),
		RecordsRejected: make(map[RejectReason]int),
	}
	logger.Info("crawl run started", zap.String("base_url", e.cfg.BaseURL), zap.Int("max_pages", e.cfg.MaxPages))

	var opts []PaginatorOption
	if e.archive != nil {
		opts = append(opts, WithArchive(e.archive, e.cfg.ArchivePrefix))
	}
	paginator := NewPaginator(e.cfg.Mode, e.fetcher, e.extractor, e.persister, logger.Named("paginator"), opts...)

	switch e.cfg.Mode {
	case ModeJSON:
		summary.add(paginator.Crawl(ctx, runID, Source{
			Name:     "listings",
			PageURL:  NumberedPageURL(e.cfg.BaseURL),
			MaxPages: e.cfg.MaxPages,
		}))
	case ModeHTML:
		e.scrapeCategories(ctx, runID, paginator, &summary, logger)
	}

	summary.FinishedAt = e.clock.Now()
	if ctx.Err() != nil {
		summary.Canceled = true
	}
	logger.Info("crawl run finished",
		zap.Int("pages_fetched", summary.PagesFetched),
		zap.Int("pages_failed", summary.PagesFailed),
		zap.Int("records_extracted", summary.RecordsExtracted),
		zap.Int("records_stored", summary.RecordsStored),
		zap.Int("records_rejected", summary.RejectedTotal()),
		zap.Int("categories_failed", summary.CategoriesFailed),
		zap.Bool("degraded", summary.Degraded),
		zap.Duration("duration", summary.Duration()),
	)
	return summary, nil
}

func (e *Engine) scrapeCategories(ctx context.Context, runID string, paginator *Paginator, summary *RunSummary, logger *zap.Logger) {
	maxPages := e.cfg.CategoryMaxPages
	if maxPages <= 0 || maxPages > e.cfg.MaxPages {
		maxPages = e.cfg.MaxPages
	}
	fanOut := NewFanOut(FanOutConfig{
		RootURL:     e.cfg.BaseURL,
		Name:        e.cfg.CategoryName,
		URLTemplate: e.cfg.CategoryURLTemplate,
		MaxPages:    maxPages,
		Concurrency: e.cfg.Concurrency,
	}, e.fetcher, e.links, paginator, logger.Named("fanout"))

	categories, err := fanOut.DiscoverCategories(ctx)
	if err != nil {
		summary.PagesFailed++
		summary.DiscoveryError = err.Error()
		summary.Degraded = true
		logger.Warn("category discovery failed", zap.Error(err))
		return
	}
	summary.PagesFetched++
	summary.CategoriesFound = len(categories)
	if len(categories) == 0 {
		logger.Warn("no categories found on root page")
		summary.Degraded = true
		return
	}
	for _, res := range fanOut.Crawl(ctx, runID, categories) {
		if res.Failed() {
			summary.CategoriesFailed++
		}
		summary.add(res)
	}
}
