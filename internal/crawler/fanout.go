package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/dispatcher"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// FanOutConfig describes how categories are found and crawled.
type FanOutConfig struct {
	RootURL     string
	Name        string
	URLTemplate string
	MaxPages    int
	Concurrency int
}

// FanOut discovers categories on a root page and crawls each one as an
// independent paginated source.
type FanOut struct {
	cfg       FanOutConfig
	fetcher   Fetcher
	links     LinkExtractor
	paginator *Paginator
	logger    *zap.Logger
}

// NewFanOut wires a FanOut.
func NewFanOut(cfg FanOutConfig, fetcher Fetcher, links LinkExtractor, paginator *Paginator, logger *zap.Logger) *FanOut {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &FanOut{cfg: cfg, fetcher: fetcher, links: links, paginator: paginator, logger: logger}
}

// DiscoverCategories fetches the root page and returns the distinct category
// names linked from it.
func (f *FanOut) DiscoverCategories(ctx context.Context) ([]string, error) {
	payload, err := f.fetcher.Fetch(ctx, f.cfg.RootURL)
	if err != nil {
		return nil, asFetchError(f.cfg.RootURL, err)
	}
	links, err := f.links.Links(payload.Body)
	if err != nil {
		return nil, &ExtractionError{URL: f.cfg.RootURL, Err: err}
	}
	categories := CategorySegments(links, f.cfg.RootURL, f.cfg.Name)
	f.logger.Info("categories discovered",
		zap.Int("links", len(links)),
		zap.Int("categories", len(categories)),
	)
	return categories, nil
}

// Crawl runs one source per category on a bounded pool and waits for all of
// them. A failing category never affects its siblings.
func (f *FanOut) Crawl(ctx context.Context, runID string, categories []string) []SourceResult {
	task := func(ctx context.Context, category string) SourceResult {
		return f.crawlCategory(ctx, runID, category)
	}
	pool := dispatcher.New(f.cfg.Concurrency, task, f.logger.Named("pool"))
	results, err := pool.Run(ctx, categories)
	if err != nil {
		f.logger.Warn("category pool ended early", zap.Error(err))
	}

	out := make([]SourceResult, 0, len(results))
	for _, res := range results {
		value := res.Value
		if !res.Started {
			value = SourceResult{Name: res.Item, Category: res.Item}
			value.finish(StopCanceled, ctx.Err())
		} else if value.Name == "" {
			value = SourceResult{Name: res.Item, Category: res.Item}
			value.finish(StopFetchFailure, fmt.Errorf("category %s: task aborted", res.Item))
		}
		outcome := metrics.OutcomeOK
		if value.Failed() {
			outcome = metrics.OutcomeFailed
			f.logger.Warn("category failed", zap.String("category", value.Name), zap.Error(value.Err))
		}
		metrics.ObserveCategory(outcome)
		out = append(out, value)
	}
	return out
}

func (f *FanOut) crawlCategory(ctx context.Context, runID, category string) SourceResult {
	categoryURL, err := CategoryURL(f.cfg.URLTemplate, f.cfg.RootURL, f.cfg.Name, category)
	if err != nil {
		result := SourceResult{Name: category, Category: category}
		result.finish(StopFetchFailure, err)
		return result
	}
	return f.paginator.Crawl(ctx, runID, Source{
		Name:     category,
		Category: category,
		PageURL:  CategoryPageURL(categoryURL),
		MaxPages: f.cfg.MaxPages,
	})
}
