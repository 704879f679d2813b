package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// Paginator walks a numbered page sequence until no new data appears, a
// fetch fails, or the page ceiling is reached.
type Paginator struct {
	fetcher   Fetcher
	extractor Extractor
	persister Persister
	archive   BlobStore
	mode      Mode
	prefix    string
	logger    *zap.Logger
}

// PaginatorOption customizes a Paginator.
type PaginatorOption func(*Paginator)

// WithArchive keeps every fetched payload under prefix in store.
func WithArchive(store BlobStore, prefix string) PaginatorOption {
	return func(p *Paginator) {
		p.archive = store
		p.prefix = prefix
	}
}

// NewPaginator wires the collaborators of a page walk.
func NewPaginator(mode Mode, fetcher Fetcher, extractor Extractor, persister Persister, logger *zap.Logger, opts ...PaginatorOption) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Paginator{
		fetcher:   fetcher,
		extractor: extractor,
		persister: persister,
		mode:      mode,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Crawl runs src from page 1. Records of each page are handed to the
// persister before the next page is requested.
func (p *Paginator) Crawl(ctx context.Context, runID string, src Source) SourceResult {
	result := SourceResult{Name: src.Name, Category: src.Category, Stop: StopRunning}
	logger := p.logger.With(zap.String("run_id", runID), zap.String("source", src.Name))

	var previous Signature
	page := 1
	for !result.Stop.Terminal() {
		if page > src.MaxPages {
			result.finish(StopPageCeiling, nil)
			break
		}
		if err := ctx.Err(); err != nil {
			result.finish(StopCanceled, err)
			break
		}

		url := src.PageURL(page)
		payload, err := p.fetcher.Fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil || IsCanceled(err) {
				result.finish(StopCanceled, err)
				break
			}
			result.PagesFailed++
			metrics.ObservePage(string(p.mode), metrics.OutcomeFetchFailed)
			logger.Warn("page fetch failed", zap.Int("page", page), zap.String("url", url), zap.Error(err))
			result.finish(StopFetchFailure, asFetchError(url, err))
			break
		}
		result.PagesFetched++
		result.LastPage = page
		metrics.ObserveFetchDuration(string(p.mode), payload.Duration)
		p.archivePayload(ctx, runID, src.Name, page, payload, logger)

		extracted, err := p.extractor.Extract(payload, src.Category)
		if err != nil {
			result.PagesFailed++
			metrics.ObservePage(string(p.mode), metrics.OutcomeExtractFailed)
			var extractErr *ExtractionError
			if !errors.As(err, &extractErr) {
				err = &ExtractionError{URL: url, Err: err}
			}
			logger.Warn("page skipped: extraction failed", zap.Int("page", page), zap.Error(err))
			result.Err = err
			result.ErrorText = err.Error()
			page++
			continue
		}
		result.PagesSucceeded++
		result.AdsSkipped += extracted.Skipped
		if extracted.Skipped > 0 {
			metrics.ObserveAdsSkipped(extracted.Skipped)
		}

		if len(extracted.Records) == 0 {
			metrics.ObservePage(string(p.mode), metrics.OutcomeEmpty)
			logger.Info("no records on page", zap.Int("page", page))
			result.finish(StopEmpty, nil)
			break
		}
		if previous != "" && extracted.Signature == previous {
			metrics.ObservePage(string(p.mode), metrics.OutcomeDuplicate)
			logger.Info("page repeats previous page", zap.Int("page", page))
			result.finish(StopDuplicate, nil)
			break
		}
		metrics.ObservePage(string(p.mode), metrics.OutcomeOK)
		result.RecordsExtracted += len(extracted.Records)

		batch := p.persister.StoreAll(ctx, runID, extracted.Records)
		result.addBatch(batch)
		logger.Debug("page processed",
			zap.Int("page", page),
			zap.Int("records", len(extracted.Records)),
			zap.Int("stored", batch.Stored),
			zap.Int("rejected", batch.RejectedTotal()),
		)
		if batch.NotAttempted > 0 && ctx.Err() != nil {
			result.finish(StopCanceled, ctx.Err())
			break
		}

		previous = extracted.Signature
		page++
	}

	metrics.ObserveSourceStop(string(result.Stop))
	logger.Info("source finished",
		zap.String("stop", string(result.Stop)),
		zap.Int("pages_fetched", result.PagesFetched),
		zap.Int("records_stored", result.RecordsStored),
	)
	return result
}

func (p *Paginator) archivePayload(ctx context.Context, runID, source string, page int, payload Payload, logger *zap.Logger) {
	if p.archive == nil {
		return
	}
	path := fmt.Sprintf("%s/%s/%s/page-%d.%s", p.prefix, runID, source, page, p.mode.Extension())
	if p.prefix == "" {
		path = path[1:]
	}
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	uri, err := p.archive.PutObject(ctx, path, contentType, bytes.NewReader(payload.Body))
	if err != nil {
		logger.Warn("archive page failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("page archived", zap.String("uri", uri))
}
