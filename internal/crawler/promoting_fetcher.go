package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// Promoter decides whether a statically fetched payload must be rendered.
type Promoter interface {
	ShouldPromote(payload Payload) bool
}

// PromotingFetcher probes each URL with a cheap fetcher and repeats the
// request through a rendering fetcher when the probe looks client-rendered.
type PromotingFetcher struct {
	probe    Fetcher
	render   Fetcher
	promoter Promoter
	logger   *zap.Logger
}

// NewPromotingFetcher wires the probe and render fetchers.
func NewPromotingFetcher(probe, render Fetcher, promoter Promoter, logger *zap.Logger) *PromotingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotingFetcher{probe: probe, render: render, promoter: promoter, logger: logger}
}

// Fetch returns the probe payload unless the promoter asks for a render. A
// failed render falls back to the probe payload.
func (f *PromotingFetcher) Fetch(ctx context.Context, url string) (Payload, error) {
	payload, err := f.probe.Fetch(ctx, url)
	if err != nil {
		return Payload{}, err
	}
	if !f.promoter.ShouldPromote(payload) {
		return payload, nil
	}
	rendered, err := f.render.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return Payload{}, asFetchError(url, err)
		}
		metrics.ObserveHeadlessPromotion(metrics.OutcomeFailed)
		f.logger.Warn("headless render failed, keeping static payload", zap.String("url", url), zap.Error(err))
		return payload, nil
	}
	metrics.ObserveHeadlessPromotion(metrics.OutcomeOK)
	f.logger.Debug("page promoted to headless", zap.String("url", url))
	return rendered, nil
}
