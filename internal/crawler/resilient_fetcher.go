package crawler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ResilientFetcher wraps a Fetcher with per-host politeness and retries.
type ResilientFetcher struct {
	next    Fetcher
	limiter Limiter
	retry   RetryPolicy
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilientFetcher decorates next. limiter and retry may be nil.
func NewResilientFetcher(next Fetcher, limiter Limiter, retry RetryPolicy, logger *zap.Logger) *ResilientFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResilientFetcher{
		next:    next,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Fetch retrieves url, waiting on the limiter before each attempt.
func (f *ResilientFetcher) Fetch(ctx context.Context, url string) (Payload, error) {
	for attempt := 1; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return Payload{}, NewFetchError(url, 0, err)
			}
		}
		payload, err := f.next.Fetch(ctx, url)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil || f.retry == nil || !f.retry.ShouldRetry(err, attempt) {
			return Payload{}, asFetchError(url, err)
		}
		delay := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return Payload{}, NewFetchError(url, 0, err)
		}
	}
}

func asFetchError(url string, err error) error {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return NewFetchError(url, 0, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
