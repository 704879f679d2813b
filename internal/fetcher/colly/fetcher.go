// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are added to every request.
	Headers http.Header
}

// Fetcher implements crawler.Fetcher using the Colly collector. Every Fetch
// runs on a clone of one base collector so callbacks never leak between
// concurrent requests.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState is filled in by collector callbacks. Visit runs synchronously,
// so the callbacks finish before Fetch reads it.
type fetchState struct {
	payload  crawler.Payload
	got      bool
	fetchErr error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET. Transport failures and non-2xx statuses
// come back as *crawler.FetchError. The request is bound to ctx, so
// cancellation aborts it in the transport.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Payload, error) {
	if err := ctx.Err(); err != nil {
		return crawler.Payload{}, crawler.NewFetchError(url, 0, err)
	}
	state := &fetchState{}
	collector := f.buildCollector(ctx, state, time.Now())

	visitErr := collector.Visit(url)
	if err := ctx.Err(); err != nil {
		return crawler.Payload{}, crawler.NewFetchError(url, 0, fmt.Errorf("colly fetch canceled: %w", err))
	}
	if visitErr != nil {
		return crawler.Payload{}, crawler.NewFetchError(url, state.payload.StatusCode, fmt.Errorf("colly visit failed: %w", visitErr))
	}
	if state.fetchErr != nil {
		return crawler.Payload{}, crawler.NewFetchError(url, state.payload.StatusCode, state.fetchErr)
	}
	if !state.got {
		return crawler.Payload{}, crawler.NewFetchError(url, 0, errors.New("no response"))
	}
	if code := state.payload.StatusCode; code < 200 || code > 299 {
		return crawler.Payload{}, crawler.NewFetchError(url, code, fmt.Errorf("unexpected status %d", code))
	}
	return state.payload, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, state *fetchState, start time.Time) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	f.configureCollectorHooks(ctx, collector, state, start)
	return collector
}

func (f *Fetcher) configureCollectorHooks(ctx context.Context, hooks collectorHooks, state *fetchState, start time.Time) {
	hooks.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.got = true
		state.payload = crawler.Payload{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Headers != nil {
			state.payload.ContentType = r.Headers.Get("Content-Type")
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.payload.StatusCode = r.StatusCode
		}
		state.fetchErr = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
