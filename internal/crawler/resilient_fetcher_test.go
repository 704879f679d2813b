package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedFetcher returns errs in order, then succeeds.
type scriptedFetcher struct {
	errs  []error
	calls int
}

func (s *scriptedFetcher) Fetch(_ context.Context, url string) (Payload, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return Payload{}, s.errs[s.calls-1]
	}
	return Payload{URL: url, StatusCode: 200, Body: []byte("ok")}, nil
}

type countingLimiter struct {
	waits int
	err   error
}

func (c *countingLimiter) Wait(context.Context, string) error {
	c.waits++
	return c.err
}

func newTestResilient(next Fetcher, limiter Limiter, retries int) (*ResilientFetcher, *[]time.Duration) {
	f := NewResilientFetcher(next, limiter, NewExponentialRetryPolicy(retries, time.Millisecond, 4*time.Millisecond), nil)
	var slept []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return f, &slept
}

func TestResilientFetcherRetriesTemporaryErrors(t *testing.T) {
	t.Parallel()

	next := &scriptedFetcher{errs: []error{
		NewFetchError("u", 503, nil),
		NewFetchError("u", 0, errors.New("reset")),
	}}
	limiter := &countingLimiter{}
	f, slept := newTestResilient(next, limiter, 2)

	payload, err := f.Fetch(context.Background(), "https://bama.ir/car")
	require.NoError(t, err)
	require.Equal(t, "ok", string(payload.Body))
	require.Equal(t, 3, next.calls)
	require.Equal(t, 3, limiter.waits)
	require.Len(t, *slept, 2)
}

func TestResilientFetcherGivesUp(t *testing.T) {
	t.Parallel()

	next := &scriptedFetcher{errs: []error{
		NewFetchError("u", 500, nil),
		NewFetchError("u", 500, nil),
		NewFetchError("u", 500, nil),
	}}
	f, _ := newTestResilient(next, nil, 1)

	_, err := f.Fetch(context.Background(), "https://bama.ir/car")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 500, fetchErr.StatusCode)
	require.Equal(t, 2, next.calls)
}

func TestResilientFetcherDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	next := &scriptedFetcher{errs: []error{NewFetchError("u", 404, nil)}}
	f, slept := newTestResilient(next, nil, 3)

	_, err := f.Fetch(context.Background(), "https://bama.ir/car")
	require.Error(t, err)
	require.Equal(t, 1, next.calls)
	require.Empty(t, *slept)
}

func TestResilientFetcherStopsWhenCallerContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	next := fetcherFunc(func(_ context.Context, url string) (Payload, error) {
		calls++
		cancel()
		return Payload{}, NewFetchError(url, 0, context.DeadlineExceeded)
	})
	f, slept := newTestResilient(next, nil, 3)

	_, err := f.Fetch(ctx, "https://bama.ir/car")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
	require.Empty(t, *slept)
}

func TestResilientFetcherRetriesRequestTimeouts(t *testing.T) {
	t.Parallel()

	next := &scriptedFetcher{errs: []error{NewFetchError("u", 0, context.DeadlineExceeded)}}
	f, slept := newTestResilient(next, nil, 2)

	_, err := f.Fetch(context.Background(), "https://bama.ir/car")
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
	require.Len(t, *slept, 1)
}

func TestResilientFetcherWrapsUntypedErrors(t *testing.T) {
	t.Parallel()

	next := &scriptedFetcher{errs: []error{errors.New("plain")}}
	f := NewResilientFetcher(next, nil, nil, nil)

	_, err := f.Fetch(context.Background(), "https://bama.ir/car")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "https://bama.ir/car", fetchErr.URL)
}

func TestResilientFetcherLimiterError(t *testing.T) {
	t.Parallel()

	next := &scriptedFetcher{}
	f := NewResilientFetcher(next, &countingLimiter{err: context.Canceled}, nil, nil)

	_, err := f.Fetch(context.Background(), "https://bama.ir/car")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, next.calls)
}

func TestSleepCtx(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, sleepCtx(ctx, 0), context.Canceled)
}
