package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	t.Parallel()

	details := []string{"1399", "automatic"}
	rec, err := NewRecord("  A1  ", WithTitle("Peugeot 206"), WithDetails(details), WithCategory("sedan"))
	require.NoError(t, err)
	require.Equal(t, "A1", rec.NaturalKey)
	require.Equal(t, "Peugeot 206", rec.Title)
	require.Equal(t, "sedan", rec.Category)

	details[0] = "mutated"
	require.Equal(t, "1399", rec.DetailFields[0], "details must be copied")

	rec, err = NewRecord("B2", WithDetails(nil))
	require.NoError(t, err)
	require.Nil(t, rec.DetailFields)

	_, err = NewRecord("   ")
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestStopReason(t *testing.T) {
	t.Parallel()

	require.False(t, StopRunning.Terminal())
	require.False(t, StopReason("").Terminal())
	for _, s := range []StopReason{StopEmpty, StopDuplicate, StopFetchFailure, StopPageCeiling, StopCanceled} {
		require.True(t, s.Terminal(), s)
	}
	require.True(t, StopEmpty.NoNewData())
	require.True(t, StopDuplicate.NoNewData())
	require.False(t, StopPageCeiling.NoNewData())
	require.Equal(t, "html", ModeHTML.Extension())
	require.Equal(t, "json", ModeJSON.Extension())
}

func TestFetchError(t *testing.T) {
	t.Parallel()

	err := NewFetchError("https://bama.ir/car", 503, nil)
	require.EqualError(t, err, "fetch https://bama.ir/car: status 503: Service Unavailable")
	require.True(t, err.Temporary())

	cause := errors.New("dial tcp: refused")
	wrapped := fmt.Errorf("page 2: %w", NewFetchError("https://bama.ir/car", 0, cause))
	require.ErrorIs(t, wrapped, cause)
	var fetchErr *FetchError
	require.ErrorAs(t, wrapped, &fetchErr)
	require.True(t, fetchErr.Temporary())
	require.EqualError(t, fetchErr, "fetch https://bama.ir/car: dial tcp: refused")

	require.True(t, NewFetchError("u", 0, context.DeadlineExceeded).Temporary())
	require.False(t, NewFetchError("u", 0, fmt.Errorf("visit: %w", context.Canceled)).Temporary())
	require.False(t, NewFetchError("u", 403, nil).Temporary())
	require.True(t, NewFetchError("u", 408, nil).Temporary())
	require.True(t, IsCanceled(NewFetchError("u", 0, context.Canceled)))
}

func TestFetchErrorCollyTimeoutIsTemporary(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-release }))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(50 * time.Millisecond)
	visitErr := c.Visit(srv.URL)
	var netErr net.Error
	require.ErrorAs(t, visitErr, &netErr)
	require.True(t, netErr.Timeout())

	fetchErr := NewFetchError(srv.URL, 0, visitErr)
	require.True(t, fetchErr.Temporary())
	policy := NewExponentialRetryPolicy(2, time.Millisecond, time.Millisecond)
	require.True(t, policy.ShouldRetry(fetchErr, 1))
}

func TestExtractionError(t *testing.T) {
	t.Parallel()

	cause := errors.New("unexpected EOF")
	err := &ExtractionError{URL: "https://bama.ir/car?page=2", Err: cause}
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "extract https://bama.ir/car?page=2: unexpected EOF")
}

func TestSourceResultFailed(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name string
		res  SourceResult
		want bool
	}{
		{name: "clean stop", res: SourceResult{Stop: StopEmpty, PagesSucceeded: 2}, want: false},
		{name: "fetch failure after pages", res: SourceResult{Stop: StopFetchFailure, PagesSucceeded: 3, Err: boom}, want: true},
		{name: "nothing usable", res: SourceResult{Stop: StopPageCeiling, Err: boom}, want: true},
		{name: "skipped page but others fine", res: SourceResult{Stop: StopEmpty, PagesSucceeded: 1, Err: boom}, want: false},
		{name: "canceled", res: SourceResult{Stop: StopCanceled, Err: context.Canceled}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.res.Failed())
		})
	}
}

func TestRunSummaryAggregates(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := RunSummary{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	s.add(SourceResult{
		Stop: StopEmpty, PagesFetched: 3, PagesSucceeded: 3, RecordsExtracted: 5, RecordsStored: 4,
		RecordsRejected: map[RejectReason]int{RejectDuplicate: 1},
	})
	require.False(t, s.Degraded)

	s.add(SourceResult{
		Stop: StopFetchFailure, PagesFetched: 1, PagesSucceeded: 1, PagesFailed: 1, RecordsExtracted: 2,
		RecordsStored: 1, RecordsRejected: map[RejectReason]int{RejectOther: 1},
	})
	require.True(t, s.Degraded)
	require.Equal(t, 4, s.PagesFetched)
	require.Equal(t, 1, s.PagesFailed)
	require.Equal(t, 7, s.RecordsExtracted)
	require.Equal(t, 5, s.RecordsStored)
	require.Equal(t, 2, s.RejectedTotal())
	require.Len(t, s.Sources, 2)
	require.Equal(t, 90*time.Second, s.Duration())

	b := BatchResult{Rejected: map[RejectReason]int{RejectDuplicate: 2, RejectOther: 1}}
	require.Equal(t, 3, b.RejectedTotal())
}
