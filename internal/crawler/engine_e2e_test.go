package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/clock/system"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
	"github.com/JakeFAU/listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/listing-crawler/internal/persist"
	"github.com/JakeFAU/listing-crawler/internal/storage/memory"
	"github.com/JakeFAU/listing-crawler/internal/store"
)

func newGateway(t *testing.T, s store.ListingStore) *persist.Gateway {
	t.Helper()
	g, err := persist.NewGateway(s, nil, system.New(), persist.Config{}, zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestScrapeJSONEndToEnd(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"1": `{"data":{"ads":[{"detail":{"url":"/car/a","title":"Peugeot 206"}},{"detail":{"url":"/car/b","title":"Pride"}},{"type":"banner"}]}}`,
		"2": `{"data":{"ads":[{"detail":{"url":"/car/c","title":"Tiba"}}]}}`,
		// Same ads as page 2 with different formatting: the walk stops here.
		"3": `{"data":{"ads":[ {"detail":{"title":"Tiba","url":"/car/c"}} ]}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Query().Get("pageIndex")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	listings := memory.NewListingStore()
	archive := memory.NewBlobStore()
	engine, err := crawler.NewEngine(crawler.EngineConfig{
		Mode:          crawler.ModeJSON,
		BaseURL:       srv.URL + "/cad/api/search?pageIndex=",
		MaxPages:      10,
		Concurrency:   1,
		ArchivePrefix: "pages",
	}, crawler.EngineDeps{
		Fetcher:   collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}),
		Extractor: extract.NewJSONExtractor("https://bama.ir", sha256.NewWithDomain("ads"), zap.NewNop()),
		Persister: newGateway(t, listings),
		Archive:   archive,
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, zap.NewNop())
	require.NoError(t, err)

	summary, err := engine.Scrape(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 3, summary.PagesFetched)
	require.Equal(t, 3, summary.RecordsStored)
	require.Equal(t, 1, summary.AdsSkipped)
	require.True(t, summary.Degraded, "a skipped ad marks the run degraded")
	require.Equal(t, crawler.StopDuplicate, summary.Sources[0].Stop)
	require.Len(t, archive.Paths(), 3)

	stored, err := listings.QueryByField(context.Background(), store.FieldNaturalKey, "https://bama.ir/car/a")
	require.NoError(t, err)
	require.Equal(t, "Peugeot 206", stored.Title)
	require.Equal(t, summary.RunID, stored.RunID)

	// A second run finds everything already stored.
	again, err := engine.Scrape(context.Background())
	require.NoError(t, err)
	require.Zero(t, again.RecordsStored)
	require.Equal(t, 3, again.RecordsRejected[crawler.RejectDuplicate])
	all, err := listings.QueryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func card(code, title string) string {
	return fmt.Sprintf(`<div class="bama-ad-holder" code="%s"><p class="text">%s</p>
<span class="bama-ad__price">100</span><div class="bama-ad__detail-row"><span>1399</span><span>manual</span></div></div>`, code, title)
}

func TestScrapeHTMLEndToEnd(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body>
<a href="/car/sedan">Sedan</a><a href="/car/suv?sort=new">SUV</a><a href="/car/sedan">again</a>
<a href="/car/broken">Broken</a><a href="https://elsewhere.example/car/x">ext</a><a href="/help">help</a>
</body></html>`))
	})
	mux.HandleFunc("/car/sedan", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			_, _ = w.Write([]byte("<html><body>" + card("S1", "Peugeot") + card("S2", "Samand") + "</body></html>"))
		case "2":
			_, _ = w.Write([]byte("<html><body>" + card("S3", "Dena") + "</body></html>"))
		default:
			_, _ = w.Write([]byte("<html><body><p>no results</p></body></html>"))
		}
	})
	mux.HandleFunc("/car/suv", func(w http.ResponseWriter, _ *http.Request) {
		// Every page repeats the first one.
		_, _ = w.Write([]byte("<html><body>" + card("V1", "Tara") + "</body></html>"))
	})
	mux.HandleFunc("/car/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	listings := memory.NewListingStore()
	engine, err := crawler.NewEngine(crawler.EngineConfig{
		Mode:             crawler.ModeHTML,
		BaseURL:          srv.URL + "/",
		MaxPages:         10,
		Concurrency:      3,
		CategoryName:     "car",
		CategoryMaxPages: 5,
	}, crawler.EngineDeps{
		Fetcher:   collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}),
		Extractor: extract.NewHTMLExtractor(extract.DefaultHTMLConfig(), sha256.NewWithDomain("cards"), zap.NewNop()),
		Links:     extract.NewLinkExtractor(),
		Persister: newGateway(t, listings),
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, zap.NewNop())
	require.NoError(t, err)

	summary, err := engine.Scrape(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.CategoriesFound)
	require.Equal(t, 1, summary.CategoriesFailed)
	require.Equal(t, 4, summary.RecordsStored)
	require.True(t, summary.Degraded)

	stops := make(map[string]crawler.StopReason)
	for _, src := range summary.Sources {
		stops[src.Name] = src.Stop
	}
	require.Equal(t, map[string]crawler.StopReason{
		"broken": crawler.StopFetchFailure,
		"sedan":  crawler.StopEmpty,
		"suv":    crawler.StopDuplicate,
	}, stops)

	sedans, err := listings.QueryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, sedans, 4)
	s1, err := listings.QueryByField(context.Background(), store.FieldNaturalKey, "S1")
	require.NoError(t, err)
	require.Equal(t, "sedan", s1.Category)
	require.Equal(t, "1399, manual", s1.Details)
}
