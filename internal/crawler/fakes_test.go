package crawler

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// fakeFetcher serves canned bodies by URL. Unknown URLs fail with 404.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: make(map[string]string), errs: make(map[string]error)}
}

func (f *fakeFetcher) serve(url, body string) *fakeFetcher {
	f.bodies[url] = body
	return f
}

func (f *fakeFetcher) fail(url string, err error) *fakeFetcher {
	f.errs[url] = err
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (Payload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	body, ok := f.bodies[url]
	err := f.errs[url]
	f.mu.Unlock()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Payload{}, NewFetchError(url, 0, ctxErr)
	}
	if err != nil {
		return Payload{}, err
	}
	if !ok {
		return Payload{}, NewFetchError(url, 404, nil)
	}
	return Payload{URL: url, StatusCode: 200, ContentType: "text/plain", Body: []byte(body)}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// keyListExtractor reads a comma-separated list of natural keys. A body
// starting with "!" is unparseable. The signature is the body itself.
type keyListExtractor struct{}

func (keyListExtractor) Extract(payload Payload, category string) (Page, error) {
	body := strings.TrimSpace(string(payload.Body))
	if strings.HasPrefix(body, "!") {
		return Page{}, &ExtractionError{URL: payload.URL, Err: errors.New("malformed page")}
	}
	page := Page{}
	if body == "" {
		return page, nil
	}
	for _, key := range strings.Split(body, ",") {
		if key == "-" {
			page.Skipped++
			continue
		}
		rec, err := NewRecord(key, WithCategory(category), WithSourceURL(payload.URL))
		if err != nil {
			page.Skipped++
			continue
		}
		page.Records = append(page.Records, rec)
	}
	if len(page.Records) > 0 {
		page.Signature = Signature(body)
	}
	return page, nil
}

// lineLinks treats every line of the body as one link.
type lineLinks struct{}

func (lineLinks) Links(body []byte) ([]string, error) {
	if strings.HasPrefix(string(body), "!") {
		return nil, errors.New("malformed root")
	}
	var out []string
	for _, line := range strings.Split(string(body), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// setPersister stores keys in a set and records every batch.
type setPersister struct {
	mu      sync.Mutex
	keys    map[string]string
	batches [][]string
}

func newSetPersister() *setPersister {
	return &setPersister{keys: make(map[string]string)}
}

func (p *setPersister) StoreAll(ctx context.Context, runID string, records []Record) BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := BatchResult{Rejected: make(map[RejectReason]int)}
	var batch []string
	for i, rec := range records {
		if ctx.Err() != nil {
			res.NotAttempted = len(records) - i
			break
		}
		batch = append(batch, rec.NaturalKey)
		if _, ok := p.keys[rec.NaturalKey]; ok {
			res.Rejected[RejectDuplicate]++
			continue
		}
		p.keys[rec.NaturalKey] = runID
		res.Stored++
	}
	p.batches = append(p.batches, batch)
	return res
}

func (p *setPersister) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }
