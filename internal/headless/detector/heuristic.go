// Package detector decides when a statically fetched page has to be
// rendered again in headless Chrome.
package detector

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
	// ContentMarker proves the listings are already in the static HTML. When
	// present in the body the page is never promoted.
	ContentMarker []byte
}

// NewHeuristic creates a new detector. A zero threshold defaults to 2048
// bytes; an empty marker disables the content check.
func NewHeuristic(threshold int, contentMarker string) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	h := &Heuristic{BodyLengthThreshold: threshold}
	if contentMarker != "" {
		h.ContentMarker = []byte(contentMarker)
	}
	return h
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("__nuxt"),
}

// ShouldPromote reports whether payload looks like a client-rendered shell.
func (h *Heuristic) ShouldPromote(payload crawler.Payload) bool {
	if payload.StatusCode < 200 || payload.StatusCode >= 300 {
		return false
	}
	body := payload.Body
	if len(body) == 0 {
		return true
	}
	if len(h.ContentMarker) > 0 && bytes.Contains(body, h.ContentMarker) {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			// Unterminated tag: the rest of the document is script.
			coverage += total - start
			break
		}
		bodyStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[bodyStart:], closeTag); end != -1 {
			next = bodyStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}
