package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// JSONExtractor reads listing search API pages.
type JSONExtractor struct {
	keyPrefix string
	hasher    crawler.Hasher
	logger    *zap.Logger
}

// NewJSONExtractor builds an extractor. keyPrefix is prepended to each ad's
// relative url to form its natural key.
func NewJSONExtractor(keyPrefix string, hasher crawler.Hasher, logger *zap.Logger) *JSONExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONExtractor{keyPrefix: keyPrefix, hasher: hasher, logger: logger}
}

type searchResponse struct {
	Data *struct {
		Ads json.RawMessage `json:"ads"`
	} `json:"data"`
}

// Extract decodes payload.Body. Ads without a detail object are skipped and
// counted. A missing data.ads list yields an empty page.
func (e *JSONExtractor) Extract(payload crawler.Payload, category string) (crawler.Page, error) {
	var resp searchResponse
	if err := json.Unmarshal(payload.Body, &resp); err != nil {
		return crawler.Page{}, &crawler.ExtractionError{URL: payload.URL, Err: fmt.Errorf("decode json: %w", err)}
	}
	if resp.Data == nil || len(resp.Data.Ads) == 0 || bytes.Equal(resp.Data.Ads, []byte("null")) {
		return crawler.Page{}, nil
	}

	var ads []json.RawMessage
	if err := json.Unmarshal(resp.Data.Ads, &ads); err != nil {
		return crawler.Page{}, &crawler.ExtractionError{URL: payload.URL, Err: fmt.Errorf("decode ads: %w", err)}
	}

	page := crawler.Page{}
	for i, raw := range ads {
		rec, err := e.parseAd(raw, category, payload.URL)
		if err != nil {
			page.Skipped++
			e.logger.Warn("skipped ad without detail",
				zap.String("url", payload.URL),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		page.Records = append(page.Records, rec)
	}
	if len(page.Records) == 0 {
		return page, nil
	}

	sig, err := e.signature(resp.Data.Ads)
	if err != nil {
		return crawler.Page{}, &crawler.ExtractionError{URL: payload.URL, Err: err}
	}
	page.Signature = sig
	return page, nil
}

func (e *JSONExtractor) parseAd(raw json.RawMessage, category, sourceURL string) (crawler.Record, error) {
	var ad map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&ad); err != nil {
		return crawler.Record{}, fmt.Errorf("%w: ad is not an object", crawler.ErrSkippedAd)
	}
	detail, ok := ad["detail"].(map[string]any)
	if !ok || len(detail) == 0 {
		return crawler.Record{}, fmt.Errorf("%w: no detail", crawler.ErrSkippedAd)
	}
	path := field(detail, "url")
	if path == "" {
		return crawler.Record{}, fmt.Errorf("%w: detail has no url", crawler.ErrSkippedAd)
	}
	rec, err := crawler.NewRecord(e.keyPrefix+path,
		crawler.WithCategory(category),
		crawler.WithTitle(field(detail, "title")),
		crawler.WithPostedTime(field(detail, "time")),
		crawler.WithYear(field(detail, "year")),
		crawler.WithMileage(field(detail, "mileage")),
		crawler.WithLocation(field(detail, "location")),
		crawler.WithDescription(field(detail, "description")),
		crawler.WithImage(field(detail, "image")),
		crawler.WithModifiedDate(field(detail, "modified_date")),
		crawler.WithPrice(priceField(ad, detail)),
		crawler.WithSourceURL(sourceURL),
	)
	if err != nil {
		return crawler.Record{}, errors.Join(crawler.ErrSkippedAd, err)
	}
	return rec, nil
}

// signature hashes a canonical re-encoding of the ads list, so lists that
// are deep-equal hash the same regardless of key order or whitespace.
func (e *JSONExtractor) signature(ads json.RawMessage) (crawler.Signature, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(ads))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("canonicalize ads: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("canonicalize ads: %w", err)
	}
	sum, err := e.hasher.Hash(canonical)
	if err != nil {
		return "", fmt.Errorf("hash ads: %w", err)
	}
	return crawler.Signature(sum), nil
}

func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func priceField(ad, detail map[string]any) string {
	if p := field(detail, "price"); p != "" {
		return p
	}
	if price, ok := ad["price"].(map[string]any); ok {
		return field(price, "price")
	}
	return field(ad, "price")
}
