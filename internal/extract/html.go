package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Placeholders recorded when a listing card lacks a field.
const (
	NoTitle    = "No Title"
	NoImage    = "No Image"
	NoPrice    = "No Price"
	NoLocation = "No Location"
	NoPostTime = "No Post Time"
)

// HTMLConfig names the classes of a listing card.
type HTMLConfig struct {
	ContainerClass string
	ClassBase      string
	TitleClass     string
	KeyAttribute   string
}

// DefaultHTMLConfig matches the listing card markup of bama.ir.
func DefaultHTMLConfig() HTMLConfig {
	return HTMLConfig{
		ContainerClass: "bama-ad-holder",
		ClassBase:      "bama-ad",
		TitleClass:     "text",
		KeyAttribute:   "code",
	}
}

type cardSelectors struct {
	container string
	imageBox  string
	title     string
	price     string
	address   string
	postTime  string
	details   string
}

// HTMLExtractor reads listing cards out of rendered category pages.
type HTMLExtractor struct {
	cfg    HTMLConfig
	sel    cardSelectors
	hasher crawler.Hasher
	logger *zap.Logger
}

// NewHTMLExtractor builds an extractor; empty config fields take the defaults.
func NewHTMLExtractor(cfg HTMLConfig, hasher crawler.Hasher, logger *zap.Logger) *HTMLExtractor {
	def := DefaultHTMLConfig()
	if cfg.ContainerClass == "" {
		cfg.ContainerClass = def.ContainerClass
	}
	if cfg.ClassBase == "" {
		cfg.ClassBase = def.ClassBase
	}
	if cfg.TitleClass == "" {
		cfg.TitleClass = def.TitleClass
	}
	if cfg.KeyAttribute == "" {
		cfg.KeyAttribute = def.KeyAttribute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLExtractor{
		cfg: cfg,
		sel: cardSelectors{
			container: "div" + classSelector(cfg.ContainerClass),
			imageBox:  classSelector(ComposeClassName(cfg.ClassBase, "image-box")),
			title:     classSelector(ComposeClassName(cfg.TitleClass)),
			price:     classSelector(ComposeClassName(cfg.ClassBase, "price")),
			address:   classSelector(ComposeClassName(cfg.ClassBase, "address")),
			postTime:  classSelector(ComposeClassName(cfg.ClassBase, "time")),
			details:   classSelector(ComposeClassName(cfg.ClassBase, "detail-row")),
		},
		hasher: hasher,
		logger: logger,
	}
}

// Extract parses payload.Body. Containers without a key attribute are
// ignored; a key seen twice on one page keeps its first card.
func (e *HTMLExtractor) Extract(payload crawler.Payload, category string) (crawler.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload.Body))
	if err != nil {
		return crawler.Page{}, &crawler.ExtractionError{URL: payload.URL, Err: fmt.Errorf("parse html: %w", err)}
	}

	page := crawler.Page{}
	seen := make(map[string]struct{})
	var keys []string
	doc.Find(e.sel.container).Each(func(_ int, card *goquery.Selection) {
		code, ok := card.Attr(e.cfg.KeyAttribute)
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return
		}
		if _, dup := seen[code]; dup {
			e.logger.Debug("repeated card on page", zap.String("code", code), zap.String("url", payload.URL))
			return
		}
		rec, err := crawler.NewRecord(code,
			crawler.WithCategory(category),
			crawler.WithTitle(textOr(card, e.sel.title, NoTitle)),
			crawler.WithImage(e.image(card)),
			crawler.WithPrice(textOr(card, e.sel.price, NoPrice)),
			crawler.WithLocation(textOr(card, e.sel.address, NoLocation)),
			crawler.WithPostedTime(textOr(card, e.sel.postTime, NoPostTime)),
			crawler.WithDetails(e.details(card)),
			crawler.WithSourceURL(payload.URL),
		)
		if err != nil {
			page.Skipped++
			return
		}
		seen[code] = struct{}{}
		keys = append(keys, code)
		page.Records = append(page.Records, rec)
	})
	if len(page.Records) == 0 {
		return page, nil
	}

	sum, err := e.hasher.Hash([]byte(strings.Join(keys, "\n")))
	if err != nil {
		return crawler.Page{}, &crawler.ExtractionError{URL: payload.URL, Err: fmt.Errorf("hash keys: %w", err)}
	}
	page.Signature = crawler.Signature(sum)
	return page, nil
}

func (e *HTMLExtractor) image(card *goquery.Selection) string {
	box := card.Find(e.sel.imageBox).First()
	if box.Length() == 0 {
		return NoImage
	}
	src, ok := box.Find("img").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return NoImage
	}
	return strings.TrimSpace(src)
}

func (e *HTMLExtractor) details(card *goquery.Selection) []string {
	row := card.Find(e.sel.details).First()
	if row.Length() == 0 {
		return nil
	}
	var out []string
	row.Find("span").Each(func(_ int, span *goquery.Selection) {
		out = append(out, strings.TrimSpace(span.Text()))
	})
	return out
}

func textOr(card *goquery.Selection, selector, fallback string) string {
	node := card.Find(selector).First()
	if node.Length() == 0 {
		return fallback
	}
	return strings.TrimSpace(node.Text())
}
