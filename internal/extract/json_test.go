package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
)

func newJSONExtractor() *JSONExtractor {
	return NewJSONExtractor("https://bama.ir", sha256.New(), zap.NewNop())
}

func jsonPayload(body string) crawler.Payload {
	return crawler.Payload{URL: "https://bama.ir/cad/api/search?pageIndex=1", Body: []byte(body)}
}

func TestJSONExtractorParsesAds(t *testing.T) {
	t.Parallel()

	body := `{"data":{"ads":[
		{"detail":{"url":"/car/detail-abc","title":"Peugeot 206","time":"2 hours ago","year":1399,
			"mileage":"10,000 km","location":"Tehran","description":"clean","image":"https://cdn/img.jpg",
			"modified_date":"2024-08-19"},"price":{"price":"650,000,000"}},
		{"detail":{"url":"/car/detail-def","title":"Pride"}}
	]}}`

	page, err := newJSONExtractor().Extract(jsonPayload(body), "")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.Zero(t, page.Skipped)
	require.NotEmpty(t, page.Signature)

	first := page.Records[0]
	require.Equal(t, "https://bama.ir/car/detail-abc", first.NaturalKey)
	require.Equal(t, "Peugeot 206", first.Title)
	require.Equal(t, "2 hours ago", first.PostedTimeText)
	require.Equal(t, "1399", first.Year)
	require.Equal(t, "10,000 km", first.Mileage)
	require.Equal(t, "Tehran", first.LocationText)
	require.Equal(t, "clean", first.Description)
	require.Equal(t, "https://cdn/img.jpg", first.ImageURL)
	require.Equal(t, "2024-08-19", first.ModifiedDate)
	require.Equal(t, "650,000,000", first.PriceText)

	second := page.Records[1]
	require.Equal(t, "https://bama.ir/car/detail-def", second.NaturalKey)
	require.Empty(t, second.LocationText)
	require.Empty(t, second.ImageURL)
}

func TestJSONExtractorSkipsAdsWithoutDetail(t *testing.T) {
	t.Parallel()

	body := `{"data":{"ads":[{"type":"banner"},{"detail":{}},{"detail":{"url":"/car/x"}},{"detail":{"title":"no url"}}]}}`
	page, err := newJSONExtractor().Extract(jsonPayload(body), "")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, 3, page.Skipped)
}

func TestJSONExtractorEmptyShapes(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{}`, `{"data":{}}`, `{"data":{"ads":[]}}`, `{"data":{"ads":null}}`} {
		page, err := newJSONExtractor().Extract(jsonPayload(body), "")
		require.NoError(t, err, body)
		require.Empty(t, page.Records, body)
	}
}

func TestJSONExtractorRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	_, err := newJSONExtractor().Extract(jsonPayload(`<html>maintenance</html>`), "")
	var extractErr *crawler.ExtractionError
	require.True(t, errors.As(err, &extractErr))
	require.Contains(t, extractErr.URL, "pageIndex=1")

	_, err = newJSONExtractor().Extract(jsonPayload(`{"data":{"ads":{"not":"a list"}}}`), "")
	require.True(t, errors.As(err, &extractErr))
}

func TestJSONExtractorSignatureIgnoresKeyOrderAndWhitespace(t *testing.T) {
	t.Parallel()

	a := `{"data":{"ads":[{"detail":{"url":"/car/1","title":"A"}}]}}`
	b := `{ "data" : { "ads" : [ { "detail" : { "title" : "A", "url" : "/car/1" } } ] } }`
	c := `{"data":{"ads":[{"detail":{"url":"/car/2","title":"A"}}]}}`

	ex := newJSONExtractor()
	pa, err := ex.Extract(jsonPayload(a), "")
	require.NoError(t, err)
	pb, err := ex.Extract(jsonPayload(b), "")
	require.NoError(t, err)
	pc, err := ex.Extract(jsonPayload(c), "")
	require.NoError(t, err)

	require.Equal(t, pa.Signature, pb.Signature)
	require.NotEqual(t, pa.Signature, pc.Signature)
}
