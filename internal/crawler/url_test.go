package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumberedPageURL(t *testing.T) {
	t.Parallel()

	appended := NumberedPageURL("https://bama.ir/cad/api/search?pageIndex=")
	require.Equal(t, "https://bama.ir/cad/api/search?pageIndex=1", appended(1))
	require.Equal(t, "https://bama.ir/cad/api/search?pageIndex=12", appended(12))

	templated := NumberedPageURL("https://api.example/ads/{page}/list?size=20")
	require.Equal(t, "https://api.example/ads/3/list?size=20", templated(3))
}

func TestCategoryPageURL(t *testing.T) {
	t.Parallel()

	pages := CategoryPageURL("https://bama.ir/car/sedan")
	require.Equal(t, "https://bama.ir/car/sedan", pages(1))
	require.Equal(t, "https://bama.ir/car/sedan?page=2", pages(2))

	withQuery := CategoryPageURL("https://bama.ir/car/sedan?sort=price")
	require.Equal(t, "https://bama.ir/car/sedan?page=4&sort=price", withQuery(4))
}

func TestCategoryURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		root     string
		category string
		want     string
		wantErr  bool
	}{
		{name: "derived from root", root: "https://bama.ir/", category: "sedan", want: "https://bama.ir/car/sedan"},
		{name: "root path ignored", root: "http://127.0.0.1:8080/home", category: "suv", want: "http://127.0.0.1:8080/car/suv"},
		{name: "template", template: "https://m.bama.ir/{name}/{category}?view=list", category: "suv", want: "https://m.bama.ir/car/suv?view=list"},
		{name: "template escapes", template: "https://bama.ir/{name}/{category}", category: "a b", want: "https://bama.ir/car/a%20b"},
		{name: "relative root", root: "/car", category: "suv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CategoryURL(tt.template, tt.root, "car", tt.category)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCategorySegments(t *testing.T) {
	t.Parallel()

	links := []string{
		"/car/sedan",
		"/car/sedan/",
		"/car/suv/tehran?x=1",
		"HTTPS://BAMA.IR/car/pickup",
		"https://cdn.bama.ir/car/ignored",
		"/carpet/red",
		"/car",
		"car/relative-without-slash",
		"/car/car/nested",
		"/car/../admin",
		"/car/./hatchback",
		"/car/%2e%2e/admin",
		"%zz",
	}
	require.Equal(t, []string{"car", "pickup", "sedan", "suv"}, CategorySegments(links, "https://bama.ir", "car"))
	require.Empty(t, CategorySegments(nil, "https://bama.ir", "car"))
}
