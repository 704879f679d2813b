package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const pagePlaceholder = "{page}"

// NumberedPageURL builds page URLs from base. A "{page}" placeholder is
// replaced by the index; otherwise the index is appended.
func NumberedPageURL(base string) func(int) string {
	return func(page int) string {
		idx := strconv.Itoa(page)
		if strings.Contains(base, pagePlaceholder) {
			return strings.ReplaceAll(base, pagePlaceholder, idx)
		}
		return base + idx
	}
}

// CategoryPageURL returns categoryURL for page 1 and adds a page query
// parameter for later pages.
func CategoryPageURL(categoryURL string) func(int) string {
	return func(page int) string {
		if page <= 1 {
			return categoryURL
		}
		u, err := url.Parse(categoryURL)
		if err != nil {
			return fmt.Sprintf("%s?page=%d", categoryURL, page)
		}
		q := u.Query()
		q.Set("page", strconv.Itoa(page))
		u.RawQuery = q.Encode()
		return u.String()
	}
}

// CategoryURL renders the crawl URL for one category. An empty template
// yields {scheme}://{host}/{name}/{category} relative to rootURL. Templates may
// use the "{name}" and "{category}" placeholders.
func CategoryURL(template, rootURL, name, category string) (string, error) {
	if template != "" {
		out := strings.ReplaceAll(template, "{name}", name)
		return strings.ReplaceAll(out, "{category}", url.PathEscape(category)), nil
	}
	root, err := url.Parse(rootURL)
	if err != nil {
		return "", fmt.Errorf("parse root url: %w", err)
	}
	if root.Scheme == "" || root.Host == "" {
		return "", fmt.Errorf("root url %q is not absolute", rootURL)
	}
	u := url.URL{Scheme: root.Scheme, Host: root.Host, Path: "/" + name + "/" + category}
	return u.String(), nil
}

// CategorySegments picks category names out of links whose path starts with
// /{name}/. Relative links and absolute links on rootURL's host qualify. The
// first non-empty segment after {name} is the category. The result is sorted
// and free of repeats.
func CategorySegments(links []string, rootURL, name string) []string {
	root, _ := url.Parse(rootURL)
	pattern := regexp.MustCompile(`^/` + regexp.QuoteMeta(name) + `/`)
	seen := make(map[string]struct{})
	for _, raw := range links {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if u.Host != "" && (root == nil || !strings.EqualFold(u.Hostname(), root.Hostname())) {
			continue
		}
		if !pattern.MatchString(u.Path) {
			continue
		}
		rest := strings.TrimPrefix(u.Path, "/"+name+"/")
		for _, seg := range strings.Split(rest, "/") {
			if seg == "" {
				continue
			}
			// Dot segments would escape the category tree.
			if seg != "." && seg != ".." {
				seen[seg] = struct{}{}
			}
			break
		}
	}
	out := make([]string, 0, len(seen))
	for seg := range seen {
		out = append(out, seg)
	}
	sort.Strings(out)
	return out
}
