package extract

import "strings"

// ComposeClassName joins a block name and an optional element suffix with a
// double underscore: ("bama-ad", "price") -> "bama-ad__price". Without a
// non-empty suffix the base is returned unchanged.
func ComposeClassName(base string, suffix ...string) string {
	for _, s := range suffix {
		if s = strings.TrimSpace(s); s != "" {
			return base + "__" + s
		}
	}
	return base
}

func classSelector(class string) string {
	return "." + strings.Join(strings.Fields(class), ".")
}
