package enrich

import (
	"strings"

	"github.com/david/campus-notice/internal/ingest"
)

// skipImageMarkers are URL substrings of decorative graphics.
var skipImageMarkers = []string{
	"icon", "emoji", "emoticon", "btn_", "/btn/", "bullet", "blank.gif", "spacer",
	"loading", "/common/img/", "sns_",
}

// FilterImages resolves image sources against the page URL and drops inline data,
// decorative graphics and duplicates, keeping encounter order.
func FilterImages(pageURL string, srcs []string) []string {
	out := make([]string, 0, len(srcs))
	seen := make(map[string]struct{}, len(srcs))
	for _, src := range srcs {
		lower := strings.ToLower(strings.TrimSpace(src))
		if lower == "" || strings.HasPrefix(lower, "data:") || strings.Contains(lower, "base64") {
			continue
		}
		if isDecorative(lower) {
			continue
		}
		abs, err := ingest.ResolveHref(pageURL, src)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out
}

func isDecorative(lowerURL string) bool {
	for _, m := range skipImageMarkers {
		if strings.Contains(lowerURL, m) {
			return true
		}
	}
	return false
}
