package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var ugcPolicy = bluemonday.UGCPolicy()

// TruncateText cuts a string to maxRunes runes, appending an ellipsis if truncated.
func TruncateText(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	if maxRunes > 3 {
		return string(runes[:maxRunes-3]) + "..."
	}
	return string(runes[:maxRunes])
}

// HTMLToText converts HTML to plain text, keeping block boundaries as line breaks.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanText(html)
	}
	return SelectionText(doc.Selection)
}

// SelectionText returns the visible text of a selection with one line per block
// element. Scripts and styles are dropped.
func SelectionText(sel *goquery.Selection) string {
	sel = sel.Clone()
	sel.Find("script, style, noscript").Remove()
	sel.Find("br").ReplaceWithHtml("\n")
	sel.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, table").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(sel.Text(), "\n") {
		if line = cleanText(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// SanitizeHTML strips scripts, iframes and event handlers from untrusted markup.
func SanitizeHTML(s string) string {
	return ugcPolicy.Sanitize(s)
}

// SanitizeUTF8 removes invalid UTF-8 byte sequences that break storage and JSON encoding.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
