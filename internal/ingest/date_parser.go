package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// defaultDateLayouts covers the board formats seen on Korean university sites.
var defaultDateLayouts = []string{
	"2006.01.02",
	"2006-01-02",
	"2006/01/02",
	"2006.1.2",
	"06.01.02",
	"20060102",
}

var dateTokenRegex = regexp.MustCompile(`\d{2,4}[.\-/]\s?\d{1,2}[.\-/]\s?\d{1,2}|\d{8}`)

// parseBoardDate parses a listing date cell into midnight of that day in loc.
// Only the given layouts are tried; an empty list falls back to defaultDateLayouts.
func parseBoardDate(text string, layouts []string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(layouts) == 0 {
		layouts = defaultDateLayouts
	}
	text = cleanDateString(text)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return dateOnly(t, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %q", text)
}

// parseCompactDate reads the first eight digits of a timestamp such as 20250114093000.
func parseCompactDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 8 {
		return time.Time{}, fmt.Errorf("short timestamp %q", raw)
	}
	return parseBoardDate(raw[:8], []string{"20060102"}, loc)
}

// cleanDateString strips labels and trailing dots ("2025.01.14." or "작성일 2025.01.14").
func cleanDateString(s string) string {
	s = strings.TrimSpace(s)
	if m := dateTokenRegex.FindString(s); m != "" {
		s = m
	}
	s = strings.ReplaceAll(s, " ", "")
	return strings.TrimRight(s, ".")
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
