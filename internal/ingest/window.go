package ingest

import (
	"time"

	"github.com/david/campus-notice/internal/models"
)

// DefaultLookbackDays applies when neither the request nor the source sets a window.
const DefaultLookbackDays = 7

// Cutoff returns the first retained day: today - (lookbackDays-1), at midnight in loc.
// A lookback of 1 keeps only today.
func Cutoff(now time.Time, lookbackDays int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return today.AddDate(0, 0, -(lookbackDays - 1))
}

// FilterWindow keeps candidates published on or after the cutoff. It scans the whole
// listing and does not rely on date ordering.
func FilterWindow(cands []models.Candidate, lookbackDays int, now time.Time, loc *time.Location) []models.Candidate {
	cutoff := Cutoff(now, lookbackDays, loc)
	out := make([]models.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.PublishedDate.IsZero() {
			continue
		}
		d := c.PublishedDate.In(cutoff.Location())
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, cutoff.Location())
		if !day.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out
}
