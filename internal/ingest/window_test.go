package ingest

import (
	"testing"
	"time"

	"github.com/david/campus-notice/internal/models"
)

var kst = time.FixedZone("KST", 9*60*60)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, kst)
}

func titles(cands []models.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Title
	}
	return out
}

func TestFilterWindow_ThreeRows(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, kst)
	cands := []models.Candidate{
		{Title: "today", PublishedDate: day(2025, 3, 10)},
		{Title: "three days ago", PublishedDate: day(2025, 3, 7)},
		{Title: "ten days ago", PublishedDate: day(2025, 2, 28)},
	}
	got := FilterWindow(cands, 7, now, kst)
	if len(got) != 2 || got[0].Title != "today" || got[1].Title != "three days ago" {
		t.Fatalf("unexpected window %v", titles(got))
	}
}

func TestFilterWindow_Boundaries(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 59, 0, 0, kst)
	tests := []struct {
		name     string
		lookback int
		date     time.Time
		want     bool
	}{
		{"cutoff day retained", 7, day(2025, 3, 4), true},
		{"day before cutoff dropped", 7, day(2025, 3, 3), false},
		{"single day keeps today", 1, day(2025, 3, 10), true},
		{"single day drops yesterday", 1, day(2025, 3, 9), false},
		{"future post retained", 1, day(2025, 3, 11), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterWindow([]models.Candidate{{Title: "x", PublishedDate: tt.date}}, tt.lookback, now, kst)
			if (len(got) == 1) != tt.want {
				t.Fatalf("retained = %v, want %v", len(got) == 1, tt.want)
			}
		})
	}
}

func TestFilterWindow_DoesNotDependOnOrder(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, kst)
	cands := []models.Candidate{
		{Title: "old", PublishedDate: day(2025, 1, 2)},
		{Title: "new", PublishedDate: day(2025, 3, 9)},
		{Title: "zero"},
		{Title: "newer", PublishedDate: day(2025, 3, 10)},
	}
	got := FilterWindow(cands, 3, now, kst)
	if len(got) != 2 || got[0].Title != "new" || got[1].Title != "newer" {
		t.Fatalf("unexpected window %v", titles(got))
	}
}

func TestCutoff_UsesSourceTimezone(t *testing.T) {
	// 20:00 UTC on the 9th is already the 10th in Seoul.
	now := time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)
	got := Cutoff(now, 1, kst)
	if !got.Equal(day(2025, 3, 10)) {
		t.Fatalf("cutoff = %s", got)
	}
	if got := Cutoff(now, 0, kst); !got.Equal(day(2025, 3, 4)) {
		t.Fatalf("default lookback cutoff = %s", got)
	}
}
