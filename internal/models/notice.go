package models

import (
	"time"
)

// Candidate is one announcement row as listed by a source board.
type Candidate struct {
	Title         string            `json:"title"`
	Link          string            `json:"link"`
	PublishedDate time.Time         `json:"published_date"` // midnight in the source timezone
	BoardName     string            `json:"board_name"`
	SourceID      string            `json:"source_id,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`

	// Position is the row index within its board listing; used for stable ranking.
	Position int `json:"-"`
	// BoardIndex is the board's index in the run request; used for stable ranking.
	BoardIndex int `json:"-"`
}

// DateString renders the published date as YYYY-MM-DD.
func (c Candidate) DateString() string {
	if c.PublishedDate.IsZero() {
		return ""
	}
	return c.PublishedDate.Format("2006-01-02")
}

type ScoreMode string

const (
	ScoreModeBinary ScoreMode = "binary"
	ScoreModeScored ScoreMode = "scored"
)

// ScoredCandidate is a Candidate plus the relevance verdict for one profile.
type ScoredCandidate struct {
	Candidate
	Mode    ScoreMode `json:"mode"`
	Score   float64   `json:"score"`
	Aligned bool      `json:"aligned"`
	Reason  string    `json:"reason"`
}

// Passes reports whether the candidate clears the relevance gate.
// Binary verdicts ignore the threshold.
func (s ScoredCandidate) Passes(threshold float64) bool {
	if s.Mode == ScoreModeBinary {
		return s.Aligned
	}
	return s.Score >= threshold
}

// EnrichedCandidate carries the deep-fetched content of a candidate that passed the gate.
type EnrichedCandidate struct {
	ScoredCandidate
	FullContent string   `json:"full_content"`
	Images      []string `json:"images"`
}

// SummarizedCandidate is the final per-item record handed to selection.
type SummarizedCandidate struct {
	EnrichedCandidate
	Summary string `json:"summary"`
}

// FeedItem is the outbound shape of one selected notice.
type FeedItem struct {
	Title       string            `json:"title"`
	Summary     string            `json:"summary"`
	OriginalURL string            `json:"originalUrl"`
	FullContent string            `json:"fullContent,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Timestamp   string            `json:"timestamp"`
	Board       string            `json:"board,omitempty"`
	Score       float64           `json:"score"`
	Reason      string            `json:"reason,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// ToFeedItem converts a summarized candidate into its outbound form.
func (s SummarizedCandidate) ToFeedItem(now time.Time) FeedItem {
	return FeedItem{
		Title:       s.Title,
		Summary:     s.Summary,
		OriginalURL: s.Link,
		FullContent: s.FullContent,
		Images:      s.Images,
		Timestamp:   now.Format(time.RFC3339),
		Board:       s.BoardName,
		Score:       s.Score,
		Reason:      s.Reason,
		Attributes:  s.Attributes,
	}
}
