package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusSuccess         Status = "SUCCESS"
	StatusNoNewPosts      Status = "NO_NEW_POSTS"
	StatusNoMatchingPosts Status = "NO_MATCHING_POSTS"
	StatusError           Status = "ERROR"
)

// Stage is a board's position in the processing state machine.
type Stage string

const (
	StageIdle        Stage = "IDLE"
	StageListing     Stage = "LISTING"
	StageFiltering   Stage = "FILTERING"
	StageScoring     Stage = "SCORING"
	StageEnriching   Stage = "ENRICHING"
	StageSummarizing Stage = "SUMMARIZING"
	StageAggregating Stage = "AGGREGATING"
	StageDone        Stage = "DONE"
	StageError       Stage = "ERROR"
)

// BoardReport is the per-board record of one run.
type BoardReport struct {
	Board     string            `json:"board"`
	Stage     Stage             `json:"stage"`
	Listed    int               `json:"listed"`
	Scanned   int               `json:"scanned"`
	Aligned   int               `json:"aligned"`
	Evaluated []ScoredCandidate `json:"evaluated"`
	Warning   string            `json:"warning,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// RunResult aggregates all boards of one run.
type RunResult struct {
	RunID      uuid.UUID             `json:"run_id"`
	SourceID   string                `json:"source_id"`
	SourceName string                `json:"source_name"`
	Status     Status                `json:"status"`
	Message    string                `json:"message"`
	Scanned    int                   `json:"scanned"`
	Aligned    []SummarizedCandidate `json:"aligned"`
	Boards     []BoardReport         `json:"boards"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// BestScore returns the head score of the ranked aligned list, or 0.
func (r RunResult) BestScore() float64 {
	if len(r.Aligned) == 0 {
		return 0
	}
	return r.Aligned[0].Score
}

// Response is the outbound contract consumed by notification and callback collaborators.
// Data is a FeedItem, a []FeedItem or nil.
type Response struct {
	Status         Status  `json:"status"`
	RelevanceScore float64 `json:"relevanceScore"`
	Message        string  `json:"message"`
	Data           any     `json:"data"`
}

// RunRecord is the persisted summary of a run.
type RunRecord struct {
	ID          uuid.UUID  `json:"id"`
	TargetURL   string     `json:"target_url"`
	SourceID    string     `json:"source_id"`
	Status      Status     `json:"status"`
	Message     string     `json:"message"`
	Scanned     int        `json:"scanned"`
	Aligned     int        `json:"aligned"`
	BoardErrors int        `json:"board_errors"`
	BestScore   float64    `json:"best_score"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	Items       []FeedItem `json:"items,omitempty"`
}
