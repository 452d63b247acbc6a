package pipeline

import (
	"testing"
	"time"

	"github.com/david/campus-notice/internal/models"
)

func scored(link string, score float64, board, pos int) models.ScoredCandidate {
	return models.ScoredCandidate{
		Candidate: models.Candidate{Title: link, Link: link, BoardIndex: board, Position: pos},
		Mode:      models.ScoreModeScored,
		Score:     score,
		Reason:    "r",
	}
}

func summarized(sc models.ScoredCandidate) models.SummarizedCandidate {
	return models.SummarizedCandidate{EnrichedCandidate: models.EnrichedCandidate{ScoredCandidate: sc}}
}

func TestGateThresholdMonotonic(t *testing.T) {
	items := []models.ScoredCandidate{
		scored("a", 0.9, 0, 0), scored("b", 0.5, 0, 1), scored("c", 0.75, 0, 2),
		scored("d", 0.7, 1, 0), scored("e", 0.0, 1, 1), scored("f", 1.0, 1, 2),
	}
	prev := len(items) + 1
	for _, th := range []float64{0, 0.1, 0.5, 0.7, 0.71, 0.75, 0.9, 1.0} {
		n := len(Gate(items, th))
		if n > prev {
			t.Fatalf("threshold %.2f kept %d, more than %d at a lower threshold", th, n, prev)
		}
		prev = n
	}

	got := Gate(items, 0.7)
	want := []string{"a", "c", "d", "f"}
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Link != w {
			t.Errorf("item %d = %s, want %s", i, got[i].Link, w)
		}
	}
}

func TestGateBinaryIgnoresThreshold(t *testing.T) {
	yes := models.ScoredCandidate{Mode: models.ScoreModeBinary, Aligned: true, Score: 1}
	no := models.ScoredCandidate{Mode: models.ScoreModeBinary, Aligned: false}
	if got := Gate([]models.ScoredCandidate{yes, no}, 1.0); len(got) != 1 || !got[0].Aligned {
		t.Fatalf("got %+v", got)
	}
}

func TestSelectOrdering(t *testing.T) {
	items := []models.SummarizedCandidate{
		summarized(scored("b1-p1", 0.8, 1, 1)),
		summarized(scored("b0-p2", 0.8, 0, 2)),
		summarized(scored("top", 0.95, 1, 0)),
		summarized(scored("b0-p0", 0.8, 0, 0)),
		summarized(scored("low", 0.7, 0, 3)),
	}
	got := Select(items)
	want := []string{"top", "b0-p0", "b0-p2", "b1-p1", "low"}
	for i, w := range want {
		if got[i].Link != w {
			t.Fatalf("rank %d = %s, want %s (got %v)", i, got[i].Link, w, links(got))
		}
	}
	if items[0].Link != "b1-p1" {
		t.Error("Select reordered its input")
	}
}

func TestSelectDropsDuplicateLinks(t *testing.T) {
	dupLate := summarized(scored("same", 0.8, 1, 0))
	dupLate.BoardName = "장학"
	dupEarly := summarized(scored("same", 0.8, 0, 4))
	dupEarly.BoardName = "학부공지"

	got := Select([]models.SummarizedCandidate{dupLate, dupEarly, summarized(scored("other", 0.9, 0, 0))})
	if len(got) != 2 || got[1].BoardName != "학부공지" {
		t.Fatalf("got %v", got)
	}
}

func links(items []models.SummarizedCandidate) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Link
	}
	return out
}

func TestBuildResponse(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, kst)
	res := models.RunResult{
		Status:  models.StatusSuccess,
		Message: "ok",
		Aligned: []models.SummarizedCandidate{
			summarized(scored("https://a", 0.9, 0, 0)),
			summarized(scored("https://b", 0.8, 0, 1)),
		},
	}

	best := BuildResponse(res, SelectBest, now)
	item, ok := best.Data.(models.FeedItem)
	if !ok || item.OriginalURL != "https://a" || best.RelevanceScore != 0.9 {
		t.Fatalf("best = %+v", best)
	}
	if item.Timestamp != "2025-03-10T09:00:00+09:00" {
		t.Errorf("timestamp = %q", item.Timestamp)
	}

	all := BuildResponse(res, SelectAll, now)
	if items, ok := all.Data.([]models.FeedItem); !ok || len(items) != 2 {
		t.Fatalf("all = %+v", all)
	}

	for _, st := range []models.Status{models.StatusNoNewPosts, models.StatusNoMatchingPosts, models.StatusError} {
		resp := BuildResponse(models.RunResult{Status: st, Message: "m"}, SelectBest, now)
		if resp.Data != nil || resp.RelevanceScore != 0 || resp.Status != st || resp.Message != "m" {
			t.Errorf("%s: %+v", st, resp)
		}
	}
}

func TestDueForDelivery(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, kst)
	tests := []struct {
		name     string
		lastSent time.Time
		interval int
		want     bool
	}{
		{"never sent", time.Time{}, 3, true},
		{"same day", time.Date(2025, 3, 10, 0, 30, 0, 0, kst), 1, false},
		{"yesterday late evening", time.Date(2025, 3, 9, 23, 59, 0, 0, kst), 1, true},
		{"two days of three", time.Date(2025, 3, 8, 9, 0, 0, 0, kst), 3, false},
		{"exactly three", time.Date(2025, 3, 7, 9, 0, 0, 0, kst), 3, true},
		// 2025-03-09 16:00 UTC is already 03-10 in Seoul
		{"utc timestamp counted in source zone", time.Date(2025, 3, 9, 16, 0, 0, 0, time.UTC), 1, false},
		{"non-positive interval means daily", time.Date(2025, 3, 9, 9, 0, 0, 0, kst), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DueForDelivery(tt.lastSent, tt.interval, now, kst); got != tt.want {
				t.Errorf("DueForDelivery = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestLookbackPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		source int
		pinned bool
		want   int
	}{
		{"request wins", Request{IntervalDays: 3, Profile: models.UserProfile{IntervalDays: 5}}, 1, true, 3},
		{"profile next", Request{Profile: models.UserProfile{IntervalDays: 5}}, 1, true, 5},
		{"pinned deployment value beats source", Request{}, 1, true, 14},
		{"source next", Request{}, 1, false, 1},
		{"deployment default", Request{}, 0, false, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.lookbackDays(tt.source, 14, tt.pinned); got != tt.want {
				t.Errorf("lookbackDays = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOutcomeRecord(t *testing.T) {
	finished := time.Date(2025, 3, 10, 9, 0, 5, 0, kst)
	out := Outcome{
		TargetURL: "https://info.korea.ac.kr/info/board/notice_under.do",
		Result: models.RunResult{
			SourceID:   "korea_info",
			Status:     models.StatusSuccess,
			Scanned:    4,
			FinishedAt: finished,
			Aligned: []models.SummarizedCandidate{
				summarized(scored("https://a", 0.9, 0, 0)),
				summarized(scored("https://b", 0.8, 1, 0)),
			},
			Boards: []models.BoardReport{
				{Board: "학부공지", Stage: models.StageDone},
				{Board: "장학", Stage: models.StageError, Error: "fetch listing: boom"},
			},
		},
	}
	rec := out.Record()
	if rec.Aligned != 2 || rec.BoardErrors != 1 || rec.BestScore != 0.9 || rec.Scanned != 4 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.FinishedAt == nil || !rec.FinishedAt.Equal(finished) {
		t.Errorf("finished = %v", rec.FinishedAt)
	}
	if len(rec.Items) != 2 || rec.Items[1].OriginalURL != "https://b" {
		t.Errorf("items = %+v", rec.Items)
	}

	empty := Outcome{Result: models.RunResult{Status: models.StatusNoNewPosts}}.Record()
	if empty.FinishedAt != nil || empty.Items != nil {
		t.Errorf("empty record = %+v", empty)
	}
}
