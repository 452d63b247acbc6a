package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/models"
)

// SelectMode controls the shape of Response.Data on success.
type SelectMode string

const (
	SelectBest SelectMode = "best"
	SelectAll  SelectMode = "all"
)

// Gate keeps the candidates that clear the relevance threshold, in input order.
func Gate(items []models.ScoredCandidate, threshold float64) []models.ScoredCandidate {
	out := make([]models.ScoredCandidate, 0, len(items))
	for _, sc := range items {
		if sc.Passes(threshold) {
			out = append(out, sc)
		}
	}
	return out
}

// Select ranks items by score descending. Ties keep listing order: board index in the
// request, then row position. A link that appears more than once keeps only its
// best-ranked entry.
func Select(items []models.SummarizedCandidate) []models.SummarizedCandidate {
	ranked := append([]models.SummarizedCandidate(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.BoardIndex != b.BoardIndex {
			return a.BoardIndex < b.BoardIndex
		}
		return a.Position < b.Position
	})

	seen := make(map[string]struct{}, len(ranked))
	out := ranked[:0]
	for _, it := range ranked {
		if _, dup := seen[it.Link]; dup {
			continue
		}
		seen[it.Link] = struct{}{}
		out = append(out, it)
	}
	return out
}

// BuildResponse shapes a run into the outbound contract.
func BuildResponse(res models.RunResult, mode SelectMode, now time.Time) models.Response {
	resp := models.Response{
		Status:  res.Status,
		Message: res.Message,
	}
	if res.Status != models.StatusSuccess || len(res.Aligned) == 0 {
		return resp
	}
	resp.RelevanceScore = res.BestScore()
	if mode == SelectAll {
		items := make([]models.FeedItem, 0, len(res.Aligned))
		for _, it := range res.Aligned {
			items = append(items, it.ToFeedItem(now))
		}
		resp.Data = items
		return resp
	}
	resp.Data = res.Aligned[0].ToFeedItem(now)
	return resp
}

// DueForDelivery reports whether a user with the given delivery interval should be
// notified now. Days are counted on calendar dates in loc.
func DueForDelivery(lastSent time.Time, intervalDays int, now time.Time, loc *time.Location) bool {
	if lastSent.IsZero() {
		return true
	}
	if intervalDays <= 0 {
		intervalDays = 1
	}
	if loc == nil {
		loc = defaultLocation
	}
	last := dayIn(lastSent, loc)
	today := dayIn(now, loc)
	days := int(today.Sub(last).Hours() / 24)
	return days >= intervalDays
}

func dayIn(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func statusMessage(status models.Status, scanned, aligned, lookback int, boardErrors []string) string {
	var msg string
	switch status {
	case models.StatusNoNewPosts:
		msg = fmt.Sprintf("최근 %d일 내 새 공지가 없습니다.", lookback)
	case models.StatusNoMatchingPosts:
		msg = fmt.Sprintf("새 공지 %d건 중 관심사와 맞는 공지가 없습니다.", scanned)
	case models.StatusSuccess:
		msg = fmt.Sprintf("새 공지 %d건 중 %d건이 관심사와 맞습니다.", scanned, aligned)
	}
	if len(boardErrors) > 0 {
		msg += " (게시판 오류: " + strings.Join(boardErrors, "; ") + ")"
	}
	return msg
}

var defaultLocation = func() *time.Location {
	loc, err := time.LoadLocation(ingest.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}()
