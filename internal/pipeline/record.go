package pipeline

import "github.com/david/campus-notice/internal/models"

// Record flattens an outcome into its persisted form. Every aligned item is kept,
// whatever the select mode.
func (o Outcome) Record() models.RunRecord {
	res := o.Result
	rec := models.RunRecord{
		ID:        res.RunID,
		TargetURL: o.TargetURL,
		SourceID:  res.SourceID,
		Status:    res.Status,
		Message:   res.Message,
		Scanned:   res.Scanned,
		Aligned:   len(res.Aligned),
		BestScore: res.BestScore(),
		StartedAt: res.StartedAt,
		Items:     o.FeedItems(),
	}
	if !res.FinishedAt.IsZero() {
		finished := res.FinishedAt
		rec.FinishedAt = &finished
	}
	for _, b := range res.Boards {
		if b.Stage == models.StageError {
			rec.BoardErrors++
		}
	}
	return rec
}

// FeedItems returns every aligned item in rank order, stamped with the finish time.
func (o Outcome) FeedItems() []models.FeedItem {
	if len(o.Result.Aligned) == 0 {
		return nil
	}
	items := make([]models.FeedItem, 0, len(o.Result.Aligned))
	for _, it := range o.Result.Aligned {
		items = append(items, it.ToFeedItem(o.Result.FinishedAt))
	}
	return items
}
