package ingest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/david/campus-notice/internal/models"
)

// rssAdapter reads boards that publish an RSS or Atom feed.
type rssAdapter struct {
	src     SourceConfig
	fetcher Fetcher
	loc     *time.Location
}

func newRSSAdapter(src SourceConfig, deps AdapterDeps) (Adapter, error) {
	return &rssAdapter{src: src, fetcher: deps.Fetcher, loc: src.Location()}, nil
}

func (a *rssAdapter) Kind() string { return KindRSS }

func (a *rssAdapter) FetchListing(ctx context.Context, baseURL string, board Board) (Listing, error) {
	return fetchRaw(ctx, a.fetcher, a.src.PageURL(baseURL, board))
}

func (a *rssAdapter) ParseListing(listing Listing, board Board) ([]models.Candidate, error) {
	if len(listing.Raw) == 0 {
		return nil, nil
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(listing.Raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var out []models.Candidate
	for _, item := range feed.Items {
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published == nil {
			continue
		}
		title := cleanText(item.Title)
		if title == "" {
			continue
		}
		link, err := ResolveHref(listing.PageURL, item.Link)
		if err != nil {
			continue
		}
		out = append(out, models.Candidate{
			Title:         title,
			Link:          link,
			PublishedDate: dateOnly(published.In(a.loc), a.loc),
			BoardName:     board.Name,
			SourceID:      a.src.ID,
			Position:      len(out),
		})
	}
	return out, nil
}
