package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/david/campus-notice/internal/models"
)

// jsonAdapter reads board APIs that return a JSON list of posts.
type jsonAdapter struct {
	src     SourceConfig
	fetcher Fetcher
	loc     *time.Location
}

func newJSONAdapter(src SourceConfig, deps AdapterDeps) (Adapter, error) {
	cfg := src.JSON
	if len(cfg.ItemsPaths) == 0 || cfg.DateField == "" || cfg.IDField == "" || cfg.LinkTemplate == "" {
		return nil, fmt.Errorf("json items_paths, date_field, id_field and link_template are required")
	}
	return &jsonAdapter{src: src, fetcher: deps.Fetcher, loc: src.Location()}, nil
}

func (a *jsonAdapter) Kind() string { return KindJSONBoardAPI }

func (a *jsonAdapter) FetchListing(ctx context.Context, baseURL string, board Board) (Listing, error) {
	return fetchRaw(ctx, a.fetcher, a.src.PageURL(baseURL, board))
}

func (a *jsonAdapter) ParseListing(listing Listing, board Board) ([]models.Candidate, error) {
	if len(listing.Raw) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(listing.Raw) {
		return nil, fmt.Errorf("board api returned invalid json")
	}
	cfg := a.src.JSON

	var items gjson.Result
	for _, path := range cfg.ItemsPaths {
		if r := gjson.GetBytes(listing.Raw, path); r.IsArray() {
			items = r
			break
		}
	}
	if !items.Exists() {
		return nil, nil
	}

	titleField := cfg.TitleField
	if titleField == "" {
		titleField = "title"
	}
	layout := cfg.DateLayout
	if layout == "" {
		layout = "20060102"
	}

	var out []models.Candidate
	items.ForEach(func(_, item gjson.Result) bool {
		raw := strings.TrimSpace(item.Get(cfg.DateField).String())
		if len(raw) < len(layout) {
			return true
		}
		published, err := parseBoardDate(raw[:len(layout)], []string{layout}, a.loc)
		if err != nil {
			return true
		}
		id := strings.TrimSpace(item.Get(cfg.IDField).String())
		if id == "" {
			return true
		}
		title := cleanText(item.Get(titleField).String())
		if title == "" {
			title = cfg.DefaultTitle
		}
		if title == "" {
			return true
		}
		out = append(out, models.Candidate{
			Title:         title,
			Link:          strings.ReplaceAll(cfg.LinkTemplate, "{id}", id),
			PublishedDate: published,
			BoardName:     board.Name,
			SourceID:      a.src.ID,
			Position:      len(out),
		})
		return true
	})
	return out, nil
}
