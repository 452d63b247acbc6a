package ingest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

// tableAdapter reads HTML boards laid out as table rows: one anchor for title and
// link, one cell for the date.
type tableAdapter struct {
	src     SourceConfig
	fetcher Fetcher
	loc     *time.Location
}

func newTableAdapter(src SourceConfig, deps AdapterDeps) (Adapter, error) {
	if src.Listing.Rows == "" || src.Listing.Anchor == "" {
		return nil, fmt.Errorf("listing rows and anchor selectors are required")
	}
	return &tableAdapter{src: src, fetcher: deps.Fetcher, loc: src.Location()}, nil
}

func (a *tableAdapter) Kind() string { return KindHTMLTable }

func (a *tableAdapter) FetchListing(ctx context.Context, baseURL string, board Board) (Listing, error) {
	return fetchRaw(ctx, a.fetcher, a.src.PageURL(baseURL, board))
}

func (a *tableAdapter) ParseListing(listing Listing, board Board) ([]models.Candidate, error) {
	return parseTableRows(a.src, listing, board, a.loc)
}

// parseTableRows extracts every row with a title, a resolvable link and a parseable date.
func parseTableRows(src SourceConfig, listing Listing, board Board, loc *time.Location) ([]models.Candidate, error) {
	if len(listing.Raw) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(listing.Raw))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	cfg := src.Listing
	linkAttr := cfg.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}
	log := logging.For("adapter").WithField("board", board.Name)

	var out []models.Candidate
	doc.Find(cfg.Rows).Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 || cells.Length() < cfg.MinCells {
			return
		}

		scope := row
		if cfg.AnchorCell != nil {
			scope = cells.Eq(*cfg.AnchorCell)
		}
		anchor := scope.Find(cfg.Anchor).First()
		if anchor.Length() == 0 {
			return
		}
		title := cleanText(anchor.Text())
		if title == "" {
			title = cleanText(anchor.AttrOr("title", ""))
		}
		if title == "" {
			return
		}
		href, _ := anchor.Attr(linkAttr)
		link, err := ResolveHref(listing.PageURL, href)
		if err != nil {
			log.WithField("row", i).Debugf("skip row: %v", err)
			return
		}

		var published time.Time
		if cfg.DateSource == "run" {
			published = dateOnly(listing.FetchedAt.In(loc), loc)
		} else {
			idx := cfg.DateCell
			if idx < 0 {
				idx = cells.Length() + idx
			}
			if idx < 0 || idx >= cells.Length() {
				return
			}
			published, err = parseBoardDate(cells.Eq(idx).Text(), cfg.DateLayouts, loc)
			if err != nil {
				return
			}
		}

		out = append(out, models.Candidate{
			Title:         title,
			Link:          link,
			PublishedDate: published,
			BoardName:     board.Name,
			SourceID:      src.ID,
			Attributes:    rowAttributes(cells, cfg.Attributes),
			Position:      len(out),
		})
	})
	return out, nil
}

func rowAttributes(cells *goquery.Selection, fields map[string]AttributeField) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make(map[string]string, len(fields))
	for _, key := range keys {
		f := fields[key]
		if f.Cell < 0 || f.Cell >= cells.Length() {
			continue
		}
		cell := cells.Eq(f.Cell)
		var val string
		switch {
		case f.Multi && f.Selector != "":
			var parts []string
			cell.Find(f.Selector).Each(func(_ int, s *goquery.Selection) {
				parts = mergeUniqueFold(parts, []string{cleanText(s.Text())})
			})
			val = strings.Join(parts, ", ")
		case f.Selector != "":
			val = cleanText(cell.Find(f.Selector).First().Text())
		default:
			val = cleanText(cell.Text())
		}
		if val != "" {
			attrs[key] = val
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
