package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

// Renderer returns the DOM of a script-rendered page once waitSelector is present.
// Implementations return ErrRenderTimeout when the selector never appears.
type Renderer interface {
	Render(ctx context.Context, pageURL, waitSelector string, timeout time.Duration) ([]byte, error)
}

// StaticRenderer polls the server-rendered HTML until the ready selector appears.
// It serves pages that pre-render their tables; a headless browser can be plugged in
// through Renderer for the rest.
type StaticRenderer struct {
	Fetcher      Fetcher
	PollInterval time.Duration
}

// Render implements Renderer.
func (r *StaticRenderer) Render(ctx context.Context, pageURL, waitSelector string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	poll := r.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		listing, err := fetchRaw(ctx, r.Fetcher, pageURL)
		if err == nil && selectorPresent(listing.Raw, waitSelector) {
			return listing.Raw, nil
		}
		select {
		case <-ctx.Done():
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, ErrRenderTimeout
		case <-time.After(poll):
		}
	}
}

func selectorPresent(raw []byte, selector string) bool {
	if selector == "" {
		return len(raw) > 0
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

// renderedAdapter is a table adapter whose page needs a DOM-ready wait.
type renderedAdapter struct {
	tableAdapter
	renderer Renderer
}

func newRenderedAdapter(src SourceConfig, deps AdapterDeps) (Adapter, error) {
	base, err := newTableAdapter(src, deps)
	if err != nil {
		return nil, err
	}
	if src.Render.WaitSelector == "" {
		return nil, fmt.Errorf("render wait_selector is required")
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = &StaticRenderer{
			Fetcher:      deps.Fetcher,
			PollInterval: time.Duration(src.Render.PollMillis) * time.Millisecond,
		}
	}
	return &renderedAdapter{tableAdapter: *base.(*tableAdapter), renderer: renderer}, nil
}

func (a *renderedAdapter) Kind() string { return KindRenderedTable }

// FetchListing waits for the ready selector. A wait timeout degrades to an empty
// listing with a warning.
func (a *renderedAdapter) FetchListing(ctx context.Context, baseURL string, board Board) (Listing, error) {
	pageURL := a.src.PageURL(baseURL, board)
	timeout := time.Duration(a.src.Render.TimeoutSeconds) * time.Second

	raw, err := a.renderer.Render(ctx, pageURL, a.src.Render.WaitSelector, timeout)
	if errors.Is(err, ErrRenderTimeout) {
		warning := fmt.Sprintf("no rows matched %q before timeout", a.src.Render.WaitSelector)
		logging.For("adapter").WithField("board", board.Name).Warn(warning)
		return Listing{PageURL: pageURL, FetchedAt: time.Now(), Warning: warning}, nil
	}
	if err != nil {
		return Listing{}, fmt.Errorf("render %s: %w", pageURL, err)
	}
	return Listing{PageURL: pageURL, ContentType: "text/html; charset=utf-8", Raw: raw, FetchedAt: time.Now()}, nil
}

func (a *renderedAdapter) ParseListing(listing Listing, board Board) ([]models.Candidate, error) {
	return parseTableRows(a.src, listing, board, a.loc)
}
