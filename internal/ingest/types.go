package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/david/campus-notice/internal/models"
)

var (
	// ErrNoAdapter is returned when no registered source matches a target URL.
	ErrNoAdapter = errors.New("unsupported target url")
	// ErrRenderTimeout is returned by a Renderer when the ready selector never appeared.
	ErrRenderTimeout = errors.New("render wait timed out")
)

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Board is one logical board or category of a source.
type Board struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Category string `yaml:"category" json:"category"`
	// URL overrides the page URL derived from the source base URL.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Listing is the raw listing payload of one board page.
type Listing struct {
	PageURL     string
	ContentType string
	Raw         []byte
	FetchedAt   time.Time
	// Warning is set when the adapter degraded to an empty listing instead of failing.
	Warning string
}

// Adapter turns a source board into normalized candidates.
//
// FetchListing performs network reads only. ParseListing is pure and returns every
// row whose date parsed; rows that fail date parsing are skipped.
type Adapter interface {
	Kind() string
	FetchListing(ctx context.Context, baseURL string, board Board) (Listing, error)
	ParseListing(listing Listing, board Board) ([]models.Candidate, error)
}

// ParseAndFilter parses a listing and applies the lookback window.
func ParseAndFilter(a Adapter, l Listing, board Board, lookbackDays int, now time.Time, loc *time.Location) ([]models.Candidate, error) {
	cands, err := a.ParseListing(l, board)
	if err != nil {
		return nil, err
	}
	return FilterWindow(cands, lookbackDays, now, loc), nil
}
