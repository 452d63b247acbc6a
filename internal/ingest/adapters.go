package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// AdapterDeps are the shared clients handed to every adapter.
type AdapterDeps struct {
	Fetcher  Fetcher
	Renderer Renderer
}

// AdapterBuilder constructs an adapter for one source.
type AdapterBuilder func(src SourceConfig, deps AdapterDeps) (Adapter, error)

// AdapterFactory maps adapter kinds (from sources.yaml) to builders.
type AdapterFactory struct {
	builders map[string]AdapterBuilder
}

func NewAdapterFactory() *AdapterFactory {
	return &AdapterFactory{
		builders: make(map[string]AdapterBuilder),
	}
}

func (f *AdapterFactory) Register(kind string, builder AdapterBuilder) {
	f.builders[kind] = builder
}

// Build returns a ready adapter for src.
func (f *AdapterFactory) Build(src SourceConfig, deps AdapterDeps) (Adapter, error) {
	builder, ok := f.builders[src.Adapter]
	if !ok {
		return nil, fmt.Errorf("adapter not found: %s (known: %s)", src.Adapter, strings.Join(f.Kinds(), ", "))
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("adapter %s: fetcher is required", src.Adapter)
	}
	return builder(src, deps)
}

// Kinds lists registered adapter kinds.
func (f *AdapterFactory) Kinds() []string {
	out := make([]string, 0, len(f.builders))
	for k := range f.builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GlobalAdapterFactory holds the built-in adapters.
var GlobalAdapterFactory = NewAdapterFactory()

func init() {
	GlobalAdapterFactory.Register(KindHTMLTable, newTableAdapter)
	GlobalAdapterFactory.Register(KindJSONBoardAPI, newJSONAdapter)
	GlobalAdapterFactory.Register(KindRenderedTable, newRenderedAdapter)
	GlobalAdapterFactory.Register(KindRSS, newRSSAdapter)
}

const (
	KindHTMLTable     = "html_table"
	KindJSONBoardAPI  = "json_board_api"
	KindRenderedTable = "rendered_table"
	KindRSS           = "rss"
)

// fetchRaw downloads a page and converts it to UTF-8.
func fetchRaw(ctx context.Context, f Fetcher, pageURL string) (Listing, error) {
	doc, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return Listing{}, fmt.Errorf("fetch listing %s: %w", pageURL, err)
	}
	defer doc.Body.Close()

	raw, err := ReadUTF8(doc.Body, doc.ContentType)
	if err != nil {
		return Listing{}, fmt.Errorf("read listing %s: %w", pageURL, err)
	}
	fetchedAt := doc.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	return Listing{
		PageURL:     pageURL,
		ContentType: doc.ContentType,
		Raw:         raw,
		FetchedAt:   fetchedAt,
	}, nil
}
