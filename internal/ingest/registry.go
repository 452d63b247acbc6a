package ingest

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// DefaultTimezone is the source timezone used when a source does not declare one.
const DefaultTimezone = "Asia/Seoul"

// Registry holds the configuration for all sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig defines one university site (or job board) and its boards.
type SourceConfig struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Adapter string   `yaml:"adapter" json:"adapter"` // html_table, json_board_api, rendered_table, rss
	Match   []string `yaml:"match" json:"match"`
	BaseURL string   `yaml:"base_url" json:"base_url"`
	// PagePattern builds a board page URL from {base} and {category}. Empty means {base}.
	PagePattern string `yaml:"page_pattern,omitempty" json:"page_pattern,omitempty"`
	// BaseFromTarget uses the requested target URL (normalized to its directory) as {base}.
	BaseFromTarget bool   `yaml:"base_from_target,omitempty" json:"base_from_target,omitempty"`
	LookbackDays   int    `yaml:"lookback_days,omitempty" json:"lookback_days,omitempty"`
	Timezone       string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Description    string `yaml:"description,omitempty" json:"description,omitempty"`

	Boards  []Board       `yaml:"boards" json:"boards"`
	Listing ListingConfig `yaml:"listing,omitempty" json:"-"`
	JSON    JSONConfig    `yaml:"json,omitempty" json:"-"`
	Render  RenderConfig  `yaml:"render,omitempty" json:"-"`
	Detail  DetailConfig  `yaml:"detail,omitempty" json:"-"`
	Fetch   FetchConfig   `yaml:"fetch,omitempty" json:"-"`
}

// ListingConfig describes a table-shaped listing page.
type ListingConfig struct {
	Rows     string `yaml:"rows"`
	MinCells int    `yaml:"min_cells,omitempty"`
	// AnchorCell limits the anchor lookup to one cell; nil searches the whole row.
	AnchorCell *int   `yaml:"anchor_cell,omitempty"`
	Anchor     string `yaml:"anchor"`
	LinkAttr   string `yaml:"link_attr,omitempty"`
	// DateCell indexes the row's td cells; negative values count from the end (-1 is last).
	DateCell    int      `yaml:"date_cell"`
	DateLayouts []string `yaml:"date_layouts,omitempty"`
	// DateSource "run" stamps every row with the fetch date (boards without publish dates).
	DateSource string                    `yaml:"date_source,omitempty"`
	Attributes map[string]AttributeField `yaml:"attributes,omitempty"`
}

// AttributeField extracts one extra column into Candidate.Attributes.
type AttributeField struct {
	Cell     int    `yaml:"cell"`
	Selector string `yaml:"selector,omitempty"`
	// Multi joins every match with ", " instead of taking the cell text.
	Multi bool `yaml:"multi,omitempty"`
}

// JSONConfig describes a JSON board API.
type JSONConfig struct {
	ItemsPaths   []string `yaml:"items_paths"`
	TitleField   string   `yaml:"title_field"`
	DateField    string   `yaml:"date_field"`
	DateLayout   string   `yaml:"date_layout"`
	IDField      string   `yaml:"id_field"`
	LinkTemplate string   `yaml:"link_template"`
	DefaultTitle string   `yaml:"default_title,omitempty"`
}

// RenderConfig describes the DOM-ready wait for script-rendered pages.
type RenderConfig struct {
	WaitSelector   string `yaml:"wait_selector"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	PollMillis     int    `yaml:"poll_millis,omitempty"`
}

// DetailConfig lists the content-container selectors of a source's detail pages,
// tried before the built-in list.
type DetailConfig struct {
	ContentSelectors []string `yaml:"content_selectors,omitempty"`
}

// LoadRegistry reads the embedded sources.yaml. When path is non-empty the file at
// path replaces the embedded copy. ${VAR} references are expanded from the environment.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes registry YAML and checks required fields.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(reg.Sources))
	for i, src := range reg.Sources {
		if src.ID == "" || src.Adapter == "" {
			return nil, fmt.Errorf("source %d: id and adapter are required", i)
		}
		if _, dup := seen[src.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
		if len(src.Match) == 0 {
			return nil, fmt.Errorf("source %s: match is required", src.ID)
		}
	}
	return &reg, nil
}

// Find returns the source with the given id.
func (r *Registry) Find(id string) (SourceConfig, bool) {
	for _, s := range r.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Location loads the source timezone, falling back to DefaultTimezone and then UTC.
func (s SourceConfig) Location() *time.Location {
	tz := s.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc
	}
	return time.UTC
}

// PageURL returns the listing URL of one board.
func (s SourceConfig) PageURL(baseURL string, board Board) string {
	if board.URL != "" {
		return board.URL
	}
	if baseURL == "" {
		baseURL = s.BaseURL
	}
	pattern := s.PagePattern
	if pattern == "" {
		return baseURL
	}
	if s.BaseFromTarget || strings.Contains(pattern, "{base}{category}") {
		baseURL = NormalizeBase(baseURL, s.BaseURL)
	}
	out := strings.ReplaceAll(pattern, "{base}", baseURL)
	return strings.ReplaceAll(out, "{category}", url.PathEscape(board.Category))
}

// SelectBoards picks the boards to run. Requested entries match a configured board by
// name or category; unknown entries are taken as categories of a new board. An empty
// request selects every configured board.
func (s SourceConfig) SelectBoards(requested []string) []Board {
	if len(requested) == 0 {
		return append([]Board(nil), s.Boards...)
	}
	out := make([]Board, 0, len(requested))
	for _, want := range requested {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		found := false
		for _, b := range s.Boards {
			if strings.EqualFold(b.Name, want) || strings.EqualFold(b.Category, want) {
				out = append(out, b)
				found = true
				break
			}
		}
		if !found {
			out = append(out, Board{Name: want, Category: want})
		}
	}
	return out
}

// matches reports whether targetURL belongs to the source.
func (s SourceConfig) matches(targetURL string) bool {
	host := extractDomain(targetURL)
	for _, m := range s.Match {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if host != "" && (host == m || strings.HasSuffix(host, "."+m)) {
			return true
		}
		if host == "" && strings.Contains(strings.ToLower(targetURL), m) {
			return true
		}
	}
	return false
}

// ResolvedSource is a source bound to its adapter for one target URL.
type ResolvedSource struct {
	Source   SourceConfig
	Adapter  Adapter
	BaseURL  string
	Location *time.Location
}

// Resolver routes target URLs to sources by domain.
type Resolver struct {
	registry *Registry
	factory  *AdapterFactory
	deps     AdapterDeps
}

// NewResolver binds a registry to an adapter factory. A nil factory uses the global one.
func NewResolver(reg *Registry, factory *AdapterFactory, deps AdapterDeps) *Resolver {
	if factory == nil {
		factory = GlobalAdapterFactory
	}
	return &Resolver{registry: reg, factory: factory, deps: deps}
}

// Sources lists the configured sources.
func (r *Resolver) Sources() []SourceConfig {
	return append([]SourceConfig(nil), r.registry.Sources...)
}

// Resolve finds the source serving targetURL and builds its adapter.
func (r *Resolver) Resolve(targetURL string) (*ResolvedSource, error) {
	targetURL = strings.TrimSpace(targetURL)
	if targetURL == "" {
		return nil, ErrNoAdapter
	}
	for _, src := range r.registry.Sources {
		if !src.matches(targetURL) {
			continue
		}
		adapter, err := r.factory.Build(src, r.deps)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		base := src.BaseURL
		if src.BaseFromTarget {
			base = NormalizeBase(targetURL, src.BaseURL)
		}
		return &ResolvedSource{
			Source:   src,
			Adapter:  adapter,
			BaseURL:  base,
			Location: src.Location(),
		}, nil
	}
	return nil, ErrNoAdapter
}
