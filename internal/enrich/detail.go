package enrich

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/logging"
)

// ContentNotFound is the body returned when no content container matched.
const ContentNotFound = "본문을 찾을 수 없습니다."

// defaultContentSelectors covers the board templates seen across university CMSs,
// most specific first.
var defaultContentSelectors = []string{
	".view-con",
	".fr-view",
	".board-view-content",
	".b-content-box",
	".view-content",
	".bbs_view",
	".board_view .content",
	"#bo_v_con",
	".article-body",
	".view_cont",
	"article",
}

// DetailPage is the parsed detail page of one notice.
type DetailPage struct {
	Body        string
	Found       bool
	Images      []string
	Attachments []string
}

// DetailFetcher downloads and parses notice detail pages.
type DetailFetcher struct {
	fetcher   ingest.Fetcher
	selectors []string
	timeout   time.Duration
}

// NewDetailFetcher tries extra selectors before the built-in list.
func NewDetailFetcher(fetcher ingest.Fetcher, extra []string, timeout time.Duration) *DetailFetcher {
	return &DetailFetcher{
		fetcher:   fetcher,
		selectors: mergeSelectors(extra, defaultContentSelectors),
		timeout:   timeout,
	}
}

// WithSelectors returns a copy that tries extra selectors first.
func (d *DetailFetcher) WithSelectors(extra []string) *DetailFetcher {
	if len(extra) == 0 {
		return d
	}
	cp := *d
	cp.selectors = mergeSelectors(extra, d.selectors)
	return &cp
}

// FetchDetail returns the body text and content image URLs of a notice. Any
// failure yields ContentNotFound and an empty image list.
func (d *DetailFetcher) FetchDetail(ctx context.Context, link string) (string, []string) {
	page := d.FetchPage(ctx, link)
	return page.Body, page.Images
}

// FetchPage is FetchDetail plus attachment links.
func (d *DetailFetcher) FetchPage(ctx context.Context, link string) DetailPage {
	notFound := DetailPage{Body: ContentNotFound, Images: []string{}}
	log := logging.For("detail").WithField("link", link)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	doc, err := d.fetcher.Fetch(ctx, link)
	if err != nil {
		log.Warnf("detail fetch failed: %v", err)
		return notFound
	}
	defer doc.Body.Close()

	raw, err := ingest.ReadUTF8(doc.Body, doc.ContentType)
	if err != nil {
		log.Warnf("detail read failed: %v", err)
		return notFound
	}
	page := ParseDetail(link, raw, d.selectors)
	if !page.Found {
		log.Debug("no content container matched")
	}
	return page
}

// ParseDetail extracts the first matching content container of a detail page.
func ParseDetail(pageURL string, raw []byte, selectors []string) DetailPage {
	page := DetailPage{Body: ContentNotFound, Images: []string{}}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return page
	}

	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		html, err := node.Html()
		if err != nil {
			continue
		}
		body := ingest.HTMLToText(ingest.SanitizeHTML(html))
		srcs := imageSources(node)
		if body == "" && len(srcs) == 0 {
			continue
		}
		page.Found = true
		page.Body = ingest.SanitizeUTF8(body)
		page.Images = FilterImages(pageURL, srcs)
		break
	}
	page.Attachments = collectAttachmentLinks(pageURL, doc)
	return page
}

func imageSources(node *goquery.Selection) []string {
	var out []string
	node.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "data-original"} {
			if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
				out = append(out, v)
				return
			}
		}
	})
	return out
}

func mergeSelectors(first, rest []string) []string {
	seen := make(map[string]struct{}, len(first)+len(rest))
	out := make([]string, 0, len(first)+len(rest))
	for _, list := range [][]string{first, rest} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
