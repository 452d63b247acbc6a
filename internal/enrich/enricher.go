package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

const segmentSeparator = "\n\n"

// Enricher performs the deep fetch of a candidate that passed the relevance gate.
type Enricher struct {
	detail *DetailFetcher
	// ocr and pdf are optional; nil disables the step.
	ocr       *OCR
	pdf       *PDFText
	maxImages int
	maxPDFs   int
}

// Options configures New.
type Options struct {
	OCR       *OCR
	PDF       *PDFText
	MaxImages int
	MaxPDFs   int
}

func New(detail *DetailFetcher, opts Options) *Enricher {
	if opts.MaxImages <= 0 {
		opts.MaxImages = 5
	}
	if opts.MaxPDFs <= 0 {
		opts.MaxPDFs = 2
	}
	return &Enricher{detail: detail, ocr: opts.OCR, pdf: opts.PDF, maxImages: opts.MaxImages, maxPDFs: opts.MaxPDFs}
}

// ForSource returns an Enricher that tries the source's detail selectors first.
func (e *Enricher) ForSource(selectors []string) *Enricher {
	cp := *e
	cp.detail = e.detail.WithSelectors(selectors)
	return &cp
}

// Enrich never fails. FullContent is the body text followed by OCR text in image
// order, then attachment text. A page without a content container contributes no
// body, so FullContent may be empty.
func (e *Enricher) Enrich(ctx context.Context, sc models.ScoredCandidate) models.EnrichedCandidate {
	page := e.detail.FetchPage(ctx, sc.Link)

	var segments []string
	if page.Found {
		segments = appendSegment(segments, "", page.Body)
	}

	if e.ocr != nil {
		for i, img := range page.Images {
			if i >= e.maxImages {
				logging.For("enrich").WithField("link", sc.Link).Debugf("ocr limited to %d of %d images", e.maxImages, len(page.Images))
				break
			}
			segments = appendSegment(segments, fmt.Sprintf("[이미지 %d]", i+1), e.ocr.Extract(ctx, img))
		}
	}

	if e.pdf != nil {
		for i, att := range page.Attachments {
			if i >= e.maxPDFs {
				break
			}
			segments = appendSegment(segments, fmt.Sprintf("[첨부 %d]", i+1), e.pdf.Extract(ctx, att))
		}
	}

	return models.EnrichedCandidate{
		ScoredCandidate: sc,
		FullContent:     strings.Join(segments, segmentSeparator),
		Images:          page.Images,
	}
}

// appendSegment whitespace-normalizes text line by line; empty text adds nothing.
func appendSegment(segments []string, label, text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = ingest.CleanText(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return segments
	}
	seg := strings.Join(lines, "\n")
	if label != "" {
		seg = label + "\n" + seg
	}
	return append(segments, seg)
}
