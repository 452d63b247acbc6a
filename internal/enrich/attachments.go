package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	rpdf "rsc.io/pdf"

	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/logging"
)

const maxPDFBytes = 20 << 20

var (
	attachmentAnchorRegex = regexp.MustCompile(`(?i)(download|filedown|attach)`)
	// Non-PDF attachments name their extension in the anchor text.
	otherExtRegex = regexp.MustCompile(`(?i)\.(hwp|hwpx|docx?|xlsx?|pptx?|zip|jpe?g|png)\b`)
)

// collectAttachmentLinks finds likely PDF attachment links anywhere on the page.
func collectAttachmentLinks(pageURL string, doc *goquery.Document) []string {
	seen := map[string]bool{}
	var out []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		hrefLower := strings.ToLower(href)
		anchorText := strings.ToLower(ingest.CleanText(sel.Text()))
		isPDFName := strings.HasSuffix(anchorText, ".pdf") || strings.Contains(hrefLower, ".pdf")
		isDownload := attachmentAnchorRegex.MatchString(hrefLower) && !otherExtRegex.MatchString(anchorText)
		if !isPDFName && !isDownload {
			return
		}
		abs, err := ingest.ResolveHref(pageURL, href)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	})
	return out
}

// PDFText downloads attachments and extracts their text.
type PDFText struct {
	fetcher ingest.Fetcher
	timeout time.Duration
}

func NewPDFText(fetcher ingest.Fetcher, timeout time.Duration) *PDFText {
	return &PDFText{fetcher: fetcher, timeout: timeout}
}

// Extract returns the text of one PDF, or "" when the link is not a readable PDF.
func (p *PDFText) Extract(ctx context.Context, pdfURL string) string {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	log := logging.For("pdf").WithField("url", pdfURL)

	doc, err := p.fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		log.Warnf("pdf fetch failed: %v", err)
		return ""
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(io.LimitReader(doc.Body, maxPDFBytes))
	if err != nil {
		log.Warnf("pdf read failed: %v", err)
		return ""
	}
	if !bytes.HasPrefix(bytes.TrimLeft(content, "\r\n\t "), []byte("%PDF")) {
		log.Debug("attachment is not a pdf")
		return ""
	}
	text, err := extractPDFText(content)
	if err != nil {
		log.Warnf("pdf text extraction failed: %v", err)
		return ""
	}
	return text
}

func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}
