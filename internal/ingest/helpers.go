package ingest

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

// normalizeSpace collapses runs of whitespace into one space and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText normalizes whitespace and composes Hangul jamo (NFC).
func cleanText(s string) string {
	return norm.NFC.String(normalizeSpace(s))
}

// CleanText is the exported form used by downstream packages.
func CleanText(s string) string {
	return cleanText(s)
}

// ResolveHref strips "amp;" artifacts and resolves href against the page URL.
func ResolveHref(pageURL, href string) (string, error) {
	href = strings.TrimSpace(strings.ReplaceAll(href, "amp;", ""))
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	if strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", fmt.Errorf("script href %q", href)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("bad page url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("bad href: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// NormalizeBase trims a page file name ("notice_under.do") back to its directory and
// ensures exactly one trailing slash. An empty input yields fallback.
func NormalizeBase(raw, fallback string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	if strings.HasSuffix(trimmed, ".do") {
		trimmed = trimmed[:strings.LastIndex(trimmed, "/")+1]
	}
	return strings.TrimRight(trimmed, "/") + "/"
}

// ReadUTF8 reads a text body and converts it to UTF-8 using the declared or sniffed
// charset. EUC-KR and CP949 pages are common on older university boards.
func ReadUTF8(r io.Reader, contentType string) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return raw, nil
	}
	out, err := io.ReadAll(dec)
	if err != nil {
		return raw, nil
	}
	return out, nil
}

func mergeUniqueFold(dst []string, items []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		k := strings.ToLower(strings.TrimSpace(v))
		if k != "" {
			seen[k] = struct{}{}
		}
	}

	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		dst = append(dst, v)
		seen[k] = struct{}{}
	}

	return dst
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
