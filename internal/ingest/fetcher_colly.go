package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/david/campus-notice/internal/logging"
)

// CollyFetcher implements Fetcher with a Colly collector. It respects robots.txt,
// detects legacy Korean charsets and paces requests per domain.
type CollyFetcher struct {
	UserAgent         string
	MaxRetries        int
	RequestTimeout    time.Duration
	DomainDelay       time.Duration
	RandomDelayFactor float64
	IgnoreRobotsTxt   bool
	MaxBodySize       int
	CacheDir          string
}

// NewCollyFetcher creates a CollyFetcher from a FetchConfig.
func NewCollyFetcher(cfg FetchConfig) *CollyFetcher {
	cfg = cfg.withDefaults()
	return &CollyFetcher{
		UserAgent:         cfg.UserAgent,
		MaxRetries:        cfg.MaxRetries,
		RequestTimeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		DomainDelay:       time.Duration(float64(time.Second) / cfg.RateLimitRPS),
		RandomDelayFactor: 0.5,
		MaxBodySize:       20 * 1024 * 1024,
	}
}

func (f *CollyFetcher) buildCollector(host string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.AllowedDomains(host),
	}
	if f.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}
	if f.CacheDir != "" {
		opts = append(opts, colly.CacheDir(f.CacheDir))
	}

	c := colly.NewCollector(opts...)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       f.DomainDelay,
		RandomDelay: time.Duration(float64(f.DomainDelay) * f.RandomDelayFactor),
	})
	c.SetRequestTimeout(f.RequestTimeout)
	return c
}

// Fetch implements Fetcher.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", targetURL)
	}
	log := logging.For("colly")
	c := f.buildCollector(parsed.Hostname())

	var (
		result   *FetchedDocument
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		retries, _ := r.Request.Ctx.GetAny("retries").(int)
		if retries < f.MaxRetries && ctx.Err() == nil && shouldRetry(err, r.StatusCode) {
			r.Request.Ctx.Put("retries", retries+1)
			log.WithField("url", r.Request.URL.String()).Warnf("retry %d/%d: %v", retries+1, f.MaxRetries, err)
			time.Sleep(time.Duration(retries+1) * time.Second)
			if retryErr := r.Request.Retry(); retryErr == nil {
				return
			}
		}
		fetchErr = fmt.Errorf("colly fetch %s: %w", targetURL, err)
	})

	// Visit is synchronous for a non-async collector.
	if err := c.Visit(targetURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("visit failed: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, fmt.Errorf("no response received for %s", targetURL)
	}
	return result, nil
}
