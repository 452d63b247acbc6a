package ingest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/weppos/publicsuffix-go/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/david/campus-notice/internal/logging"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var blockedPrefixes = func() []netip.Prefix {
	var out []netip.Prefix
	for _, s := range []string{"100.64.0.0/10", "169.254.0.0/16", "fc00::/7", "fe80::/10"} {
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p)
		}
	}
	return out
}()

// FetchConfig defines HTTP fetching configuration.
type FetchConfig struct {
	// TimeoutSeconds caps a single request. Callers set tighter per-stage
	// deadlines on the context.
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"`
	MaxRetries     int     `yaml:"max_retries,omitempty"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`
	ProxyURL       string  `yaml:"proxy_url,omitempty"`
	AcceptLanguage string  `yaml:"accept_language,omitempty"`
	UserAgent      string  `yaml:"user_agent,omitempty"`
	// AllowPrivateNetworks disables the private address guard. Tests only.
	AllowPrivateNetworks bool `yaml:"-"`
}

func (c FetchConfig) withDefaults() FetchConfig {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 2.0
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// HTTPFetcher is the pooled client shared by every adapter, detail fetch and image
// download of a process. Requests are paced per registrable domain and retried on
// timeouts, 429 and 5xx.
type HTTPFetcher struct {
	client *retryablehttp.Client
	config FetchConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher builds the shared fetcher.
func NewHTTPFetcher(cfg FetchConfig) *HTTPFetcher {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	if !cfg.AllowPrivateNetworks {
		dialer.Control = guardAddress
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 4 * time.Second
	rc.Logger = logging.Leveled{Entry: logging.For("fetcher")}
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient = &http.Client{
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		Transport: transport,
	}
	if !cfg.AllowPrivateNetworks {
		rc.HTTPClient.CheckRedirect = safeCheckRedirect
	}

	return &HTTPFetcher{
		client:   rc,
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if err := f.limiterFor(u.Hostname()).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.config.AcceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return &FetchedDocument{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
		FetchedAt:   time.Now(),
		Headers:     resp.Header,
	}, nil
}

// limiterFor keys limiters by registrable domain so that sibling hosts of one
// university share a budget.
func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	key := strings.ToLower(host)
	if domain, err := publicsuffix.Domain(key); err == nil && domain != "" {
		key = domain
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(f.config.RateLimitRPS), 1)
	f.limiters[key] = l
	return l
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return shouldRetry(err, 0), nil
	}
	return shouldRetry(nil, resp.StatusCode), nil
}

// shouldRetry determines if an error or status code should trigger a retry.
func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return true
		}
		return false
	}
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// guardAddress runs after DNS resolution so the checked address is the dialed one.
func guardAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("unparseable address %q", host)
	}
	if isPrivateAddr(addr) {
		return fmt.Errorf("blocked private address: %s", addr)
	}
	return nil
}

func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsMulticast() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// safeCheckRedirect limits redirects and rejects internal hosts by name.
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}
	host := strings.ToLower(req.URL.Hostname())
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	return nil
}
