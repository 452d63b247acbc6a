package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/david/campus-notice/internal/logging"
)

var (
	// ErrBackendDisabled is returned when a backend has no credential configured.
	ErrBackendDisabled = errors.New("backend disabled")
	// ErrInvalidResponse is returned when the provider body is not the expected JSON.
	ErrInvalidResponse = errors.New("invalid provider response")
	// ErrEmptyResponse marks a well-formed reply with no text in it.
	ErrEmptyResponse = errors.New("empty response")
)

// Prompt is one completion request.
type Prompt struct {
	System string
	User   string
	// JSON asks the provider for a JSON-only reply where it supports that.
	JSON bool
}

// Backend is a language-model text completion endpoint. Implementations are safe
// for concurrent use.
type Backend interface {
	Name() string
	Enabled() bool
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Options configures the provider clients.
type Options struct {
	Provider string

	GeminiAPIKey string
	GeminiModel  string
	GeminiURL    string

	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string

	OllamaHost       string
	OllamaModel      string
	OllamaEmbedModel string

	MaxRetries int
}

// NewBackend builds the backend selected by opts.Provider.
func NewBackend(opts Options) (Backend, error) {
	client := newHTTPClient(opts.MaxRetries)
	switch strings.ToLower(opts.Provider) {
	case "gemini", "":
		return NewGeminiClient(opts.GeminiURL, opts.GeminiAPIKey, opts.GeminiModel, client), nil
	case "openai":
		return NewOpenAIClient(opts.OpenAIURL, opts.OpenAIAPIKey, opts.OpenAIModel, client), nil
	case "ollama":
		c := NewOllamaClient(opts.OllamaHost, opts.OllamaEmbedModel, opts.OllamaModel)
		c.client = client
		return c, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", opts.Provider)
	}
}

func newHTTPClient(maxRetries int) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 4 * time.Second
	rc.Logger = logging.Leveled{Entry: logging.For("ai")}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

// postJSON sends body to url and returns the raw response body. Non-2xx statuses are errors.
func postJSON(ctx context.Context, client *retryablehttp.Client, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := []rune(string(raw))
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(snippet))
	}
	return raw, nil
}
