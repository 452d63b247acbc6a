package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/david/campus-notice/internal/models"
)

// Callback is the caller's result hook.
type Callback struct {
	Enabled     bool   `json:"enabled"`
	CallbackURL string `json:"callbackUrl" validate:"omitempty,url"`
	AuthToken   string `json:"authToken,omitempty"`
}

// ShouldFire reports whether a run with status should be posted back.
func (c Callback) ShouldFire(status models.Status) bool {
	return c.Enabled && c.CallbackURL != "" && status == models.StatusSuccess
}

type callbackPayload struct {
	Status         models.Status `json:"status"`
	RelevanceScore float64       `json:"relevanceScore"`
	Data           any           `json:"data"`
}

// CallbackPoster posts run results to caller-supplied URLs.
type CallbackPoster struct {
	client *retryablehttp.Client
}

func NewCallbackPoster(maxRetries int) *CallbackPoster {
	return &CallbackPoster{client: newHTTPClient("callback", maxRetries)}
}

// Post sends {status, relevanceScore, data} with the caller's bearer token.
func (p *CallbackPoster) Post(ctx context.Context, cb Callback, resp models.Response) error {
	body, err := json.Marshal(callbackPayload{Status: resp.Status, RelevanceScore: resp.RelevanceScore, Data: resp.Data})
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, cb.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cb.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cb.AuthToken)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request: %w", err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError(res.StatusCode, raw)
	}
	return nil
}
