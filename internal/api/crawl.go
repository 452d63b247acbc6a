package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/david/campus-notice/internal/auth"
	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
	"github.com/david/campus-notice/internal/notify"
	"github.com/david/campus-notice/internal/pipeline"
)

// BatchRequest is the inbound trigger body.
type BatchRequest struct {
	UserID    string `json:"userId" validate:"required"`
	TargetURL string `json:"targetUrl" validate:"omitempty,url"`
	// TargetURLs runs several targets in one request; each is its own run.
	TargetURLs  []string           `json:"targetUrls,omitempty" validate:"omitempty,dive,url"`
	UserProfile models.UserProfile `json:"userProfile"`
	// IntervalDays overrides the lookback window for every target.
	IntervalDays int `json:"intervalDays,omitempty" validate:"gte=0,lte=365"`
	// Summary is a caller note echoed into the logs.
	Summary    string             `json:"summary,omitempty"`
	Callback   notify.Callback    `json:"callback"`
	Recipients []models.Recipient `json:"recipients,omitempty" validate:"dive"`
	Boards     []string           `json:"boards,omitempty" validate:"dive,required"`
}

// Validate checks struct tags and the callback shape.
func (r BatchRequest) Validate() error {
	if err := pipeline.Validate(r); err != nil {
		return err
	}
	if len(r.targets()) == 0 {
		return fmt.Errorf("%w: targetUrl or targetUrls is required", pipeline.ErrInvalidRequest)
	}
	if r.Callback.Enabled && strings.TrimSpace(r.Callback.CallbackURL) == "" {
		return fmt.Errorf("%w: callback.callbackUrl is required when callback is enabled", pipeline.ErrInvalidRequest)
	}
	return nil
}

// targets lists targetUrl then targetUrls, without duplicates.
func (r BatchRequest) targets() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range append([]string{r.TargetURL}, r.TargetURLs...) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (r BatchRequest) pipelineRequest(target string) pipeline.Request {
	return pipeline.Request{
		TargetURL:    target,
		Profile:      r.UserProfile,
		Boards:       r.Boards,
		IntervalDays: r.IntervalDays,
	}
}

// recipients returns the explicit recipients, or the profile owner when the profile
// carries a phone number.
func (r BatchRequest) recipients() []models.Recipient {
	if len(r.Recipients) > 0 {
		return r.Recipients
	}
	if strings.TrimSpace(r.UserProfile.PhoneNumber) == "" {
		return nil
	}
	return []models.Recipient{{Name: r.UserProfile.Username, Contact: r.UserProfile.PhoneNumber}}
}

// crawlResult is the handler's view of one executed request.
type crawlResult struct {
	Outcome    pipeline.Outcome
	Deliveries []notify.Delivery
	Callback   string
}

func (s *Server) handleCrawlRequest(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	caller, _ := auth.GetSubjectFromContext(c)
	results := s.executeAll(c.Request().Context(), caller, req)
	if len(req.TargetURLs) == 0 {
		return c.JSON(http.StatusOK, results[0].Outcome.Response)
	}
	responses := make([]models.Response, 0, len(results))
	for _, res := range results {
		responses = append(responses, res.Outcome.Response)
	}
	return c.JSON(http.StatusOK, responses)
}

// executeAll runs every target of req in order.
func (s *Server) executeAll(ctx context.Context, caller string, req BatchRequest) []crawlResult {
	targets := req.targets()
	out := make([]crawlResult, 0, len(targets))
	for _, target := range targets {
		out = append(out, s.execute(ctx, caller, req, target))
	}
	return out
}

// execute runs the pipeline for one target, then persists, notifies and calls back.
// Only the run itself follows ctx; the follow-up steps outlive a dropped client
// connection.
func (s *Server) execute(ctx context.Context, caller string, req BatchRequest, target string) crawlResult {
	log := logging.For("api").WithFields(logrus.Fields{"caller": caller, "user": req.UserID, "target": target})
	if req.Summary != "" {
		log = log.WithField("note", req.Summary)
	}

	out := s.Runner.Run(ctx, req.pipelineRequest(target))
	res := crawlResult{Outcome: out}
	log = log.WithField("run_id", out.Result.RunID)

	after := context.WithoutCancel(ctx)

	if s.Store != nil {
		if err := s.Store.SaveRun(after, out.Record()); err != nil {
			log.Errorf("save run: %v", err)
		}
	}

	if recipients := req.recipients(); out.Response.Status == models.StatusSuccess && len(recipients) > 0 && s.Notifier.Enabled() {
		res.Deliveries = s.Notifier.Notify(after, out.Result.SourceName, responseItems(out.Response), recipients)
		log.Infof("notified %d deliveries", len(res.Deliveries))
	}

	switch {
	case !req.Callback.ShouldFire(out.Response.Status):
		res.Callback = "skipped"
	case s.Callbacks == nil:
		res.Callback = "unavailable"
	default:
		if err := s.Callbacks.Post(after, req.Callback, out.Response); err != nil {
			log.Warnf("callback failed: %v", err)
			res.Callback = "failed"
		} else {
			res.Callback = "sent"
		}
	}

	log.WithField("status", out.Response.Status).Infof("request handled: %s", out.Response.Message)
	return res
}

// responseItems unwraps the items carried by a response's data.
func responseItems(resp models.Response) []models.FeedItem {
	switch d := resp.Data.(type) {
	case models.FeedItem:
		return []models.FeedItem{d}
	case []models.FeedItem:
		return d
	}
	return nil
}
