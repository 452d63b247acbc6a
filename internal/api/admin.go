package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/campus-notice/internal/db"
	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

func storeDisabled(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Run history is disabled"})
}

func (s *Server) handleListRuns(c echo.Context) error {
	if s.Store == nil {
		return storeDisabled(c)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	params := db.ListParams{
		SourceID: strings.TrimSpace(c.QueryParam("source")),
		Status:   models.Status(strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))),
		Limit:    limit,
		Offset:   max(offset, 0),
	}

	runs, err := s.Store.ListRuns(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c echo.Context) error {
	if s.Store == nil {
		return storeDisabled(c)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid run ID"})
	}
	rec, err := s.Store.GetRun(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Run not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleSimilarNotices(c echo.Context) error {
	if s.Store == nil {
		return storeDisabled(c)
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "q is required"})
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	matches, err := s.Store.SimilarNotices(c.Request().Context(), q, limit)
	if errors.Is(err, db.ErrUnsupported) {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if matches == nil {
		matches = []db.NoticeMatch{}
	}
	return c.JSON(http.StatusOK, matches)
}

// handleStartRunJob runs a BatchRequest in the background and returns 202 at once.
// One job runs at a time.
func (s *Server) handleStartRunJob(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A run job is already running",
			"job_id": job.ID,
		})
	}

	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 30*time.Minute,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		log := logging.For("api").WithField("job", jobID)

		results := s.executeAll(jobCtx, "admin", req)

		runs := make([]map[string]interface{}, 0, len(results))
		var failed []string
		for _, res := range results {
			if res.Outcome.Result.Status == models.StatusError {
				failed = append(failed, fmt.Sprintf("%s: %s", res.Outcome.TargetURL, res.Outcome.Result.Message))
			}
			runs = append(runs, map[string]interface{}{
				"run_id":     res.Outcome.Result.RunID,
				"target":     res.Outcome.TargetURL,
				"response":   res.Outcome.Response,
				"boards":     res.Outcome.Result.Boards,
				"deliveries": res.Deliveries,
				"callback":   res.Callback,
			})
		}

		s.jobMu.Lock()
		job.EndedAt = time.Now()
		if len(failed) == len(results) {
			job.Status = "failed"
		} else {
			job.Status = "completed"
		}
		job.Error = strings.Join(failed, "; ")
		job.Result = map[string]interface{}{"runs": runs}
		s.jobMu.Unlock()
		log.Infof("run job %s: %d runs, %d failed", job.Status, len(results), len(failed))
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Run job started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}
