package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/api/response"
	"github.com/worldmind/pipeline/internal/cache"
	"github.com/worldmind/pipeline/internal/queue"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

const (
	defaultCleanupDays = 30
	maxListLimit       = 100
)

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// Clients submit extract and analyze jobs; relay jobs are created
// internally when a signal is gated through.
func NewSubmitJobHandler(s store.Store, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type       string   `json:"type"`
			SourceID   string   `json:"source_id"`
			DatasetID  string   `json:"dataset_id"`
			Categories []string `json:"categories"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		var input any
		switch req.Type {
		case models.JobTypeExtract:
			sourceID, err := uuid.Parse(req.SourceID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"source_id must be a valid UUID", nil)
				return
			}
			if _, err := s.GetSource(r.Context(), sourceID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					response.Error(w, http.StatusNotFound, "NOT_FOUND", "Source not found", nil)
					return
				}
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to look up source", nil)
				return
			}
			input = models.ExtractInput{SourceID: sourceID}
		case models.JobTypeAnalyze:
			datasetID, err := uuid.Parse(req.DatasetID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"dataset_id must be a valid UUID", nil)
				return
			}
			if _, err := s.GetDataset(r.Context(), datasetID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					response.Error(w, http.StatusNotFound, "NOT_FOUND", "Dataset not found", nil)
					return
				}
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to look up dataset", nil)
				return
			}
			input = models.AnalyzeInput{DatasetID: datasetID, Categories: req.Categories}
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"type must be one of: extract, analyze", nil)
			return
		}

		rawInput, err := json.Marshal(input)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to encode job input", nil)
			return
		}

		job := &models.Job{
			ID:        uuid.New(),
			Type:      req.Type,
			Status:    models.JobStatusPending,
			Input:     rawInput,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateJob(r.Context(), job); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create job", nil)
			return
		}

		if err := q.Enqueue(r.Context(), job.Type, job.ID); err != nil {
			// The job row exists; a worker claim poll will still pick it up.
			slog.Error("enqueue job", "job_id", job.ID, "type", job.Type, "error", err)
		}

		response.Accepted(w, job)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// A cached non-terminal status answers the poll without touching Postgres;
// terminal statuses are always read from the store so the response carries
// output and error details.
func NewGetJobHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"jobID must be a valid UUID", nil)
			return
		}

		if status, ok, cerr := c.GetJobStatus(r.Context(), jobID); cerr == nil && ok {
			if status == models.JobStatusPending || status == models.JobStatusRunning {
				response.JSON(w, map[string]any{
					"id":     jobID,
					"status": status,
				})
				return
			}
		}

		job, err := s.GetJob(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load job", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.JobFilter{
			Status: r.URL.Query().Get("status"),
			Type:   r.URL.Query().Get("type"),
		}
		if filter.Status != "" &&
			filter.Status != models.JobStatusPending &&
			filter.Status != models.JobStatusRunning &&
			filter.Status != models.JobStatusCompleted &&
			filter.Status != models.JobStatusFailed {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of: pending, running, completed, failed", nil)
			return
		}
		if filter.Type != "" && !models.ValidJobType(filter.Type) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"type must be one of: extract, analyze, relay-signal", nil)
			return
		}
		if since := r.URL.Query().Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = t
		}
		filter.Page, filter.Limit = parsePagination(r)

		jobs, total, err := s.ListJobs(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}

		response.Collection(w, jobs, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

// NewCleanupJobsHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/cleanup. Deletes completed and failed jobs older than
// the requested number of days; pending and running jobs are untouched.
func NewCleanupJobsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := struct {
			OlderThanDays int `json:"older_than_days"`
		}{OlderThanDays: defaultCleanupDays}

		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}
		if req.OlderThanDays < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"older_than_days must be at least 1", nil)
			return
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -req.OlderThanDays)
		deleted, err := s.DeleteTerminalJobsBefore(r.Context(), cutoff)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to clean up jobs", nil)
			return
		}

		slog.Info("job cleanup", "deleted", deleted, "older_than_days", req.OlderThanDays)
		response.JSON(w, map[string]any{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		})
	}
}

func parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = 20
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := parsePositiveInt(p); err == nil {
			page = n
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := parsePositiveInt(l); err == nil {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return page, limit
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
