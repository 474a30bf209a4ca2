package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/api/response"
	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// SignalGater gates analysis results into signals and retries failed ones.
type SignalGater interface {
	MaybeSignal(ctx context.Context, result *models.AnalysisResult) (*models.Signal, error)
	RetrySignal(ctx context.Context, signalID uuid.UUID) error
}

// NewOracleStatusHandler returns an http.HandlerFunc for GET /api/v1/oracle/status.
// signer is nil when the relay is disabled.
func NewOracleStatusHandler(cfg config.OracleConfig, signer *oracle.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"enabled": cfg.Enabled,
		}
		if cfg.Enabled {
			body["chain_id"] = cfg.ChainID
			body["contract_address"] = cfg.ContractAddr
			if signer != nil {
				body["account_address"] = signer.Address()
			}
		}
		response.JSON(w, body)
	}
}

// NewCreateSignalHandler returns an http.HandlerFunc for
// POST /api/v1/oracle/signals. Gates an existing analysis result: a signal
// is created only for high or critical severity, at most once per result.
func NewCreateSignalHandler(s store.Store, gate SignalGater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AnalysisResultID string `json:"analysis_result_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		resultID, err := uuid.Parse(req.AnalysisResultID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"analysis_result_id must be a valid UUID", nil)
			return
		}

		result, err := s.GetAnalysisResult(r.Context(), resultID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"Analysis result not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load analysis result", nil)
			return
		}

		sig, err := gate.MaybeSignal(r.Context(), result)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create signal", nil)
			return
		}
		if sig != nil {
			response.Accepted(w, sig)
			return
		}

		// Either the result is below the severity threshold or a signal
		// already exists for it.
		existing, err := s.GetSignalByAnalysisResult(r.Context(), resultID)
		if err == nil {
			response.JSON(w, existing)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to look up signal", nil)
			return
		}
		response.Error(w, http.StatusUnprocessableEntity, "SEVERITY_BELOW_THRESHOLD",
			"Only high and critical severity results are relayed", map[string]string{
				"severity": result.Severity,
			})
	}
}

// NewListSignalsHandler returns an http.HandlerFunc for GET /api/v1/oracle/signals.
func NewListSignalsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.SignalFilter{
			Status:   r.URL.Query().Get("status"),
			Severity: r.URL.Query().Get("severity"),
		}
		if filter.Status != "" &&
			filter.Status != models.SignalStatusPending &&
			filter.Status != models.SignalStatusSent &&
			filter.Status != models.SignalStatusFailed {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of: pending, sent, failed", nil)
			return
		}
		if filter.Severity != "" && !models.ValidSeverity(filter.Severity) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"severity must be one of: low, medium, high, critical", nil)
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

		signals, total, err := s.ListSignals(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list signals", nil)
			return
		}

		response.Collection(w, signals, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

// NewGetSignalHandler returns an http.HandlerFunc for GET /api/v1/oracle/signals/{signalID}.
func NewGetSignalHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "signalID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"signalID must be a valid UUID", nil)
			return
		}

		sig, err := s.GetSignal(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Signal not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load signal", nil)
			return
		}

		response.JSON(w, sig)
	}
}

// NewRetrySignalHandler returns an http.HandlerFunc for
// POST /api/v1/oracle/signals/{signalID}/retry. Resets a pending or failed
// signal and dispatches a fresh relay attempt; sent signals are immutable.
func NewRetrySignalHandler(s store.Store, gate SignalGater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "signalID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"signalID must be a valid UUID", nil)
			return
		}

		if err := gate.RetrySignal(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Signal not found", nil)
			case errors.Is(err, store.ErrSignalNotRetryable):
				response.Error(w, http.StatusConflict, "SIGNAL_ALREADY_SENT",
					"A sent signal cannot be retried", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to retry signal", nil)
			}
			return
		}

		sig, err := s.GetSignal(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load signal", nil)
			return
		}
		response.Accepted(w, sig)
	}
}

// NewOracleStatsHandler returns an http.HandlerFunc for GET /api/v1/oracle/stats.
func NewOracleStatsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		byStatus, err := s.CountSignalsByStatus(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to count signals", nil)
			return
		}
		bySeverity, err := s.CountSignalsBySeverity(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to count signals", nil)
			return
		}
		last24h, err := s.CountSignalsSince(r.Context(), time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to count signals", nil)
			return
		}

		response.JSON(w, map[string]any{
			"by_status":      byStatus,
			"by_severity":    bySeverity,
			"last_24h_total": last24h,
		})
	}
}
