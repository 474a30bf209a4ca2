package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/api/response"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// NewCreateSourceHandler returns an http.HandlerFunc for POST /api/v1/sources.
func NewCreateSourceHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string          `json:"name"`
			Kind     string          `json:"kind"`
			Platform *string         `json:"platform"`
			Config   json.RawMessage `json:"config"`
			Enabled  *bool           `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if req.Kind != models.SourceKindWeb && req.Kind != models.SourceKindSocial {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"kind must be one of: web, social", nil)
			return
		}
		if len(req.Config) == 0 {
			req.Config = json.RawMessage(`{}`)
		}

		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}

		now := time.Now().UTC()
		source := &models.Source{
			ID:        uuid.New(),
			Name:      req.Name,
			Kind:      req.Kind,
			Platform:  req.Platform,
			Config:    req.Config,
			Enabled:   enabled,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreateSource(r.Context(), source); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE",
					"A source with this name already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create source", nil)
			return
		}

		response.Created(w, source)
	}
}

// NewListSourcesHandler returns an http.HandlerFunc for GET /api/v1/sources.
func NewListSourcesHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.ListSources(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list sources", nil)
			return
		}
		response.JSON(w, sources)
	}
}

// NewGetSourceHandler returns an http.HandlerFunc for GET /api/v1/sources/{sourceID}.
func NewGetSourceHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "sourceID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"sourceID must be a valid UUID", nil)
			return
		}

		source, err := s.GetSource(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Source not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load source", nil)
			return
		}

		response.JSON(w, source)
	}
}
