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

// NewCreateDatasetHandler returns an http.HandlerFunc for POST /api/v1/datasets.
func NewCreateDatasetHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string   `json:"name"`
			Description *string  `json:"description"`
			SourceIDs   []string `json:"source_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if len(req.SourceIDs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"source_ids must contain at least one source", nil)
			return
		}

		sourceIDs := make([]uuid.UUID, 0, len(req.SourceIDs))
		for _, raw := range req.SourceIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"source_ids must be valid UUIDs", nil)
				return
			}
			if _, err := s.GetSource(r.Context(), id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					response.Error(w, http.StatusNotFound, "NOT_FOUND",
						"Source "+id.String()+" not found", nil)
					return
				}
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to look up source", nil)
				return
			}
			sourceIDs = append(sourceIDs, id)
		}

		dataset := &models.Dataset{
			ID:          uuid.New(),
			Name:        req.Name,
			Description: req.Description,
			SourceIDs:   sourceIDs,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.CreateDataset(r.Context(), dataset); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE",
					"A dataset with this name already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create dataset", nil)
			return
		}

		response.Created(w, dataset)
	}
}

// NewListDatasetsHandler returns an http.HandlerFunc for GET /api/v1/datasets.
func NewListDatasetsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasets, err := s.ListDatasets(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list datasets", nil)
			return
		}
		response.JSON(w, datasets)
	}
}

// NewGetDatasetHandler returns an http.HandlerFunc for GET /api/v1/datasets/{datasetID}.
func NewGetDatasetHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "datasetID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"datasetID must be a valid UUID", nil)
			return
		}

		dataset, err := s.GetDataset(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Dataset not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load dataset", nil)
			return
		}

		response.JSON(w, dataset)
	}
}
