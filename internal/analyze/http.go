package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/pkg/models"
)

// HTTPAnalyzer talks to the analysis engine's HTTP API.
type HTTPAnalyzer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAnalyzer creates an HTTPAnalyzer from analysis config.
func NewHTTPAnalyzer(cfg config.AnalyzeConfig) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type analyzeRequest struct {
	DatasetID  uuid.UUID         `json:"dataset_id"`
	Categories []string          `json:"categories,omitempty"`
	Records    []json.RawMessage `json:"records"`
}

type analyzeResponse struct {
	Results []ResultDraft `json:"results"`
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, datasetID uuid.UUID, records []*models.Record, categories []string) ([]ResultDraft, error) {
	payloads := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		payloads = append(payloads, r.Payload)
	}

	body, err := json.Marshal(analyzeRequest{
		DatasetID:  datasetID,
		Categories: categories,
		Records:    payloads,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrAnalysisFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrAnalysisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAnalysisFailed, resp.StatusCode)
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrAnalysisFailed, err)
	}

	for _, r := range out.Results {
		if !models.ValidSeverity(r.Severity) {
			return nil, fmt.Errorf("%w: unknown severity %q for category %q", ErrAnalysisFailed, r.Severity, r.Category)
		}
	}
	return out.Results, nil
}
