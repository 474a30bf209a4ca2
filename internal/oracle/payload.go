package oracle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TxPayload is the canonical transaction payload carried on-chain for one
// signal: the analysis identity, its severity as a fixed ordinal, the
// assembly timestamp, and a digest of the (capped) metrics for off-chain
// verification.
type TxPayload struct {
	AnalysisID    uuid.UUID `json:"analysis_id"`
	SeverityLevel uint8     `json:"severity_level"`
	Timestamp     int64     `json:"timestamp"`
	MetricsDigest string    `json:"metrics_digest"`
}

// Bytes returns the canonical serialization that gets signed. Struct field
// order is fixed, so the encoding is deterministic.
func (p TxPayload) Bytes() ([]byte, error) {
	return json.Marshal(p)
}

// CapMetrics returns at most limit metrics chosen in sorted key order.
// Stable truncation keeps the digest identical across retries.
func CapMetrics(metrics json.RawMessage, limit int) (map[string]any, error) {
	var all map[string]any
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &all); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	capped := make(map[string]any, len(keys))
	for _, k := range keys {
		capped[k] = all[k]
	}
	return capped, nil
}

// MetricsDigest returns the 0x-prefixed Keccak-256 digest of the capped
// metrics in canonical form (encoding/json sorts map keys).
func MetricsDigest(metrics json.RawMessage, limit int) (string, error) {
	capped, err := CapMetrics(metrics, limit)
	if err != nil {
		return "", err
	}
	canonical, err := json.Marshal(capped)
	if err != nil {
		return "", fmt.Errorf("encode metrics: %w", err)
	}
	return "0x" + hex.EncodeToString(Keccak256(canonical)), nil
}

// buildPayload assembles the canonical payload for an analysis result's
// severity and metrics at the given time.
func buildPayload(analysisID uuid.UUID, severityOrdinal uint8, metrics json.RawMessage, metricsCap int, now time.Time) (TxPayload, error) {
	digest, err := MetricsDigest(metrics, metricsCap)
	if err != nil {
		return TxPayload{}, err
	}
	return TxPayload{
		AnalysisID:    analysisID,
		SeverityLevel: severityOrdinal,
		Timestamp:     now.UTC().Unix(),
		MetricsDigest: digest,
	}, nil
}
