// Package extract defines the extraction collaborator contract and the
// content-addressed identity of extracted items.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/worldmind/pipeline/pkg/models"
)

// Sentinel errors for collaborator failures. Transient failures are retried
// with backoff inside a single job execution; fatal failures fail the job
// immediately.
var (
	ErrTransient = errors.New("transient extraction error")
	ErrFatal     = errors.New("fatal extraction error")
)

// Item is one extracted unit of content before it becomes a Record.
type Item struct {
	ExternalID string          `json:"external_id,omitempty"`
	URL        string          `json:"url,omitempty"`
	Title      string          `json:"title,omitempty"`
	Body       string          `json:"body,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Extractor is the external extraction collaborator.
type Extractor interface {
	Extract(ctx context.Context, source *models.Source) ([]Item, error)
}

// ContentHash returns the deterministic dedup digest for an item. Only the
// stable identifying fields participate, serialized in fixed key order with
// trimmed whitespace, so incidental payload reordering or formatting noise
// does not defeat deduplication.
func ContentHash(item Item) string {
	fields := map[string]string{
		"external_id": strings.TrimSpace(item.ExternalID),
		"url":         strings.TrimSpace(item.URL),
		"title":       strings.TrimSpace(item.Title),
		"body":        strings.TrimSpace(item.Body),
	}

	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, fields[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
