package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Source kinds.
const (
	SourceKindWeb    = "web"
	SourceKindSocial = "social"
)

// Source is a named extraction source. Config carries the kind-specific
// fetch parameters (urls, query, limits) as an opaque JSON document.
type Source struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	Name      string          `db:"name"       json:"name"`
	Kind      string          `db:"kind"       json:"kind"`
	Platform  *string         `db:"platform"   json:"platform,omitempty"`
	Config    json.RawMessage `db:"config"     json:"config"`
	Enabled   bool            `db:"enabled"    json:"enabled"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Record is a deduplicated unit of ingested content. ContentHash is a
// deterministic digest over the payload's stable identifying fields and is
// unique across all records; a duplicate hash is dropped at insert, never
// surfaced as an error.
type Record struct {
	ID          uuid.UUID       `db:"id"           json:"id"`
	SourceID    uuid.UUID       `db:"source_id"    json:"source_id"`
	Platform    string          `db:"platform"     json:"platform"`
	Payload     json.RawMessage `db:"payload"      json:"payload"`
	ContentHash string          `db:"content_hash" json:"content_hash"`
	IngestedAt  time.Time       `db:"ingested_at"  json:"ingested_at"`
}

// Dataset names a group of sources whose records are analyzed together.
type Dataset struct {
	ID              uuid.UUID   `db:"id"                json:"id"`
	Name            string      `db:"name"              json:"name"`
	Description     *string     `db:"description"       json:"description,omitempty"`
	SourceIDs       []uuid.UUID `db:"source_ids"        json:"source_ids"`
	RowCount        int         `db:"row_count"         json:"row_count"`
	CreatedAt       time.Time   `db:"created_at"        json:"created_at"`
	LastRefreshedAt *time.Time  `db:"last_refreshed_at" json:"last_refreshed_at,omitempty"`
}
