package models

import (
	"encoding/json"
	"time"
)

// ContentItem is user-authored content. The pipeline only reads it.
type ContentItem struct {
	ID         int64           `db:"id" json:"id"`
	UserID     int64           `db:"user_id" json:"user_id"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata"`
	PreviewURL string          `db:"preview_url" json:"preview_url"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
