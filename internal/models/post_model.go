package models

import (
	"encoding/json"
	"time"
)

type PostStatus string

const (
	PostStatusProcessing PostStatus = "PROCESSING"
	PostStatusSuccess    PostStatus = "SUCCESS"
	PostStatusFailed     PostStatus = "FAILED"
)

// Post records the outcome of the most recent publish attempt for a
// schedule. One row per schedule; retries overwrite it.
type Post struct {
	ID              int64           `db:"id" json:"id"`
	ScheduleID      int64           `db:"schedule_id" json:"schedule_id"`
	UserID          int64           `db:"user_id" json:"user_id"`
	SocialAccountID int64           `db:"social_account_id" json:"social_account_id"`
	Status          PostStatus      `db:"status" json:"status"`
	PlatformPostID  *string         `db:"platform_post_id" json:"platform_post_id"`
	ResponseMeta    json.RawMessage `db:"response_meta" json:"response_meta"`
	MediaURLs       []string        `db:"media_urls" json:"media_urls"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}
