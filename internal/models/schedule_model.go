package models

import "time"

type ScheduleStatus string

const (
	ScheduleStatusPending ScheduleStatus = "PENDING"
	ScheduleStatusQueued  ScheduleStatus = "QUEUED"
	ScheduleStatusPosting ScheduleStatus = "POSTING"
	ScheduleStatusPosted  ScheduleStatus = "POSTED"
	ScheduleStatusFailed  ScheduleStatus = "FAILED"
	ScheduleStatusPaused  ScheduleStatus = "PAUSED"
)

type Schedule struct {
	ID              int64          `db:"id" json:"id"`
	UserID          int64          `db:"user_id" json:"user_id"`
	SocialAccountID int64          `db:"social_account_id" json:"social_account_id"`
	ContentItemID   int64          `db:"content_item_id" json:"content_item_id"`
	ScheduledFor    time.Time      `db:"scheduled_for" json:"scheduled_for"`
	Status          ScheduleStatus `db:"status" json:"status"`
	Attempts        int            `db:"attempts" json:"attempts"`
	LastError       *string        `db:"last_error" json:"last_error"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}
