package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/schedulehq/publisher/internal/models"
)

type ScheduleRepository interface {
	Create(ctx context.Context, s *models.Schedule) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Schedule, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Schedule, error)
	ListDue(ctx context.Context, before time.Time) ([]*models.Schedule, error)
	SetStatus(ctx context.Context, id int64, status models.ScheduleStatus, lastError *string) error
	SetStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.ScheduleStatus, lastError *string) error
	MarkPosting(ctx context.Context, id int64) error
	PauseByAccountID(ctx context.Context, accountID int64, lastError string) error
	Remove(ctx context.Context, id, userID int64) error
}

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

const scheduleColumns = `id, user_id, social_account_id, content_item_id, scheduled_for,
	status, attempts, last_error, created_at, updated_at`

func scanSchedule(row interface{ Scan(...interface{}) error }) (*models.Schedule, error) {
	var s models.Schedule
	err := row.Scan(&s.ID, &s.UserID, &s.SocialAccountID, &s.ContentItemID, &s.ScheduledFor,
		&s.Status, &s.Attempts, &s.LastError, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduleRepository) Create(ctx context.Context, s *models.Schedule) (int64, error) {
	query := `
		INSERT INTO schedules (user_id, social_account_id, content_item_id, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, s.UserID, s.SocialAccountID, s.ContentItemID,
		s.ScheduledFor, models.ScheduleStatusPending).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *scheduleRepository) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	s, err := scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return s, nil
}

func (r *scheduleRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE user_id = $1 ORDER BY scheduled_for DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *scheduleRepository) ListDue(ctx context.Context, before time.Time) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE status = $1 AND scheduled_for <= $2`
	rows, err := r.db.QueryContext(ctx, query, models.ScheduleStatusPending, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *scheduleRepository) SetStatus(ctx context.Context, id int64, status models.ScheduleStatus, lastError *string) error {
	query := `
		UPDATE schedules
		SET status = $2, last_error = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, status, lastError)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) SetStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.ScheduleStatus, lastError *string) error {
	query := `
		UPDATE schedules
		SET status = $2, last_error = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, status, lastError)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MarkPosting opens a publish attempt: POSTING, attempts+1, error cleared.
func (r *scheduleRepository) MarkPosting(ctx context.Context, id int64) error {
	query := `
		UPDATE schedules
		SET status = $2, attempts = attempts + 1, last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.ScheduleStatusPosting)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) PauseByAccountID(ctx context.Context, accountID int64, lastError string) error {
	query := `
		UPDATE schedules
		SET status = $2, last_error = $3, updated_at = CURRENT_TIMESTAMP
		WHERE social_account_id = $1 AND status IN ($4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, accountID, models.ScheduleStatusPaused, lastError,
		models.ScheduleStatusPending, models.ScheduleStatusQueued)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) Remove(ctx context.Context, id, userID int64) error {
	query := `DELETE FROM schedules WHERE id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
