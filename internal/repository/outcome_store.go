package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/schedulehq/publisher/internal/models"
)

// OutcomeStore finalizes one publish attempt: the Post outcome and the
// Schedule status must land together or not at all.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, post *models.Post, scheduleStatus models.ScheduleStatus, lastError *string) error
}

type outcomeStore struct {
	db *sql.DB
	pr PostRepository
	sr ScheduleRepository
}

func NewOutcomeStore(db *sql.DB, pr PostRepository, sr ScheduleRepository) OutcomeStore {
	return &outcomeStore{db: db, pr: pr, sr: sr}
}

const outcomeTxTimeout = 10 * time.Second

func (s *outcomeStore) SaveOutcome(ctx context.Context, post *models.Post, scheduleStatus models.ScheduleStatus, lastError *string) error {
	ctx, cancel := context.WithTimeout(ctx, outcomeTxTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if err := s.pr.UpsertResultTx(ctx, tx, post); err != nil {
		return err
	}
	if err := s.sr.SetStatusTx(ctx, tx, post.ScheduleID, scheduleStatus, lastError); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
