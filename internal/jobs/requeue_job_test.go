package job

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/schedulehq/publisher/internal/models"
)

type stubScheduleRepo struct {
	due      []*models.Schedule
	statuses map[int64]models.ScheduleStatus
}

func (s *stubScheduleRepo) Create(ctx context.Context, sched *models.Schedule) (int64, error) {
	return 0, nil
}

func (s *stubScheduleRepo) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	return nil, nil
}

func (s *stubScheduleRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.Schedule, error) {
	return nil, nil
}

func (s *stubScheduleRepo) ListDue(ctx context.Context, before time.Time) ([]*models.Schedule, error) {
	return s.due, nil
}

func (s *stubScheduleRepo) SetStatus(ctx context.Context, id int64, status models.ScheduleStatus, lastError *string) error {
	if s.statuses == nil {
		s.statuses = map[int64]models.ScheduleStatus{}
	}
	s.statuses[id] = status
	return nil
}

func (s *stubScheduleRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.ScheduleStatus, lastError *string) error {
	return s.SetStatus(ctx, id, status, lastError)
}

func (s *stubScheduleRepo) MarkPosting(ctx context.Context, id int64) error {
	return nil
}

func (s *stubScheduleRepo) PauseByAccountID(ctx context.Context, accountID int64, lastError string) error {
	return nil
}

func (s *stubScheduleRepo) Remove(ctx context.Context, id, userID int64) error {
	return nil
}

type stubEnqueuer struct {
	enqueued []int64
	fail     map[int64]error
}

func (s *stubEnqueuer) EnqueueSchedule(ctx context.Context, scheduleID int64, runAt time.Time) error {
	if err := s.fail[scheduleID]; err != nil {
		return err
	}
	s.enqueued = append(s.enqueued, scheduleID)
	return nil
}

func (s *stubEnqueuer) EnqueueRetry(ctx context.Context, scheduleID int64, attempt int, delay time.Duration) error {
	return nil
}

func TestRequeueDueQueuesPendingSchedules(t *testing.T) {
	repo := &stubScheduleRepo{due: []*models.Schedule{
		{ID: 1, ScheduledFor: time.Now().Add(-time.Hour), Status: models.ScheduleStatusPending},
		{ID: 2, ScheduledFor: time.Now().Add(-time.Minute), Status: models.ScheduleStatusPending},
	}}
	enq := &stubEnqueuer{}

	NewRequeueJob(repo, enq).RequeueDue()

	assert.Equal(t, []int64{1, 2}, enq.enqueued)
	assert.Equal(t, models.ScheduleStatusQueued, repo.statuses[1])
	assert.Equal(t, models.ScheduleStatusQueued, repo.statuses[2])
}

func TestRequeueDueKeepsStatusOnEnqueueFailure(t *testing.T) {
	repo := &stubScheduleRepo{due: []*models.Schedule{
		{ID: 1, ScheduledFor: time.Now().Add(-time.Minute), Status: models.ScheduleStatusPending},
		{ID: 2, ScheduledFor: time.Now().Add(-time.Minute), Status: models.ScheduleStatusPending},
	}}
	enq := &stubEnqueuer{fail: map[int64]error{1: errors.New("redis down")}}

	NewRequeueJob(repo, enq).RequeueDue()

	assert.Equal(t, []int64{2}, enq.enqueued)
	assert.NotContains(t, repo.statuses, int64(1), "a schedule that was not enqueued stays PENDING for the next sweep")
	assert.Equal(t, models.ScheduleStatusQueued, repo.statuses[2])
}

func TestRequeueDueNothingDue(t *testing.T) {
	repo := &stubScheduleRepo{}
	enq := &stubEnqueuer{}

	NewRequeueJob(repo, enq).RequeueDue()

	assert.Empty(t, enq.enqueued)
	assert.Empty(t, repo.statuses)
}
