package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const TaskTypeSchedulePublish = "schedule:publish"

// QueueName is the single named queue all publish jobs go through.
const QueueName = "publish"

type SchedulePublishPayload struct {
	ScheduleID int64 `json:"schedule_id"`
	Attempt    int   `json:"attempt"`
}

// Enqueuer schedules publish jobs for future execution.
type Enqueuer interface {
	// EnqueueSchedule enqueues the initial attempt for a schedule. The job
	// id is derived from the schedule id, so enqueueing an already-pending
	// schedule is a no-op rather than a duplicate.
	EnqueueSchedule(ctx context.Context, scheduleID int64, runAt time.Time) error
	// EnqueueRetry enqueues one retry attempt after the given delay. Each
	// attempt gets its own job id so retries stay distinct but traceable.
	EnqueueRetry(ctx context.Context, scheduleID int64, attempt int, delay time.Duration) error
}

type asynqEnqueuer struct {
	client *asynq.Client
}

// NewEnqueuer wraps an asynq client. A nil client (queueing disabled by
// configuration, or no Redis) returns a no-op enqueuer: schedules are
// created but nothing fires until the requeue sweep picks them up with a
// working queue. This degradation is deliberate and logged.
func NewEnqueuer(client *asynq.Client) Enqueuer {
	if client == nil {
		return disabledEnqueuer{}
	}
	return &asynqEnqueuer{client: client}
}

func (e *asynqEnqueuer) EnqueueSchedule(ctx context.Context, scheduleID int64, runAt time.Time) error {
	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}
	taskID := fmt.Sprintf("schedule:%d", scheduleID)
	return e.enqueue(ctx, SchedulePublishPayload{ScheduleID: scheduleID, Attempt: 1}, taskID, delay)
}

func (e *asynqEnqueuer) EnqueueRetry(ctx context.Context, scheduleID int64, attempt int, delay time.Duration) error {
	taskID := fmt.Sprintf("schedule:%d:attempt:%d", scheduleID, attempt)
	return e.enqueue(ctx, SchedulePublishPayload{ScheduleID: scheduleID, Attempt: attempt}, taskID, delay)
}

func (e *asynqEnqueuer) enqueue(ctx context.Context, payload SchedulePublishPayload, taskID string, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeSchedulePublish, taskPayload)

	_, err = e.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.TaskID(taskID),
		asynq.Queue(QueueName),
		asynq.MaxRetry(0))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Already queued; at-least-once is fine, duplicates are not.
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("Task scheduled: %+v (in %s)", payload, delay)
	return nil
}

type disabledEnqueuer struct{}

func (disabledEnqueuer) EnqueueSchedule(ctx context.Context, scheduleID int64, runAt time.Time) error {
	slog.Info("queue disabled; schedule not enqueued", "schedule_id", scheduleID)
	return nil
}

func (disabledEnqueuer) EnqueueRetry(ctx context.Context, scheduleID int64, attempt int, delay time.Duration) error {
	slog.Info("queue disabled; retry not enqueued", "schedule_id", scheduleID, "attempt", attempt)
	return nil
}
