package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/notify"
	"github.com/schedulehq/publisher/internal/repository"
)

// Worker executes publish jobs pulled off the queue and is the safety net
// for failures the orchestrator's own handling never saw (token refresh
// errors, load failures): no schedule may be left in a non-terminal status.
type Worker struct {
	orch     *Orchestrator
	sr       repository.ScheduleRepository
	notifier notify.Notifier
}

func NewWorker(orch *Orchestrator, sr repository.ScheduleRepository, notifier notify.Notifier) *Worker {
	return &Worker{orch: orch, sr: sr, notifier: notifier}
}

func (w *Worker) HandleSchedulePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload SchedulePublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.orch.ProcessSchedule(ctx, payload.ScheduleID); err != nil {
		w.handleFailure(ctx, payload.ScheduleID, err)
		// Retry policy is the orchestrator's; never let asynq re-run the job.
		return fmt.Errorf("publish schedule %d: %v: %w", payload.ScheduleID, err, asynq.SkipRetry)
	}
	return nil
}

func (w *Worker) handleFailure(ctx context.Context, scheduleID int64, jobErr error) {
	sched, err := w.sr.GetByID(ctx, scheduleID)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if sched == nil {
		return
	}

	msg := jobErr.Error()
	if sched.Status != models.ScheduleStatusFailed {
		if err := w.sr.SetStatus(ctx, sched.ID, models.ScheduleStatusFailed, &msg); err != nil {
			slog.Info(err.Error())
		}
	}

	w.notifier.Push(ctx, notify.Event{
		Type:   notify.EventScheduleFailed,
		UserID: sched.UserID,
		Payload: map[string]interface{}{
			"schedule_id": sched.ID,
			"error":       msg,
		},
	})
}
