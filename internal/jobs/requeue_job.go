package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/queue"
	"github.com/schedulehq/publisher/internal/repository"
)

// RequeueJob sweeps PENDING schedules whose time has come and pushes them
// onto the queue. It recovers schedules created while queueing was disabled
// or whose delayed job was lost.
type RequeueJob struct {
	sr       repository.ScheduleRepository
	enqueuer queue.Enqueuer
}

func NewRequeueJob(sr repository.ScheduleRepository, enqueuer queue.Enqueuer) *RequeueJob {
	return &RequeueJob{sr: sr, enqueuer: enqueuer}
}

func (j *RequeueJob) RequeueDue() {
	ctx := context.Background()

	schedules, err := j.sr.ListDue(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, sched := range schedules {
		if err := j.enqueuer.EnqueueSchedule(ctx, sched.ID, sched.ScheduledFor); err != nil {
			slog.Info("unable to enqueue due schedule", "schedule_id", sched.ID, "error", err.Error())
			continue
		}
		if err := j.sr.SetStatus(ctx, sched.ID, models.ScheduleStatusQueued, nil); err != nil {
			slog.Info(err.Error())
		}
	}
}
