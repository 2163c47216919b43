package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/schedulehq/publisher/internal/content"
	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/notify"
	"github.com/schedulehq/publisher/internal/publisher"
	"github.com/schedulehq/publisher/internal/repository"
	"github.com/schedulehq/publisher/internal/service"
)

const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = time.Hour
)

// Orchestrator runs one publish attempt end to end: load state, freshen the
// token, dispatch to the provider adapter, persist the outcome atomically,
// and decide whether a retry gets queued.
type Orchestrator struct {
	sr          repository.ScheduleRepository
	ar          repository.SocialAccountRepository
	cr          repository.ContentItemRepository
	pr          repository.PostRepository
	outcomes    repository.OutcomeStore
	tokens      service.TokenService
	registry    publisher.Registry
	enqueuer    Enqueuer
	notifier    notify.Notifier
	maxAttempts int
}

func NewOrchestrator(
	sr repository.ScheduleRepository,
	ar repository.SocialAccountRepository,
	cr repository.ContentItemRepository,
	pr repository.PostRepository,
	outcomes repository.OutcomeStore,
	tokens service.TokenService,
	registry publisher.Registry,
	enqueuer Enqueuer,
	notifier notify.Notifier,
	maxAttempts int) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Orchestrator{
		sr:          sr,
		ar:          ar,
		cr:          cr,
		pr:          pr,
		outcomes:    outcomes,
		tokens:      tokens,
		registry:    registry,
		enqueuer:    enqueuer,
		notifier:    notifier,
		maxAttempts: maxAttempts,
	}
}

// RetryDelay is the capped exponential backoff applied after a transient
// failure on the given (1-based) attempt.
func RetryDelay(attempt int) time.Duration {
	delay := retryBaseDelay * (1 << uint(attempt))
	if delay > retryMaxDelay || delay <= 0 {
		return retryMaxDelay
	}
	return delay
}

func (o *Orchestrator) ProcessSchedule(ctx context.Context, scheduleID int64) error {
	sched, err := o.sr.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if sched == nil {
		log.Printf("Schedule %d no longer exists; nothing to do", scheduleID)
		return nil
	}
	if sched.Status == models.ScheduleStatusPaused || sched.Status == models.ScheduleStatusPosted {
		slog.Info("schedule not runnable", "schedule_id", scheduleID, "status", sched.Status)
		return nil
	}

	acc, err := o.ar.GetByID(ctx, sched.SocialAccountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("social account %d not found for schedule %d", sched.SocialAccountID, scheduleID)
	}
	if !acc.IsActive {
		msg := "Account inactive"
		return o.sr.SetStatus(ctx, sched.ID, models.ScheduleStatusPaused, &msg)
	}

	// An auth failure here is terminal for the job; the worker-level
	// failure handler marks the schedule FAILED. No retry path.
	accessToken, err := o.tokens.EnsureFreshToken(ctx, acc)
	if err != nil {
		return err
	}

	item, err := o.cr.GetByID(ctx, sched.ContentItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("content item %d not found for schedule %d", sched.ContentItemID, scheduleID)
	}

	if err := o.sr.MarkPosting(ctx, sched.ID); err != nil {
		return err
	}
	attempt := sched.Attempts + 1

	normalized := content.Normalize(item.Metadata, item.PreviewURL)

	mediaURLs := append([]string{}, normalized.Images...)
	if normalized.Video != "" {
		mediaURLs = append(mediaURLs, normalized.Video)
	}
	post := &models.Post{
		ScheduleID:      sched.ID,
		UserID:          sched.UserID,
		SocialAccountID: acc.ID,
		MediaURLs:       mediaURLs,
	}
	if err := o.pr.UpsertProcessing(ctx, post); err != nil {
		return err
	}

	adapter, ok := o.registry.Lookup(acc.Provider)
	if !ok {
		return o.handlePublishFailure(ctx, sched, acc, post, attempt,
			publisher.Config(acc.Provider, "unsupported provider %s", acc.Provider))
	}

	result, err := adapter.Publish(ctx, accessToken, publisher.Request{
		Account:      acc,
		Content:      normalized,
		ScheduledFor: sched.ScheduledFor,
	})
	if err != nil {
		return o.handlePublishFailure(ctx, sched, acc, post, attempt, err)
	}

	post.Status = models.PostStatusSuccess
	post.ResponseMeta = result.Raw
	if result.PlatformPostID != "" {
		id := result.PlatformPostID
		post.PlatformPostID = &id
	}
	if err := o.outcomes.SaveOutcome(ctx, post, models.ScheduleStatusPosted, nil); err != nil {
		return err
	}

	o.notifier.Push(ctx, notify.Event{
		Type:   notify.EventPostCreated,
		UserID: sched.UserID,
		Payload: map[string]interface{}{
			"schedule_id":      sched.ID,
			"provider":         acc.Provider,
			"platform_post_id": result.PlatformPostID,
		},
	})
	return nil
}

func (o *Orchestrator) handlePublishFailure(ctx context.Context, sched *models.Schedule, acc *models.SocialAccount, post *models.Post, attempt int, pubErr error) error {
	msg := pubErr.Error()

	post.Status = models.PostStatusFailed
	post.ResponseMeta, _ = json.Marshal(map[string]string{"error": msg})
	if err := o.outcomes.SaveOutcome(ctx, post, models.ScheduleStatusFailed, &msg); err != nil {
		slog.Info(err.Error())
	}

	// Facebook auth errors mean the grant was revoked; the account cannot
	// be used again until the user reconnects.
	if publisher.IsAuth(pubErr) && acc.Provider == models.ProviderFacebook {
		o.deauthorizeAccount(ctx, acc, msg)
		return pubErr
	}

	if publisher.IsTransient(pubErr) && attempt < o.maxAttempts {
		// POSTING with no error marks "will retry", distinct from "gave up".
		if err := o.sr.SetStatus(ctx, sched.ID, models.ScheduleStatusPosting, nil); err != nil {
			slog.Info(err.Error())
		}
		delay := RetryDelay(attempt)
		if err := o.enqueuer.EnqueueRetry(ctx, sched.ID, attempt+1, delay); err != nil {
			slog.Info(err.Error())
			return pubErr
		}
		o.notifier.Push(ctx, notify.Event{
			Type:   notify.EventScheduleRetried,
			UserID: sched.UserID,
			Payload: map[string]interface{}{
				"schedule_id":   sched.ID,
				"attempt":       attempt,
				"error":         msg,
				"retry_in_secs": int(delay.Seconds()),
			},
		})
		return nil
	}

	return pubErr
}

func (o *Orchestrator) deauthorizeAccount(ctx context.Context, acc *models.SocialAccount, reason string) {
	if err := o.ar.Deactivate(ctx, acc.ID); err != nil {
		slog.Info(err.Error())
	}
	// Other pending work on the account would fail the same way.
	if err := o.sr.PauseByAccountID(ctx, acc.ID, "Account disconnected: "+reason); err != nil {
		slog.Info(err.Error())
	}
	if acc.Meta.Facebook != nil && acc.Meta.Facebook.PageAccessToken != "" {
		meta := acc.Meta
		meta.Facebook.PageAccessToken = ""
		if err := o.ar.UpdateMeta(ctx, acc.ID, meta); err != nil {
			slog.Info(err.Error())
		}
	}
	o.notifier.Push(ctx, notify.Event{
		Type:   notify.EventAccountDeauthorized,
		UserID: acc.UserID,
		Payload: map[string]interface{}{
			"account_id": acc.ID,
			"provider":   acc.Provider,
			"error":      reason,
		},
	})
}
