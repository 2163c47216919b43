package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/queue"
	"github.com/schedulehq/publisher/internal/repository"
)

type ScheduleHandler struct {
	sr       repository.ScheduleRepository
	ar       repository.SocialAccountRepository
	pr       repository.PostRepository
	enqueuer queue.Enqueuer
}

func NewScheduleHandler(
	sr repository.ScheduleRepository,
	ar repository.SocialAccountRepository,
	pr repository.PostRepository,
	enqueuer queue.Enqueuer) *ScheduleHandler {
	return &ScheduleHandler{sr: sr, ar: ar, pr: pr, enqueuer: enqueuer}
}

type createScheduleRequest struct {
	SocialAccountID int64  `json:"social_account_id"`
	ContentItemID   int64  `json:"content_item_id"`
	ScheduledFor    string `json:"scheduled_for"`
}

func (h *ScheduleHandler) CreateSchedule(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req createScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	scheduledFor, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "scheduled_for must be an RFC3339 timestamp",
		})
	}

	acc, err := h.ar.GetByID(c.Context(), req.SocialAccountID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if acc == nil || acc.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Social account not found",
		})
	}
	if !acc.IsActive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Social account is inactive; reconnect it before scheduling",
		})
	}

	scheduleID, err := h.sr.Create(c.Context(), &models.Schedule{
		UserID:          userID,
		SocialAccountID: req.SocialAccountID,
		ContentItemID:   req.ContentItemID,
		ScheduledFor:    scheduledFor,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.enqueuer.EnqueueSchedule(c.Context(), scheduleID, scheduledFor); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"id":      scheduleID,
			"message": "Schedule created but not queued; it will be picked up by the sweep",
		})
	}

	if err := h.sr.SetStatus(c.Context(), scheduleID, models.ScheduleStatusQueued, nil); err != nil {
		slog.Info(err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":      scheduleID,
		"message": "Post scheduled successfully",
	})
}

func (h *ScheduleHandler) ListSchedules(c *fiber.Ctx) error {
	userID := GetUserID(c)

	schedules, err := h.sr.ListByUserID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list schedules",
		})
	}

	return c.Status(fiber.StatusOK).JSON(schedules)
}

func (h *ScheduleHandler) GetSchedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	scheduleID := c.QueryInt("id", 0)

	sched, err := h.sr.GetByID(c.Context(), int64(scheduleID))
	if err != nil || sched == nil || sched.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}

	post, err := h.pr.GetByScheduleID(c.Context(), sched.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if post == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No publish attempt recorded yet",
		})
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *ScheduleHandler) RemoveSchedule(c *fiber.Ctx) error {
	userID := GetUserID(c)
	scheduleID := c.QueryInt("id", 0)

	if err := h.sr.Remove(c.Context(), int64(scheduleID), userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove schedule",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
