package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/schedulehq/publisher/internal/repository"
)

type AccountHandler struct {
	ar repository.SocialAccountRepository
}

func NewAccountHandler(ar repository.SocialAccountRepository) *AccountHandler {
	return &AccountHandler{ar: ar}
}

func (h *AccountHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accounts, err := h.ar.ListByUserID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AccountHandler) RemoveSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)

	acc, err := h.ar.GetByID(c.Context(), int64(accountID))
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

	if err := h.ar.Remove(c.Context(), acc.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
