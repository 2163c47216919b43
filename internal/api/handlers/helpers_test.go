package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getUserIDThrough(t *testing.T, local interface{}) int64 {
	t.Helper()
	app := fiber.New()
	var got int64 = -1
	app.Get("/whoami", func(c *fiber.Ctx) error {
		if local != nil {
			c.Locals("user_id", local)
		}
		got = GetUserID(c)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	return got
}

func TestGetUserID(t *testing.T) {
	assert.EqualValues(t, 42, getUserIDThrough(t, "42"))
}

func TestGetUserIDMissingLocal(t *testing.T) {
	assert.EqualValues(t, 0, getUserIDThrough(t, nil))
}

func TestGetUserIDMalformedLocal(t *testing.T) {
	assert.EqualValues(t, 0, getUserIDThrough(t, "not-a-number"))
}
