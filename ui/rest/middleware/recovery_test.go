package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgError "github.com/zapdesk/zapdesk/pkg/apperror"
	"github.com/zapdesk/zapdesk/pkg/utils"
)

func TestRecoveryConvertsPanicToResponse(t *testing.T) {
	app := fiber.New()
	app.Use(Recovery())
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("something broke")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body utils.ResponseData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Code)
	assert.Equal(t, "something broke", body.Message)
}

func TestRecoveryKeepsApplicationErrorStatus(t *testing.T) {
	app := fiber.New()
	app.Use(Recovery())
	app.Get("/invalid", func(c *fiber.Ctx) error {
		panic(pkgError.ValidationError("name: cannot be blank."))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/invalid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body utils.ResponseData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "name: cannot be blank.", body.Message)
}
