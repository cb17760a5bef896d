package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapdesk/zapdesk/pkg/utils"
	"github.com/zapdesk/zapdesk/usecase"
)

type Health struct {
	Service usecase.IHealthUsecase
}

func InitRestHealth(app fiber.Router, service usecase.IHealthUsecase) Health {
	handler := Health{Service: service}
	app.Get("/api/health", handler.GetStatus)
	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	status := h.Service.GetStatus(c.UserContext())
	httpStatus := 200
	if status.Status != "ok" {
		httpStatus = 503
	}
	return c.Status(httpStatus).JSON(utils.ResponseData{
		Status:  httpStatus,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: status,
	})
}
