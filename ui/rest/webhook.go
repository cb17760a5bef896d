package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	domainWebhook "github.com/zapdesk/zapdesk/domains/webhook"
)

type Webhook struct {
	Service domainWebhook.IUsecase
}

func InitRestWebhook(app fiber.Router, service domainWebhook.IUsecase) Webhook {
	handler := Webhook{Service: service}
	app.Post("/webhook/evolution", handler.Receive)
	return handler
}

// Receive always answers 200. The provider treats anything else as a
// delivery failure and retries forever, so internal problems are logged
// and acknowledged instead of surfaced.
func (h *Webhook) Receive(c *fiber.Ctx) error {
	var env domainWebhook.Envelope
	if err := c.BodyParser(&env); err != nil {
		logrus.Warnf("[WEBHOOK] Malformed body: %v", err)
		return c.JSON(fiber.Map{
			"success": false,
			"error":   "malformed body",
		})
	}

	if err := h.Service.Process(c.UserContext(), env); err != nil {
		logrus.WithFields(logrus.Fields{
			"event":    env.Event,
			"instance": env.Instance,
		}).Errorf("[WEBHOOK] Processing failed: %v", err)
		return c.JSON(fiber.Map{
			"success": false,
			"event":   env.Event,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"event":   env.Event,
	})
}
