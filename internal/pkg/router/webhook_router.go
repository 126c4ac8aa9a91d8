package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/GymDesk/app/controllers"
)

// WebhookRouter exposes the gateway callback. It is authenticated by the
// optional payload signature, not by staff keys.
type WebhookRouter struct {
	payments *controllers.PaymentController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/payment", h.payments.HandlePaymentWebhook)
}

func NewWebhookRouter(payments *controllers.PaymentController) *WebhookRouter {
	return &WebhookRouter{payments: payments}
}
