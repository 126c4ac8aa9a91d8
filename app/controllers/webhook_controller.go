package controllers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/internal/pkg/billing"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

// HandlePaymentWebhook receives gateway callbacks. Every delivery is
// acknowledged with 200 so the gateway stops retrying; processing problems
// are logged and kept on the delivery record. The only exception is a bad
// signature when a webhook secret is configured.
func (pc *PaymentController) HandlePaymentWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)

	var n billing.WebhookNotification
	if err := c.BodyParser(&n); err != nil {
		if jerr := json.Unmarshal(payload, &n); jerr != nil {
			log.Warnf("[Webhook] Unreadable payload (%s): %v", c.Get(fiber.HeaderContentType), err)
		}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), pc.cfg.WebhookTimeout)
	defer cancel()

	res, err := pc.payments.ProcessWebhook(ctx, billing.WebhookDelivery{
		Payload:      payload,
		Signature:    c.Get(SignatureHeader),
		Notification: n,
	})
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		pc.count(func(pcs PaymentCounters) error { return pcs.AddWebhookAck(ctx, "invalid_signature") })
		log.Warnf("[Webhook] Rejected delivery with invalid signature from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid webhook signature"})
	case err != nil:
		log.Errorf("[Webhook] Processing order %s failed: %v", n.OrderID, err)
		pc.count(func(pcs PaymentCounters) error { return pcs.AddWebhookAck(ctx, string(billing.WebhookAckFailed)) })
	case res != nil:
		log.Infof("[Webhook] Order %s: %s %s", n.OrderID, res.Ack, res.Outcome)
		pc.count(func(pcs PaymentCounters) error { return pcs.AddWebhookAck(ctx, string(res.Ack)) })
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Webhook processed successfully"})
}
