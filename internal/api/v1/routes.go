package apiv1

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Pong is the ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the /api/v1 operations described in public/docs/v1/openapi.yml.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	PostPayment(c *fiber.Ctx) error
	PostPaymentExport(c *fiber.Ctx) error
	GetPayment(c *fiber.Ctx, orderID string) error
	GetPaymentStatus(c *fiber.Ctx, orderID string) error
	PostPaymentActivationRetry(c *fiber.Ctx, orderID string) error
	GetMemberPayments(c *fiber.Ctx, memberID string) error
	GetBillingQuote(c *fiber.Ctx) error
	GetJobStats(c *fiber.Ctx) error
}

// ServerInterfaceWrapper extracts path parameters before calling the server.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func (w *ServerInterfaceWrapper) pathParam(c *fiber.Ctx, name string) (string, error) {
	v := strings.TrimSpace(c.Params(name))
	if v == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "Invalid format for parameter "+name)
	}
	return v, nil
}

func (w *ServerInterfaceWrapper) withParam(name string, next func(*fiber.Ctx, string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := w.pathParam(c, name)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
		}
		return next(c, v)
	}
}

// RegisterHandlers mounts every operation on router. Static paths are
// registered before parameterized ones so /payments/export is not read as an order id.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	w := &ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", si.GetPing)
	router.Get("/billing/quote", si.GetBillingQuote)
	router.Get("/jobs/stats", si.GetJobStats)
	router.Post("/payments", si.PostPayment)
	router.Post("/payments/export", si.PostPaymentExport)
	router.Get("/payments/:orderId", w.withParam("orderId", si.GetPayment))
	router.Get("/payments/:orderId/status", w.withParam("orderId", si.GetPaymentStatus))
	router.Post("/payments/:orderId/activation/retry", w.withParam("orderId", si.PostPaymentActivationRetry))
	router.Get("/members/:memberId/payments", w.withParam("memberId", si.GetMemberPayments))
}
