package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/ManuelReschke/GymDesk/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	payments *controllers.PaymentController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(payments *controllers.PaymentController) *APIServer {
	return &APIServer{payments: payments}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// PostPayment charges a member through the mobile money gateway.
func (s *APIServer) PostPayment(c *fiber.Ctx) error {
	return s.payments.HandleCreatePayment(c)
}

func (s *APIServer) GetPayment(c *fiber.Ctx, orderID string) error {
	return s.payments.HandleGetPayment(c)
}

// GetPaymentStatus asks the gateway about a pending order.
func (s *APIServer) GetPaymentStatus(c *fiber.Ctx, orderID string) error {
	return s.payments.HandlePaymentStatus(c)
}

// PostPaymentActivationRetry re-runs a subscription activation that failed after payment.
func (s *APIServer) PostPaymentActivationRetry(c *fiber.Ctx, orderID string) error {
	return s.payments.HandleRetryActivation(c)
}

func (s *APIServer) PostPaymentExport(c *fiber.Ctx) error {
	return s.payments.HandleExportPayments(c)
}

func (s *APIServer) GetMemberPayments(c *fiber.Ctx, memberID string) error {
	return s.payments.HandleMemberPayments(c)
}

func (s *APIServer) GetBillingQuote(c *fiber.Ctx) error {
	return s.payments.HandleBillingQuote(c)
}

func (s *APIServer) GetJobStats(c *fiber.Ctx) error {
	return s.payments.HandleJobStats(c)
}
