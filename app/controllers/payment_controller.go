package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/app/repository"
	"github.com/ManuelReschke/GymDesk/internal/pkg/billing"
	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
	"github.com/ManuelReschke/GymDesk/internal/pkg/gateway"
	"github.com/ManuelReschke/GymDesk/internal/pkg/jobqueue"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultWebhookTimeout = 800 * time.Millisecond
)

// PaymentService is the billing workflow as used by the HTTP layer.
type PaymentService interface {
	CreateOrder(ctx context.Context, in billing.CreateOrderInput) (*models.PaymentOrder, error)
	GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error)
	PollStatus(ctx context.Context, orderID string) (*billing.PollResult, error)
	ListMemberPayments(ctx context.Context, memberID string, offset, limit int) ([]models.PaymentOrder, error)
	RetryActivation(ctx context.Context, orderID string) error
	ProcessWebhook(ctx context.Context, d billing.WebhookDelivery) (*billing.WebhookResult, error)
}

type PaymentExporter interface {
	Render(ctx context.Context, filter repository.ListFilter) ([]byte, int, error)
	UploadEnabled() bool
	NewObjectKey() string
	FileName() string
}

// JobQueue schedules export uploads and reports queue health.
type JobQueue interface {
	EnqueueExport(ctx context.Context, filter repository.ListFilter, objectKey string) (*jobqueue.Job, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
}

// PaymentCounters records webhook and poll totals for the stats endpoint.
type PaymentCounters interface {
	AddWebhookAck(ctx context.Context, ack string) error
	AddPollResult(ctx context.Context, result string) error
	Snapshot(ctx context.Context) (map[string]map[string]int64, error)
}

type PaymentControllerConfig struct {
	Currency       string
	RequestTimeout time.Duration
	WebhookTimeout time.Duration
}

// LoadPaymentControllerConfig reads PAYMENT_CURRENCY and WEBHOOK_PROCESSING_TIMEOUT_MS.
func LoadPaymentControllerConfig() PaymentControllerConfig {
	return PaymentControllerConfig{
		Currency:       env.GetEnv("PAYMENT_CURRENCY", "TZS"),
		RequestTimeout: defaultRequestTimeout,
		WebhookTimeout: time.Duration(env.GetEnvInt("WEBHOOK_PROCESSING_TIMEOUT_MS", 800)) * time.Millisecond,
	}
}

// PaymentController handles payment HTTP requests
type PaymentController struct {
	payments PaymentService
	exporter PaymentExporter
	jobs     JobQueue
	counters PaymentCounters
	cfg      PaymentControllerConfig
}

// NewPaymentController creates a payment controller. exporter and jobs may be nil.
func NewPaymentController(payments PaymentService, exporter PaymentExporter, jobs JobQueue, cfg PaymentControllerConfig) *PaymentController {
	if cfg.Currency == "" {
		cfg.Currency = "TZS"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = defaultWebhookTimeout
	}
	return &PaymentController{payments: payments, exporter: exporter, jobs: jobs, cfg: cfg}
}

// SetCounters enables webhook and poll counting.
func (pc *PaymentController) SetCounters(counters PaymentCounters) {
	pc.counters = counters
}

func (pc *PaymentController) count(add func(PaymentCounters) error) {
	if pc.counters == nil {
		return
	}
	if err := add(pc.counters); err != nil {
		log.Warnf("[Payments] Failed to update counters: %v", err)
	}
}

func (pc *PaymentController) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), pc.cfg.RequestTimeout)
}

// HandleCreatePayment records an order and opens it at the gateway.
func (pc *PaymentController) HandleCreatePayment(c *fiber.Ctx) error {
	var in billing.CreateOrderInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	ctx, cancel := pc.requestContext(c)
	defer cancel()

	order, err := pc.payments.CreateOrder(ctx, in)
	if err != nil {
		return pc.writeError(c, err, order)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":          order.OrderID,
		"provider_order_id": order.ProviderOrderID,
		"status":            order.Status,
		"payment_url":       order.PaymentURL,
	})
}

// HandleGetPayment returns the stored order without contacting the gateway.
func (pc *PaymentController) HandleGetPayment(c *fiber.Ctx) error {
	order, err := pc.payments.GetOrder(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return pc.writeError(c, err, nil)
	}
	return c.JSON(paymentJSON(order))
}

// HandlePaymentStatus polls the gateway for a pending order. A failed check
// still answers 200 with the stored state and unknown=true.
func (pc *PaymentController) HandlePaymentStatus(c *fiber.Ctx) error {
	ctx, cancel := pc.requestContext(c)
	defer cancel()

	res, err := pc.payments.PollStatus(ctx, c.Params("orderId"))
	if err != nil {
		return pc.writeError(c, err, nil)
	}
	result := "cached"
	switch {
	case res.Unknown:
		result = "unknown"
	case res.Checked:
		result = "checked"
	}
	pc.count(func(pcs PaymentCounters) error { return pcs.AddPollResult(ctx, result) })

	body := paymentJSON(res.Order)
	body["unknown"] = res.Unknown
	body["checked"] = res.Checked
	return c.JSON(body)
}

// HandleMemberPayments lists a member's payment history, newest first.
func (pc *PaymentController) HandleMemberPayments(c *fiber.Ctx) error {
	memberID := c.Params("memberId")
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)

	orders, err := pc.payments.ListMemberPayments(c.UserContext(), memberID, offset, limit)
	if err != nil {
		return pc.writeError(c, err, nil)
	}
	payments := make([]fiber.Map, 0, len(orders))
	for i := range orders {
		payments = append(payments, paymentJSON(&orders[i]))
	}
	return c.JSON(fiber.Map{
		"member_id": memberID,
		"offset":    offset,
		"payments":  payments,
	})
}

// HandleBillingQuote prices one frequency, or lists every plan when no
// frequency is given.
func (pc *PaymentController) HandleBillingQuote(c *fiber.Ctx) error {
	hasInsurance := c.QueryBool("has_insurance", false)
	frequency := strings.TrimSpace(c.Query("frequency"))
	if frequency == "" {
		quotes := make([]billing.Quote, 0, 4)
		for _, p := range billing.Plans() {
			q, _ := billing.QuoteFor(p.Frequency, hasInsurance)
			quotes = append(quotes, q)
		}
		return c.JSON(fiber.Map{
			"currency":                   pc.cfg.Currency,
			"insurance_discount_percent": billing.InsuranceDiscountPercent,
			"quotes":                     quotes,
		})
	}

	q, ok := billing.QuoteFor(models.BillingFrequency(frequency), hasInsurance)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "field": "frequency", "message": "Unknown billing frequency"})
	}
	return c.JSON(fiber.Map{
		"currency":                   pc.cfg.Currency,
		"insurance_discount_percent": billing.InsuranceDiscountPercent,
		"quote":                      q,
	})
}

// HandleRetryActivation reapplies a confirmed payment to the member's subscription.
func (pc *PaymentController) HandleRetryActivation(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	ctx, cancel := pc.requestContext(c)
	defer cancel()

	if err := pc.payments.RetryActivation(ctx, orderID); err != nil {
		if errors.Is(err, billing.ErrNotActivatable) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
		}
		return pc.writeError(c, err, nil)
	}
	order, err := pc.payments.GetOrder(ctx, orderID)
	if err != nil {
		return pc.writeError(c, err, nil)
	}
	return c.JSON(paymentJSON(order))
}

// HandleJobStats reports the background queue used for activation retries
// and export uploads, plus the payment counters when enabled.
func (pc *PaymentController) HandleJobStats(c *fiber.Ctx) error {
	if pc.jobs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Job queue not configured"})
	}
	stats, err := pc.jobs.GetJobStats(c.UserContext())
	if err != nil {
		log.Errorf("[Payments] Failed to read job stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load job statistics"})
	}
	size, err := pc.jobs.GetQueueSize(c.UserContext())
	if err != nil {
		log.Errorf("[Payments] Failed to read queue size: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load job statistics"})
	}
	body := fiber.Map{"queue_size": size, "stats": stats}
	if pc.counters != nil {
		counters, err := pc.counters.Snapshot(c.UserContext())
		if err != nil {
			log.Warnf("[Payments] Failed to read counters: %v", err)
		} else {
			body["counters"] = counters
		}
	}
	return c.JSON(body)
}

// writeError maps workflow errors onto HTTP responses.
func (pc *PaymentController) writeError(c *fiber.Ctx, err error, order *models.PaymentOrder) error {
	var verr *gateway.ValidationError
	var gerr *gateway.GatewayError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "field": verr.Field, "message": verr.Error()})
	case errors.Is(err, repository.ErrOrderExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Payment already in flight"})
	case errors.As(err, &gerr):
		log.Warnf("[Payments] Gateway error: %v", err)
		body := fiber.Map{"error": "gateway_error", "message": "payment could not be initiated"}
		if msg := gerr.ProviderMessage(); msg != "" {
			body["provider_message"] = msg
		}
		if order != nil {
			body["order_id"] = order.OrderID
			body["status"] = order.Status
		}
		return c.Status(fiber.StatusBadGateway).JSON(body)
	case errors.Is(err, repository.ErrOrderNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Payment not found"})
	case errors.Is(err, repository.ErrMemberNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Member not found"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "timeout", "message": "Request timed out"})
	default:
		log.Errorf("[Payments] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Payment request failed"})
	}
}

func paymentJSON(o *models.PaymentOrder) fiber.Map {
	return fiber.Map{
		"order_id":          o.OrderID,
		"provider_order_id": o.ProviderOrderID,
		"member_id":         o.MemberID,
		"amount":            o.Amount,
		"currency":          o.Currency,
		"payment_method":    o.PaymentMethod,
		"billing_frequency": o.BillingFrequency,
		"status":            o.Status,
		"transaction_id":    o.TransactionID,
		"payment_url":       o.PaymentURL,
		"failure_reason":    o.FailureReason,
		"resolved_at":       formatTimePtr(o.ResolvedAt),
		"activated_at":      formatTimePtr(o.ActivatedAt),
		"activation_error":  o.ActivationError,
		"created_at":        o.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":        o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
