package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/app/repository"
	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
	"github.com/ManuelReschke/GymDesk/internal/pkg/gateway"
)

// ErrNotActivatable is returned when an activation retry targets an order
// that has not succeeded.
var ErrNotActivatable = errors.New("order is not eligible for activation")

// Config tunes the reconciliation policy.
type Config struct {
	Currency string
	// MaxPending is how long an order may stay pending before it is failed.
	MaxPending time.Duration
	// WebhookSecret enables signature checks on incoming webhooks when set.
	WebhookSecret  string
	SweepBatchSize int
}

// LoadConfig reads the policy settings from the environment.
func LoadConfig() Config {
	return Config{
		Currency:       strings.TrimSpace(env.GetEnv("PAYMENT_CURRENCY", "TZS")),
		MaxPending:     env.GetEnvMinutes("PAYMENT_MAX_PENDING_MINUTES", 30),
		WebhookSecret:  strings.TrimSpace(env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")),
		SweepBatchSize: env.GetEnvInt("STALE_ORDER_SWEEP_BATCH", 100),
	}
}

// Dependencies are the collaborators of Service. Activator defaults to a
// SubscriptionActivator over Members; Queue and Throttle are optional.
type Dependencies struct {
	Orders    OrderStore
	Members   MemberStore
	Events    WebhookEventStore
	Gateway   Gateway
	Activator Activator
	Queue     ActivationQueue
	Throttle  PollThrottle
}

// Service owns every write to payment orders. Webhooks, polls, the stale
// sweep and order creation all resolve orders through reconcile.
type Service struct {
	orders    OrderStore
	members   MemberStore
	events    WebhookEventStore
	gateway   Gateway
	activator Activator
	queue     ActivationQueue
	throttle  PollThrottle
	cfg       Config
	now       func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "TZS"
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 30 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	activator := deps.Activator
	if activator == nil && deps.Members != nil {
		activator = NewSubscriptionActivator(deps.Members)
	}
	return &Service{
		orders:    deps.Orders,
		members:   deps.Members,
		events:    deps.Events,
		gateway:   deps.Gateway,
		activator: activator,
		queue:     deps.Queue,
		throttle:  deps.Throttle,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetActivationQueue attaches the retry queue after construction, for
// wiring where the queue consumer itself depends on the service.
func (s *Service) SetActivationQueue(q ActivationQueue) {
	s.queue = q
}

// CreateOrder records a pending order and opens it at the provider. The
// record is written before the provider is called so that a crash between
// the two leaves a pending row for the sweep to resolve.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.PaymentOrder, error) {
	if !in.BillingFrequency.Valid() {
		return nil, &gateway.ValidationError{Field: "billing_frequency", Message: "must be one of monthly, quarterly, semi-annually, annually"}
	}
	if strings.TrimSpace(in.OrderID) == "" {
		in.OrderID = "order_" + uuid.NewString()
	}
	if in.Amount == 0 {
		q, _ := QuoteFor(in.BillingFrequency, in.HasInsurance)
		in.Amount = q.Total
	}

	req := gateway.CreateOrderRequest{
		OrderID:       strings.TrimSpace(in.OrderID),
		MemberID:      strings.TrimSpace(in.MemberID),
		Amount:        in.Amount,
		BuyerName:     strings.TrimSpace(in.BuyerName),
		BuyerEmail:    strings.TrimSpace(in.BuyerEmail),
		BuyerPhone:    strings.TrimSpace(in.BuyerPhone),
		PaymentMethod: in.PaymentMethod,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.members != nil {
		if _, err := s.members.GetByID(ctx, req.MemberID); err != nil {
			if errors.Is(err, repository.ErrMemberNotFound) {
				return nil, &gateway.ValidationError{Field: "member_id", Message: "unknown member"}
			}
			return nil, err
		}
	}

	order := &models.PaymentOrder{
		OrderID:          req.OrderID,
		MemberID:         req.MemberID,
		Amount:           req.Amount,
		Currency:         s.cfg.Currency,
		PaymentMethod:    req.PaymentMethod,
		BillingFrequency: in.BillingFrequency,
		Status:           models.OrderStatusPending,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	log.Infof("[Billing] Order %s recorded for member %s (%d %s, %s)", order.OrderID, order.MemberID, order.Amount, order.Currency, order.BillingFrequency)

	created, gwErr := s.gateway.CreateOrder(ctx, req)
	if gwErr != nil {
		var ge *gateway.GatewayError
		if errors.As(gwErr, &ge) && ge.Rejected {
			reason := "provider rejected order"
			if ge.Message != "" {
				reason += ": " + ge.Message
			}
			if _, err := s.reconcile(ctx, order, StatusReport{Status: models.OrderStatusFailed, Reason: reason, Source: SourceCreate}); err != nil {
				log.Errorf("[Billing] Could not fail rejected order %s: %v", order.OrderID, err)
			}
		} else {
			log.Warnf("[Billing] Outcome of order %s unknown, leaving pending: %v", order.OrderID, gwErr)
		}
		if current, err := s.orders.GetByOrderID(ctx, order.OrderID); err == nil {
			order = current
		}
		return order, gwErr
	}

	res, err := s.reconcile(ctx, order, StatusReport{
		Status:          models.OrderStatusPending,
		ProviderOrderID: created.ProviderOrderID,
		PaymentURL:      created.PaymentURL,
		Source:          SourceCreate,
	})
	if err != nil {
		return order, fmt.Errorf("store provider order id for %s: %w", order.OrderID, err)
	}
	return res.Order, nil
}

// GetOrder reads an order from the store.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	return s.orders.GetByOrderID(ctx, orderID)
}

// ListMemberPayments returns a member's payment history, newest first.
func (s *Service) ListMemberPayments(ctx context.Context, memberID string, offset, limit int) ([]models.PaymentOrder, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.ListByMember(ctx, memberID, offset, limit)
}

// Reconcile applies report to the order through the guarded transition.
func (s *Service) Reconcile(ctx context.Context, orderID string, report StatusReport) (*ReconcileResult, error) {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, order, report)
}

func (s *Service) reconcile(ctx context.Context, order *models.PaymentOrder, report StatusReport) (*ReconcileResult, error) {
	next := report.Status
	if !next.Valid() {
		return nil, fmt.Errorf("reconcile order %s: unknown status %q", order.OrderID, next)
	}
	if next == models.OrderStatusSucceeded && strings.TrimSpace(report.TransactionID) == "" {
		log.Warnf("[Billing] %s reported success for order %s without transaction id, keeping it pending", report.Source, order.OrderID)
		next = models.OrderStatusPending
	}

	if order.Status.IsTerminal() {
		return s.discard(ctx, order, next, report), nil
	}

	err := s.orders.UpdateStatus(ctx, order.OrderID, next, repository.StatusFields{
		ProviderOrderID: report.ProviderOrderID,
		TransactionID:   strings.TrimSpace(report.TransactionID),
		PaymentURL:      report.PaymentURL,
		FailureReason:   report.Reason,
	})
	if errors.Is(err, models.ErrInvalidTransition) {
		current, gerr := s.orders.GetByOrderID(ctx, order.OrderID)
		if gerr != nil {
			return nil, gerr
		}
		return s.discard(ctx, current, next, report), nil
	}
	if err != nil {
		return nil, err
	}

	updated, err := s.orders.GetByOrderID(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}
	if next == models.OrderStatusPending {
		return &ReconcileResult{Order: updated, Outcome: OutcomeRefreshed}, nil
	}

	log.Infof("[Billing] Order %s %s via %s", updated.OrderID, next, report.Source)
	res := &ReconcileResult{Order: updated, Outcome: OutcomeApplied}
	if next == models.OrderStatusSucceeded {
		s.activateWinner(ctx, res)
	}
	return res, nil
}

// discard handles a report that arrives after the order was resolved. The
// status is left alone, but a provider id the order is still missing is kept.
func (s *Service) discard(ctx context.Context, current *models.PaymentOrder, reported models.OrderStatus, report StatusReport) *ReconcileResult {
	if report.ProviderOrderID != "" && current.ProviderRef() == "" {
		attached, err := s.orders.AttachProviderOrderID(ctx, current.OrderID, report.ProviderOrderID)
		switch {
		case err != nil:
			log.Errorf("[Billing] Could not store provider id %s on resolved order %s: %v", report.ProviderOrderID, current.OrderID, err)
		case attached:
			id := report.ProviderOrderID
			current.ProviderOrderID = &id
			log.Infof("[Billing] Stored provider id %s on %s order %s", id, current.Status, current.OrderID)
		}
	}
	if current.Status.IsTerminal() && reported.IsTerminal() && reported != current.Status {
		log.Warnf("[Billing] Conflict on order %s: stored %s, %s reported %s (tx=%q); discarded",
			current.OrderID, current.Status, report.Source, reported, report.TransactionID)
		return &ReconcileResult{Order: current, Outcome: OutcomeConflict}
	}
	log.Debugf("[Billing] Order %s already %s, ignoring %s report from %s", current.OrderID, current.Status, reported, report.Source)
	return &ReconcileResult{Order: current, Outcome: OutcomeDuplicate}
}

// PollStatus returns the order and, while it is pending, asks the provider
// for news and applies the answer through reconcile.
func (s *Service) PollStatus(ctx context.Context, orderID string) (*PollResult, error) {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return &PollResult{Order: order}, nil
	}

	if s.expired(order) {
		res, err := s.reconcile(ctx, order, StatusReport{
			Status: models.OrderStatusFailed,
			Reason: fmt.Sprintf("payment not confirmed within %s", s.cfg.MaxPending),
			Source: SourcePoll,
		})
		if err != nil {
			return nil, err
		}
		return &PollResult{Order: res.Order}, nil
	}

	ref := order.ProviderRef()
	if ref == "" {
		return &PollResult{Order: order}, nil
	}
	if s.throttle != nil && !s.throttle.Allow(ctx, order.OrderID) {
		return &PollResult{Order: order}, nil
	}

	st, err := s.gateway.CheckStatus(ctx, ref)
	if err != nil {
		log.Warnf("[Billing] Status check for order %s failed, state unknown: %v", order.OrderID, err)
		return &PollResult{Order: order, Unknown: true}, nil
	}

	res, err := s.reconcile(ctx, order, StatusReport{
		Status:        st.Status,
		TransactionID: st.TransactionID,
		Source:        SourcePoll,
	})
	if err != nil {
		return nil, err
	}
	return &PollResult{Order: res.Order, Checked: true}, nil
}

func (s *Service) expired(order *models.PaymentOrder) bool {
	return s.now().Sub(order.CreatedAt) > s.cfg.MaxPending
}
