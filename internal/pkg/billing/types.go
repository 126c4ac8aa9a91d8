package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/app/repository"
	"github.com/ManuelReschke/GymDesk/internal/pkg/gateway"
)

// Source names the path a status report arrived through.
type Source string

const (
	SourceCreate  Source = "create"
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceSweep   Source = "sweep"
)

// StatusReport is a provider or local observation about an order, fed into
// the single guarded transition in Service.Reconcile.
type StatusReport struct {
	Status          models.OrderStatus
	TransactionID   string
	ProviderOrderID string
	PaymentURL      string
	Reason          string
	Source          Source
}

// Outcome describes what Reconcile did with a report.
type Outcome string

const (
	// OutcomeApplied means the report moved the order to a terminal state.
	OutcomeApplied Outcome = "applied"
	// OutcomeRefreshed means the order stayed pending and bookkeeping was updated.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeDuplicate means the order was already resolved consistently
	// with the report, or another writer resolved it first.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeConflict means the report disagrees with a stored terminal state.
	OutcomeConflict Outcome = "conflict"
)

type ReconcileResult struct {
	Order            *models.PaymentOrder
	Outcome          Outcome
	Activated        bool
	ActivationQueued bool
	ActivationError  string
}

// CreateOrderInput is the staff request to charge a member.
type CreateOrderInput struct {
	OrderID          string                  `json:"order_id"`
	MemberID         string                  `json:"member_id"`
	Amount           int64                   `json:"amount"`
	BuyerName        string                  `json:"buyer_name"`
	BuyerEmail       string                  `json:"buyer_email"`
	BuyerPhone       string                  `json:"buyer_phone"`
	PaymentMethod    models.PaymentMethod    `json:"payment_method"`
	BillingFrequency models.BillingFrequency `json:"billing_frequency"`
	HasInsurance     bool                    `json:"has_insurance"`
}

type PollResult struct {
	Order *models.PaymentOrder
	// Unknown is set when the provider could not be asked; the stored state is returned.
	Unknown bool
	// Checked is set when the provider was asked during this call.
	Checked bool
}

// OrderStore is the subset of the order repository used by the service.
type OrderStore interface {
	Create(ctx context.Context, order *models.PaymentOrder) error
	GetByOrderID(ctx context.Context, orderID string) (*models.PaymentOrder, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error)
	UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus, fields repository.StatusFields) error
	AttachProviderOrderID(ctx context.Context, orderID, providerOrderID string) (bool, error)
	MarkActivated(ctx context.Context, orderID string, at time.Time) error
	MarkActivationFailed(ctx context.Context, orderID string, reason string) error
	ListByMember(ctx context.Context, memberID string, offset, limit int) ([]models.PaymentOrder, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentOrder, error)
	ListPendingActivation(ctx context.Context, limit int) ([]models.PaymentOrder, error)
}

type MemberStore interface {
	GetByID(ctx context.Context, id string) (*models.Member, error)
	UpdateSubscription(ctx context.Context, id string, update models.SubscriptionUpdate) error
}

type WebhookEventStore interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// Gateway is the payment provider as seen by the service.
type Gateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.CreateOrderResult, error)
	CheckStatus(ctx context.Context, providerOrderID string) (*gateway.StatusResult, error)
}

// Activator applies a confirmed payment to the member's subscription.
type Activator interface {
	Activate(ctx context.Context, memberID string, frequency models.BillingFrequency, amount int64, effectiveDate time.Time) error
}

// ActivationQueue schedules a later activation attempt for an order.
type ActivationQueue interface {
	EnqueueActivation(ctx context.Context, orderID, memberID string) error
}

// PollThrottle limits how often one order is checked with the provider.
type PollThrottle interface {
	Allow(ctx context.Context, key string) bool
}
