package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/GymDesk/app/models"
	"gorm.io/gorm"
)

// StatusFields carries the optional columns written together with a status
// transition. Empty values leave the stored column untouched.
type StatusFields struct {
	ProviderOrderID string
	TransactionID   string
	PaymentURL      string
	FailureReason   string
}

// ListFilter narrows order listings used by exports and the admin views.
type ListFilter struct {
	MemberID string
	Status   models.OrderStatus
	From     *time.Time
	To       *time.Time
	Limit    int
}

// OrderRepository is the authoritative store for payment orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.PaymentOrder) error
	GetByOrderID(ctx context.Context, orderID string) (*models.PaymentOrder, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error)
	UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus, fields StatusFields) error
	AttachProviderOrderID(ctx context.Context, orderID, providerOrderID string) (bool, error)
	MarkActivated(ctx context.Context, orderID string, at time.Time) error
	MarkActivationFailed(ctx context.Context, orderID string, reason string) error
	ListByMember(ctx context.Context, memberID string, offset, limit int) ([]models.PaymentOrder, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentOrder, error)
	ListPendingActivation(ctx context.Context, limit int) ([]models.PaymentOrder, error)
	List(ctx context.Context, filter ListFilter) ([]models.PaymentOrder, error)
}

// MemberRepository gives the payment workflow its narrow view of members.
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id string) (*models.Member, error)
	UpdateSubscription(ctx context.Context, id string, update models.SubscriptionUpdate) error
}

// WebhookEventRepository persists gateway callbacks for audit and replay detection.
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Order        OrderRepository
	Member       MemberRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:        NewOrderRepository(db),
		Member:       NewMemberRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
