package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// OrderStatus is the lifecycle state of a payment order. pending is the only
// non-terminal state.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSucceeded OrderStatus = "succeeded"
	OrderStatusFailed    OrderStatus = "failed"
)

// ErrInvalidTransition is returned when a status change would leave a
// terminal state or the stored status no longer matches the expected one.
var ErrInvalidTransition = errors.New("invalid order status transition")

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusSucceeded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusSucceeded || s == OrderStatusFailed
}

// CanTransitionTo reports whether next is reachable from s.
// pending -> pending is allowed and only refreshes bookkeeping.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.Valid() {
		return false
	}
	return s == OrderStatusPending
}

type PaymentMethod string

const (
	PaymentMethodMpesa    PaymentMethod = "mpesa"
	PaymentMethodAirtel   PaymentMethod = "airtel"
	PaymentMethodHalopesa PaymentMethod = "halopesa"
	PaymentMethodTigopesa PaymentMethod = "tigopesa"
	PaymentMethodMixByYas PaymentMethod = "mix_by_yas"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodMpesa, PaymentMethodAirtel, PaymentMethodHalopesa, PaymentMethodTigopesa, PaymentMethodMixByYas:
		return true
	default:
		return false
	}
}

type BillingFrequency string

const (
	BillingMonthly      BillingFrequency = "monthly"
	BillingQuarterly    BillingFrequency = "quarterly"
	BillingSemiAnnually BillingFrequency = "semi-annually"
	BillingAnnually     BillingFrequency = "annually"
)

// Months returns the subscription length purchased by one payment, or 0 for
// an unknown frequency.
func (f BillingFrequency) Months() int {
	switch f {
	case BillingMonthly:
		return 1
	case BillingQuarterly:
		return 3
	case BillingSemiAnnually:
		return 6
	case BillingAnnually:
		return 12
	default:
		return 0
	}
}

func (f BillingFrequency) Valid() bool {
	return f.Months() > 0
}

// PaymentOrder is one attempt to collect a subscription payment through the
// mobile money gateway. Rows are never deleted.
type PaymentOrder struct {
	ID               uint             `gorm:"primaryKey" json:"-"`
	OrderID          string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_id" validate:"required,max=64"`
	ProviderOrderID  *string          `gorm:"type:varchar(128);uniqueIndex;default:null" json:"provider_order_id"`
	MemberID         string           `gorm:"type:varchar(64);not null;index" json:"member_id" validate:"required,max=64"`
	Amount           int64            `gorm:"not null" json:"amount" validate:"gt=0"`
	Currency         string           `gorm:"type:varchar(8);not null;default:'TZS'" json:"currency" validate:"required,len=3"`
	PaymentMethod    PaymentMethod    `gorm:"type:varchar(20);not null" json:"payment_method" validate:"oneof=mpesa airtel halopesa tigopesa mix_by_yas"`
	BillingFrequency BillingFrequency `gorm:"type:varchar(20);not null" json:"billing_frequency" validate:"oneof=monthly quarterly semi-annually annually"`
	Status           OrderStatus      `gorm:"type:varchar(16);not null;default:'pending';index:idx_payment_orders_status_created,priority:1" json:"status" validate:"oneof=pending succeeded failed"`
	TransactionID    *string          `gorm:"type:varchar(128);default:null" json:"transaction_id"`
	PaymentURL       string           `gorm:"type:varchar(512)" json:"payment_url,omitempty"`
	FailureReason    string           `gorm:"type:text" json:"failure_reason,omitempty"`
	ResolvedAt       *time.Time       `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	ActivatedAt      *time.Time       `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	ActivationError  string           `gorm:"type:text" json:"activation_error,omitempty"`
	CreatedAt        time.Time        `gorm:"autoCreateTime;index:idx_payment_orders_status_created,priority:2" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}

func (o *PaymentOrder) Validate() error {
	v := validator.New()
	return v.Struct(o)
}

// ProviderRef returns the provider order id or "" when none was assigned.
func (o *PaymentOrder) ProviderRef() string {
	if o.ProviderOrderID == nil {
		return ""
	}
	return *o.ProviderOrderID
}

// TransactionRef returns the provider transaction id or "".
func (o *PaymentOrder) TransactionRef() string {
	if o.TransactionID == nil {
		return ""
	}
	return *o.TransactionID
}

// NeedsActivation is true for a confirmed payment whose subscription update
// has not been applied yet.
func (o *PaymentOrder) NeedsActivation() bool {
	return o.Status == OrderStatusSucceeded && o.ActivatedAt == nil
}
