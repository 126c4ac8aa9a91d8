package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MEMBER_STATUS_ACTIVE   = "active"
	MEMBER_STATUS_INACTIVE = "inactive"
	MEMBER_STATUS_PENDING  = "pending"

	SUBSCRIPTION_STATUS_ACTIVE  = "active"
	SUBSCRIPTION_STATUS_EXPIRED = "expired"
)

const (
	MembershipSingle    = "single"
	MembershipCouple    = "couple"
	MembershipCorporate = "corporate"
)

// Member is owned by the member management screens. The payment workflow
// only reads it and writes the subscription columns.
type Member struct {
	ID                    string           `gorm:"type:varchar(64);primaryKey" json:"id" validate:"required,max=64"`
	FullName              string           `gorm:"type:varchar(150)" json:"full_name" validate:"required,min=2,max=150"`
	Email                 string           `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	PhoneNumber           string           `gorm:"type:varchar(20)" json:"phone_number" validate:"omitempty,max=20"`
	MembershipType        string           `gorm:"type:varchar(20);default:'single'" json:"membership_type" validate:"omitempty,oneof=single couple corporate"`
	HasInsurance          bool             `gorm:"default:false" json:"has_insurance"`
	Status                string           `gorm:"type:varchar(20);default:'pending';index" json:"status" validate:"omitempty,oneof=active inactive pending"`
	SubscriptionType      BillingFrequency `gorm:"type:varchar(20)" json:"subscription_type,omitempty"`
	SubscriptionStartDate *time.Time       `gorm:"type:date;default:null" json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time       `gorm:"type:date;default:null" json:"subscription_end_date,omitempty"`
	SubscriptionStatus    string           `gorm:"type:varchar(20)" json:"subscription_status,omitempty"`
	SubscriptionAmount    int64            `gorm:"default:0" json:"subscription_amount"`
	CreatedAt             time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}

func (m *Member) Validate() error {
	v := validator.New()
	return v.Struct(m)
}

// SubscriptionUpdate is the set of member columns written on activation.
type SubscriptionUpdate struct {
	Type      BillingFrequency
	StartDate time.Time
	EndDate   time.Time
	Amount    int64
}
