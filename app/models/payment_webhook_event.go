package models

import "time"

// PaymentWebhookEvent stores every gateway callback with deduplication
// metadata. EventKey is a hash of the raw payload since the gateway sends no
// delivery id.
type PaymentWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	EventKey        string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_key"`
	OrderRef        string     `gorm:"type:varchar(128);index" json:"order_ref"`
	PaymentStatus   string     `gorm:"type:varchar(32)" json:"payment_status"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentWebhookEvent) TableName() string {
	return "payment_webhook_events"
}

// Handled is true once the event was processed without error.
func (e *PaymentWebhookEvent) Handled() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
