package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeActivateSubscription JobType = "activate_subscription"
	JobTypePaymentExport        JobType = "payment_export"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ActivateSubscriptionJobPayload retries the subscription update of a paid order
type ActivateSubscriptionJobPayload struct {
	OrderID  string `json:"order_id"`
	MemberID string `json:"member_id"`
}

// ToMap converts the payload to a map for storage
func (p ActivateSubscriptionJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"order_id":  p.OrderID,
		"member_id": p.MemberID,
	}
}

// ActivateSubscriptionJobPayloadFromMap creates a payload from a map
func ActivateSubscriptionJobPayloadFromMap(data map[string]interface{}) (*ActivateSubscriptionJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ActivateSubscriptionJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// PaymentExportJobPayload renders a CSV export and uploads it to ObjectKey.
// From and To are RFC3339 timestamps or empty.
type PaymentExportJobPayload struct {
	ObjectKey string `json:"object_key"`
	MemberID  string `json:"member_id"`
	Status    string `json:"status"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// ToMap converts the payload to a map for storage
func (p PaymentExportJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"object_key": p.ObjectKey,
		"member_id":  p.MemberID,
		"status":     p.Status,
		"from":       p.From,
		"to":         p.To,
	}
}

// PaymentExportJobPayloadFromMap creates a payload from a map
func PaymentExportJobPayloadFromMap(data map[string]interface{}) (*PaymentExportJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload PaymentExportJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
