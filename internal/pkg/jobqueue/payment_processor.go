package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/app/repository"
)

// PaymentReconciler is the part of the billing service the background jobs use
type PaymentReconciler interface {
	RetryActivation(ctx context.Context, orderID string) error
	SweepStaleOrders(ctx context.Context) (int, error)
}

// PaymentExporter renders an order export and stores it under objectKey
type PaymentExporter interface {
	UploadExport(ctx context.Context, filter repository.ListFilter, objectKey string) error
}

var errNotBound = errors.New("job queue has no handler bound for this job type")

// EnqueueActivation schedules a retry of a failed subscription activation
func (q *Queue) EnqueueActivation(ctx context.Context, orderID, memberID string) error {
	_, err := q.EnqueueJob(ctx, JobTypeActivateSubscription, ActivateSubscriptionJobPayload{
		OrderID:  orderID,
		MemberID: memberID,
	}.ToMap())
	return err
}

// EnqueueExport schedules an S3 upload of the orders matching filter
func (q *Queue) EnqueueExport(ctx context.Context, filter repository.ListFilter, objectKey string) (*Job, error) {
	payload := PaymentExportJobPayload{
		ObjectKey: objectKey,
		MemberID:  filter.MemberID,
		Status:    string(filter.Status),
	}
	if filter.From != nil {
		payload.From = filter.From.UTC().Format(time.RFC3339)
	}
	if filter.To != nil {
		payload.To = filter.To.UTC().Format(time.RFC3339)
	}
	return q.EnqueueJob(ctx, JobTypePaymentExport, payload.ToMap())
}

func (q *Queue) runJob(ctx context.Context, job *Job) error {
	switch job.Type {
	case JobTypeActivateSubscription:
		return q.processActivationJob(ctx, job)
	case JobTypePaymentExport:
		return q.processExportJob(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (q *Queue) processActivationJob(ctx context.Context, job *Job) error {
	payload, err := ActivateSubscriptionJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid activation payload: %w", err)
	}
	if payload.OrderID == "" {
		return errors.New("activation payload without order_id")
	}

	q.mu.Lock()
	reconciler := q.reconciler
	q.mu.Unlock()
	if reconciler == nil {
		return errNotBound
	}

	if err := reconciler.RetryActivation(ctx, payload.OrderID); err != nil {
		return fmt.Errorf("activate order %s for member %s: %w", payload.OrderID, payload.MemberID, err)
	}
	log.Infof("[JobQueue] Subscription for order %s activated", payload.OrderID)
	return nil
}

func (q *Queue) processExportJob(ctx context.Context, job *Job) error {
	payload, err := PaymentExportJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid export payload: %w", err)
	}
	filter, err := payload.Filter()
	if err != nil {
		return err
	}

	q.mu.Lock()
	exporter := q.exporter
	q.mu.Unlock()
	if exporter == nil {
		return errNotBound
	}
	return exporter.UploadExport(ctx, filter, payload.ObjectKey)
}

// Filter rebuilds the listing filter stored in the payload
func (p PaymentExportJobPayload) Filter() (repository.ListFilter, error) {
	filter := repository.ListFilter{
		MemberID: p.MemberID,
		Status:   models.OrderStatus(p.Status),
	}
	if p.From != "" {
		t, err := time.Parse(time.RFC3339, p.From)
		if err != nil {
			return filter, fmt.Errorf("invalid export from: %w", err)
		}
		filter.From = &t
	}
	if p.To != "" {
		t, err := time.Parse(time.RFC3339, p.To)
		if err != nil {
			return filter, fmt.Errorf("invalid export to: %w", err)
		}
		filter.To = &t
	}
	return filter, nil
}
