package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/app/repository"
	"github.com/ManuelReschke/GymDesk/internal/pkg/gateway"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookNotification is the gateway's payment callback. The gateway posts
// either JSON or form fields with the same names.
type WebhookNotification struct {
	OrderID       string `json:"order_id" form:"order_id"`
	PaymentStatus string `json:"payment_status" form:"payment_status"`
	PaymentMethod string `json:"payment_method" form:"payment_method"`
	TransactionID string `json:"transaction_id" form:"transaction_id"`
	Reference     string `json:"reference" form:"reference"`
}

// WebhookDelivery is one received callback with its raw body.
type WebhookDelivery struct {
	Payload      []byte
	Signature    string
	Notification WebhookNotification
}

// WebhookAck says what happened to a delivery. Every outcome except an
// invalid signature is acknowledged to the gateway.
type WebhookAck string

const (
	WebhookAckProcessed WebhookAck = "processed"
	WebhookAckDuplicate WebhookAck = "duplicate"
	WebhookAckIgnored   WebhookAck = "ignored"
	WebhookAckUnknown   WebhookAck = "unknown_order"
	WebhookAckFailed    WebhookAck = "failed"
)

type WebhookResult struct {
	Ack     WebhookAck
	Outcome Outcome
	OrderID string
}

func webhookEventKey(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}

// ProcessWebhook records the delivery and feeds its status into reconcile.
// Redelivered payloads that were already handled are acknowledged without
// touching the order.
func (s *Service) ProcessWebhook(ctx context.Context, d WebhookDelivery) (*WebhookResult, error) {
	n := d.Notification
	n.OrderID = strings.TrimSpace(n.OrderID)
	n.TransactionID = strings.TrimSpace(n.TransactionID)
	if n.TransactionID == "" {
		n.TransactionID = strings.TrimSpace(n.Reference)
	}

	signatureValid := true
	if s.cfg.WebhookSecret != "" {
		signatureValid = VerifyWebhookSignature(d.Payload, d.Signature, s.cfg.WebhookSecret)
	}

	var stored *models.PaymentWebhookEvent
	created := true
	if s.events != nil {
		var err error
		created, stored, err = s.events.CreateIfNotExists(ctx, &models.PaymentWebhookEvent{
			EventKey:       webhookEventKey(d.Payload),
			OrderRef:       n.OrderID,
			PaymentStatus:  n.PaymentStatus,
			PayloadJSON:    string(d.Payload),
			SignatureValid: signatureValid,
		})
		if err != nil {
			log.Errorf("[Webhook] Could not record delivery for order %q: %v", n.OrderID, err)
			stored, created = nil, true
		}
	}
	finish := func(processingErr error) {
		if stored == nil || s.events == nil {
			return
		}
		msg := ""
		if processingErr != nil {
			msg = processingErr.Error()
		}
		if err := s.events.MarkProcessed(ctx, stored.ID, msg); err != nil {
			log.Warnf("[Webhook] Could not mark event %d processed: %v", stored.ID, err)
		}
	}

	if !signatureValid {
		log.Warnf("[Webhook] Rejected delivery for order %q: invalid signature", n.OrderID)
		finish(ErrInvalidSignature)
		return nil, ErrInvalidSignature
	}
	if !created && stored != nil && stored.Handled() {
		log.Debugf("[Webhook] Duplicate delivery for order %q", n.OrderID)
		return &WebhookResult{Ack: WebhookAckDuplicate, OrderID: n.OrderID}, nil
	}
	if n.OrderID == "" {
		finish(errors.New("missing order_id"))
		return &WebhookResult{Ack: WebhookAckIgnored}, nil
	}

	order, err := s.findWebhookOrder(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Warnf("[Webhook] Notification for unknown order %q (status %q)", n.OrderID, n.PaymentStatus)
			finish(err)
			return &WebhookResult{Ack: WebhookAckUnknown, OrderID: n.OrderID}, nil
		}
		finish(err)
		return &WebhookResult{Ack: WebhookAckFailed, OrderID: n.OrderID}, err
	}

	status, recognized := gateway.MapProviderStatus(n.PaymentStatus)
	if !recognized {
		log.Warnf("[Webhook] Unrecognized payment_status %q for order %s, treating as pending", n.PaymentStatus, order.OrderID)
	}
	res, err := s.reconcile(ctx, order, StatusReport{
		Status:        status,
		TransactionID: n.TransactionID,
		Source:        SourceWebhook,
	})
	finish(err)
	if err != nil {
		log.Errorf("[Webhook] Reconcile of order %s failed: %v", order.OrderID, err)
		return &WebhookResult{Ack: WebhookAckFailed, OrderID: order.OrderID}, err
	}
	return &WebhookResult{Ack: WebhookAckProcessed, Outcome: res.Outcome, OrderID: order.OrderID}, nil
}

// findWebhookOrder resolves the gateway's order reference, which is either
// the provider's id or our own order id.
func (s *Service) findWebhookOrder(ctx context.Context, ref string) (*models.PaymentOrder, error) {
	order, err := s.orders.GetByProviderOrderID(ctx, ref)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, err
	}
	return s.orders.GetByOrderID(ctx, ref)
}
