package controllers

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GymDesk/internal/pkg/billing"
)

func TestHandlePaymentWebhook(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		result      *billing.WebhookResult
		err         error
		status      int
	}{
		{
			name:        "json",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"order_id":"zp_123","payment_status":"COMPLETED","transaction_id":"tx_1"}`,
			result:      &billing.WebhookResult{Ack: billing.WebhookAckProcessed, Outcome: billing.OutcomeApplied},
			status:      fiber.StatusOK,
		},
		{
			name:        "form",
			contentType: fiber.MIMEApplicationForm,
			body:        "order_id=zp_123&payment_status=COMPLETED&transaction_id=tx_1",
			result:      &billing.WebhookResult{Ack: billing.WebhookAckProcessed},
			status:      fiber.StatusOK,
		},
		{
			name:   "json without content type",
			body:   `{"order_id":"zp_123","payment_status":"COMPLETED","transaction_id":"tx_1"}`,
			result: &billing.WebhookResult{Ack: billing.WebhookAckDuplicate},
			status: fiber.StatusOK,
		},
		{
			name:        "processing failure is still acknowledged",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"order_id":"zp_123","payment_status":"COMPLETED","transaction_id":"tx_1"}`,
			result:      &billing.WebhookResult{Ack: billing.WebhookAckFailed},
			err:         errors.New("db down"),
			status:      fiber.StatusOK,
		},
		{
			name:        "invalid signature",
			contentType: fiber.MIMEApplicationJSON,
			body:        `{"order_id":"zp_123","payment_status":"COMPLETED","transaction_id":"tx_1"}`,
			err:         billing.ErrInvalidSignature,
			status:      fiber.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubPayments{webhookResult: tt.result, webhookErr: tt.err}
			app := newTestApp(NewPaymentController(svc, nil, nil, PaymentControllerConfig{}))

			req := httptest.NewRequest(fiber.MethodPost, "/webhooks/payment", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set(fiber.HeaderContentType, tt.contentType)
			}
			req.Header.Set(SignatureHeader, "abc")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			require.Len(t, svc.deliveries, 1)
			d := svc.deliveries[0]
			assert.Equal(t, tt.body, string(d.Payload))
			assert.Equal(t, "abc", d.Signature)
			assert.Equal(t, "zp_123", d.Notification.OrderID)
			assert.Equal(t, "COMPLETED", d.Notification.PaymentStatus)
			assert.Equal(t, "tx_1", d.Notification.TransactionID)
		})
	}
}

func TestHandlePaymentWebhook_UnreadableBody(t *testing.T) {
	svc := &stubPayments{webhookResult: &billing.WebhookResult{Ack: billing.WebhookAckIgnored}}
	app := newTestApp(NewPaymentController(svc, nil, nil, PaymentControllerConfig{}))

	resp, out := doJSON(t, app, fiber.MethodPost, "/webhooks/payment", `{not json`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Webhook processed successfully", out["message"])
	require.Len(t, svc.deliveries, 1)
	assert.Equal(t, "", svc.deliveries[0].Notification.OrderID)
}
