package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/internal/pkg/gateway"
)

func TestSweepStaleOrders(t *testing.T) {
	tests := []struct {
		name       string
		providerID string
		result     *gateway.StatusResult
		err        error
		want       models.OrderStatus
		resolved   int
	}{
		{
			name: "never reached provider",
			want: models.OrderStatusFailed, resolved: 1,
		},
		{
			name: "provider confirms payment", providerID: "zp_1",
			result: &gateway.StatusResult{Status: models.OrderStatusSucceeded, TransactionID: "tx_1"},
			want:   models.OrderStatusSucceeded, resolved: 1,
		},
		{
			name: "provider still pending", providerID: "zp_1",
			result: &gateway.StatusResult{Status: models.OrderStatusPending},
			want:   models.OrderStatusFailed, resolved: 1,
		},
		{
			name: "provider success without transaction", providerID: "zp_1",
			result: &gateway.StatusResult{Status: models.OrderStatusSucceeded},
			want:   models.OrderStatusFailed, resolved: 1,
		},
		{
			name: "provider does not know the order", providerID: "zp_1",
			err:  &gateway.GatewayError{Op: "check_status", StatusCode: 404, Message: "order not found", Rejected: true, NotFound: true},
			want: models.OrderStatusFailed, resolved: 1,
		},
		{
			name: "provider throttles the check", providerID: "zp_1",
			err:  &gateway.GatewayError{Op: "check_status", StatusCode: 429, Message: "too many requests"},
			want: models.OrderStatusPending, resolved: 0,
		},
		{
			name: "provider refuses credentials", providerID: "zp_1",
			err:  &gateway.GatewayError{Op: "check_status", StatusCode: 401, Message: "invalid api key", Rejected: true},
			want: models.OrderStatusPending, resolved: 0,
		},
		{
			name: "provider unreachable", providerID: "zp_1",
			err:  &gateway.GatewayError{Op: "check_status", Err: errors.New("dial tcp: timeout")},
			want: models.OrderStatusPending, resolved: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{MaxPending: 30 * time.Minute})
			f.pendingOrder("order_1", tt.providerID)
			f.gw.statusResult = tt.result
			f.gw.statusErr = tt.err
			f.advance(45 * time.Minute)

			n, err := f.svc.SweepStaleOrders(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.resolved, n)

			order, _ := f.orders.GetByOrderID(context.Background(), "order_1")
			assert.Equal(t, tt.want, order.Status)
		})
	}
}

func TestSweepStaleOrders_LeavesFreshOrders(t *testing.T) {
	f := newFixture(Config{MaxPending: 30 * time.Minute})
	f.pendingOrder("old", "")
	f.advance(20 * time.Minute)
	f.pendingOrder("fresh", "")
	f.advance(15 * time.Minute)

	n, err := f.svc.SweepStaleOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, _ := f.orders.GetByOrderID(context.Background(), "old")
	fresh, _ := f.orders.GetByOrderID(context.Background(), "fresh")
	assert.Equal(t, models.OrderStatusFailed, old.Status)
	assert.Equal(t, models.OrderStatusPending, fresh.Status)
	assert.Equal(t, 0, f.gw.statusCalls)
}

func TestSweepStaleOrders_CompletesStrandedActivations(t *testing.T) {
	f := newFixture(Config{})
	f.activator.failures = 1
	f.queue.err = errors.New("redis down")
	f.pendingOrder("order_1", "zp_123")

	res, err := f.svc.Reconcile(context.Background(), "order_1", StatusReport{
		Status: models.OrderStatusSucceeded, TransactionID: "tx_1", Source: SourceWebhook,
	})
	require.NoError(t, err)
	assert.False(t, res.ActivationQueued)

	// Within the grace period the sweep leaves the order alone.
	_, err = f.svc.SweepStaleOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.activator.count())

	f.advance(5 * time.Minute)
	_, err = f.svc.SweepStaleOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.activator.count())

	order, _ := f.orders.GetByOrderID(context.Background(), "order_1")
	assert.NotNil(t, order.ActivatedAt)
}

func TestSweepStaleOrders_ThrottledOrderStillAcceptsLateSuccess(t *testing.T) {
	f := newFixture(Config{MaxPending: 30 * time.Minute})
	f.pendingOrder("order_1", "zp_1")
	f.gw.statusErr = &gateway.GatewayError{Op: "check_status", StatusCode: 429}
	f.advance(45 * time.Minute)

	n, err := f.svc.SweepStaleOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	res, err := f.svc.Reconcile(context.Background(), "order_1", StatusReport{
		Status: models.OrderStatusSucceeded, TransactionID: "tx_1", Source: SourceWebhook,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, f.activator.count())
}
