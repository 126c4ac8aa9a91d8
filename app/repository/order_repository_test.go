package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/GymDesk/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.PaymentOrder{}, &models.Member{}, &models.PaymentWebhookEvent{}))
	return db
}

func newPendingOrder(orderID string) *models.PaymentOrder {
	return &models.PaymentOrder{
		OrderID:          orderID,
		MemberID:         "member-1",
		Amount:           50000,
		Currency:         "TZS",
		PaymentMethod:    models.PaymentMethodMpesa,
		BillingFrequency: models.BillingMonthly,
	}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPendingOrder("order_1")))

	got, err := repo.GetByOrderID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Nil(t, got.ProviderOrderID)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repo.GetByOrderID(ctx, "order_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderRepository_CreateDuplicate(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPendingOrder("order_dup")))

	second := newPendingOrder("order_dup")
	second.Amount = 99
	err := repo.Create(ctx, second)
	assert.ErrorIs(t, err, ErrOrderExists)

	stored, err := repo.GetByOrderID(ctx, "order_dup")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), stored.Amount)
}

func TestOrderRepository_CreateRejectsInvalid(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	o := newPendingOrder("order_bad")
	o.Amount = 0
	assert.Error(t, repo.Create(context.Background(), o))
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	tests := []struct {
		name    string
		start   models.OrderStatus
		next    models.OrderStatus
		wantErr error
	}{
		{"pending to succeeded", models.OrderStatusPending, models.OrderStatusSucceeded, nil},
		{"pending to failed", models.OrderStatusPending, models.OrderStatusFailed, nil},
		{"pending refresh", models.OrderStatusPending, models.OrderStatusPending, nil},
		{"succeeded is terminal", models.OrderStatusSucceeded, models.OrderStatusFailed, models.ErrInvalidTransition},
		{"failed is terminal", models.OrderStatusFailed, models.OrderStatusSucceeded, models.ErrInvalidTransition},
		{"failed cannot reopen", models.OrderStatusFailed, models.OrderStatusPending, models.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewOrderRepository(newTestDB(t))
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, newPendingOrder("order_x")))
			if tt.start != models.OrderStatusPending {
				require.NoError(t, repo.UpdateStatus(ctx, "order_x", tt.start, StatusFields{TransactionID: "tx-0"}))
			}

			err := repo.UpdateStatus(ctx, "order_x", tt.next, StatusFields{TransactionID: "tx-1"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				stored, gerr := repo.GetByOrderID(ctx, "order_x")
				require.NoError(t, gerr)
				assert.Equal(t, tt.start, stored.Status)
				return
			}
			require.NoError(t, err)
			stored, err := repo.GetByOrderID(ctx, "order_x")
			require.NoError(t, err)
			assert.Equal(t, tt.next, stored.Status)
			if tt.next.IsTerminal() {
				assert.NotNil(t, stored.ResolvedAt)
			}
		})
	}
}

func TestOrderRepository_UpdateStatusUnknownOrder(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	err := repo.UpdateStatus(context.Background(), "nope", models.OrderStatusFailed, StatusFields{})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderRepository_ProviderOrderIDIsWriteOnce(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPendingOrder("order_p")))

	require.NoError(t, repo.UpdateStatus(ctx, "order_p", models.OrderStatusPending, StatusFields{
		ProviderOrderID: "zp-1",
		PaymentURL:      "https://pay.example/zp-1",
	}))
	// same value again is a refresh
	require.NoError(t, repo.UpdateStatus(ctx, "order_p", models.OrderStatusPending, StatusFields{ProviderOrderID: "zp-1"}))

	err := repo.UpdateStatus(ctx, "order_p", models.OrderStatusPending, StatusFields{ProviderOrderID: "zp-2"})
	assert.ErrorIs(t, err, ErrProviderOrderIDImmutable)

	byProvider, err := repo.GetByProviderOrderID(ctx, "zp-1")
	require.NoError(t, err)
	assert.Equal(t, "order_p", byProvider.OrderID)
	assert.Equal(t, "https://pay.example/zp-1", byProvider.PaymentURL)

	_, err = repo.GetByProviderOrderID(ctx, "zp-2")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderRepository_AttachProviderOrderID(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPendingOrder("order_a")))
	require.NoError(t, repo.UpdateStatus(ctx, "order_a", models.OrderStatusSucceeded, StatusFields{TransactionID: "tx-1"}))

	attached, err := repo.AttachProviderOrderID(ctx, "order_a", "zp-a")
	require.NoError(t, err)
	assert.True(t, attached)

	attached, err = repo.AttachProviderOrderID(ctx, "order_a", "zp-b")
	require.NoError(t, err)
	assert.False(t, attached)

	stored, err := repo.GetByOrderID(ctx, "order_a")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusSucceeded, stored.Status)
	assert.Equal(t, "zp-a", stored.ProviderRef())
	assert.Equal(t, "tx-1", stored.TransactionRef())
}

func TestOrderRepository_ConcurrentTerminalTransitions(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPendingOrder("order_race")))

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		next := models.OrderStatusSucceeded
		if i%2 == 1 {
			next = models.OrderStatusFailed
		}
		wg.Add(1)
		go func(next models.OrderStatus) {
			defer wg.Done()
			results <- repo.UpdateStatus(ctx, "order_race", next, StatusFields{TransactionID: "tx"})
		}(next)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, models.ErrInvalidTransition), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestOrderRepository_Activation(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPendingOrder("order_a")))
	require.NoError(t, repo.UpdateStatus(ctx, "order_a", models.OrderStatusSucceeded, StatusFields{TransactionID: "tx"}))

	pending, err := repo.ListPendingActivation(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.MarkActivationFailed(ctx, "order_a", "member store down"))
	stored, err := repo.GetByOrderID(ctx, "order_a")
	require.NoError(t, err)
	assert.Equal(t, "member store down", stored.ActivationError)
	assert.True(t, stored.NeedsActivation())

	at := time.Now()
	require.NoError(t, repo.MarkActivated(ctx, "order_a", at))
	stored, err = repo.GetByOrderID(ctx, "order_a")
	require.NoError(t, err)
	assert.NotNil(t, stored.ActivatedAt)
	assert.Empty(t, stored.ActivationError)

	pending, err = repo.ListPendingActivation(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOrderRepository_ListStalePending(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPendingOrder("order_old")))
	require.NoError(t, repo.Create(ctx, newPendingOrder("order_new")))
	require.NoError(t, repo.Create(ctx, newPendingOrder("order_done")))
	require.NoError(t, repo.UpdateStatus(ctx, "order_done", models.OrderStatusFailed, StatusFields{}))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&models.PaymentOrder{}).
		Where("order_id IN ?", []string{"order_old", "order_done"}).
		UpdateColumn("created_at", old).Error)

	stale, err := repo.ListStalePending(ctx, time.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "order_old", stale[0].OrderID)
}

func TestOrderRepository_ListByMemberAndFilter(t *testing.T) {
	repo := NewOrderRepository(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newPendingOrder(fmt.Sprintf("order_m1_%d", i))))
	}
	other := newPendingOrder("order_m2")
	other.MemberID = "member-2"
	require.NoError(t, repo.Create(ctx, other))
	require.NoError(t, repo.UpdateStatus(ctx, "order_m2", models.OrderStatusSucceeded, StatusFields{TransactionID: "tx"}))

	history, err := repo.ListByMember(ctx, "member-1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	page, err := repo.ListByMember(ctx, "member-1", 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	succeeded, err := repo.List(ctx, ListFilter{Status: models.OrderStatusSucceeded})
	require.NoError(t, err)
	require.Len(t, succeeded, 1)
	assert.Equal(t, "order_m2", succeeded[0].OrderID)

	limited, err := repo.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
