package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/GymDesk/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db, now: time.Now}
}

// Create inserts a pending order. A second insert with the same order id is
// reported as ErrOrderExists and leaves the stored row untouched.
func (r *orderRepository) Create(ctx context.Context, order *models.PaymentOrder) error {
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if err := order.Validate(); err != nil {
		return err
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(order)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrOrderExists, order.OrderID)
	}
	return nil
}

// GetByOrderID retrieves an order by the caller generated order id
func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	return &order, nil
}

// GetByProviderOrderID retrieves an order by the id assigned by the gateway
func (r *orderRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).Where("provider_order_id = ?", providerOrderID).First(&order).Error
	if err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	return &order, nil
}

// UpdateStatus moves an order to next using a compare-and-set on the stored
// status, so only one of several concurrent writers can leave pending.
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus, fields StatusFields) error {
	current, err := r.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, next)
	}

	now := r.now()
	updates := map[string]interface{}{
		"status":     next,
		"updated_at": now,
	}

	q := r.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, current.Status)

	if fields.ProviderOrderID != "" {
		switch current.ProviderRef() {
		case "":
			updates["provider_order_id"] = fields.ProviderOrderID
			q = q.Where("provider_order_id IS NULL")
		case fields.ProviderOrderID:
		default:
			return fmt.Errorf("%w: order %s has %s", ErrProviderOrderIDImmutable, orderID, current.ProviderRef())
		}
	}
	if fields.TransactionID != "" {
		updates["transaction_id"] = fields.TransactionID
	}
	if fields.PaymentURL != "" {
		updates["payment_url"] = fields.PaymentURL
	}
	if fields.FailureReason != "" {
		updates["failure_reason"] = fields.FailureReason
	}
	if next.IsTerminal() {
		updates["resolved_at"] = now
	}

	tx := q.Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return r.resolveNoop(ctx, orderID, current.Status, next, fields)
	}
	return nil
}

// resolveNoop tells a lost race apart from a pending refresh that matched the
// row but changed nothing, which MySQL reports as zero affected rows.
func (r *orderRepository) resolveNoop(ctx context.Context, orderID string, expected, next models.OrderStatus, fields StatusFields) error {
	stored, err := r.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if next == expected && stored.Status == expected {
		if fields.ProviderOrderID == "" || stored.ProviderRef() == fields.ProviderOrderID {
			return nil
		}
		return fmt.Errorf("%w: order %s has %s", ErrProviderOrderIDImmutable, orderID, stored.ProviderRef())
	}
	return fmt.Errorf("%w: order %s changed concurrently to %s", models.ErrInvalidTransition, orderID, stored.Status)
}

// AttachProviderOrderID stores the provider's id on an order that has none
// yet, whatever its status. It reports whether the id was written.
func (r *orderRepository) AttachProviderOrderID(ctx context.Context, orderID, providerOrderID string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("order_id = ? AND provider_order_id IS NULL", orderID).
		Updates(map[string]interface{}{
			"provider_order_id": providerOrderID,
			"updated_at":        r.now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// MarkActivated records that the member subscription was updated for a
// succeeded order. It is a no-op when the order was already activated.
func (r *orderRepository) MarkActivated(ctx context.Context, orderID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ? AND activated_at IS NULL", orderID, models.OrderStatusSucceeded).
		Updates(map[string]interface{}{
			"activated_at":     at,
			"activation_error": "",
			"updated_at":       r.now(),
		}).Error
}

// MarkActivationFailed stores the last activation error for operators.
func (r *orderRepository) MarkActivationFailed(ctx context.Context, orderID string, reason string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ? AND activated_at IS NULL", orderID, models.OrderStatusSucceeded).
		Updates(map[string]interface{}{
			"activation_error": reason,
			"updated_at":       r.now(),
		}).Error
}

// ListByMember returns a member's payment history, newest first
func (r *orderRepository) ListByMember(ctx context.Context, memberID string, offset, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error
	return orders, err
}

// ListStalePending returns pending orders created before createdBefore, oldest first
func (r *orderRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, createdBefore).
		Order("created_at ASC").Limit(limit).Find(&orders).Error
	return orders, err
}

// ListPendingActivation returns succeeded orders whose activation has not
// been applied yet.
func (r *orderRepository) ListPendingActivation(ctx context.Context, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND activated_at IS NULL", models.OrderStatusSucceeded).
		Order("resolved_at ASC").Limit(limit).Find(&orders).Error
	return orders, err
}

// List returns orders matching filter, newest first
func (r *orderRepository) List(ctx context.Context, filter ListFilter) ([]models.PaymentOrder, error) {
	q := r.db.WithContext(ctx).Model(&models.PaymentOrder{})
	if filter.MemberID != "" {
		q = q.Where("member_id = ?", filter.MemberID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", *filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var orders []models.PaymentOrder
	err := q.Order("created_at DESC").Find(&orders).Error
	return orders, err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
