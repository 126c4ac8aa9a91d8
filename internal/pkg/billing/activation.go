package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/app/models"
)

// activationGrace keeps the straggler scan away from orders whose winner is
// still activating.
const activationGrace = time.Minute

// activateWinner runs once, for the caller that moved the order to
// succeeded. Failures never roll the order back; they are recorded and
// queued for retry.
func (s *Service) activateWinner(ctx context.Context, res *ReconcileResult) {
	order := res.Order
	err := s.applyActivation(ctx, order)
	if err == nil {
		res.Activated = true
		return
	}

	log.Errorf("[Billing] Activation for order %s failed, payment stays succeeded: %v", order.OrderID, err)
	res.ActivationError = err.Error()
	if merr := s.orders.MarkActivationFailed(ctx, order.OrderID, err.Error()); merr != nil {
		log.Errorf("[Billing] Could not record activation failure for %s: %v", order.OrderID, merr)
	}
	if s.queue == nil {
		return
	}
	if qerr := s.queue.EnqueueActivation(ctx, order.OrderID, order.MemberID); qerr != nil {
		log.Errorf("[Billing] Could not queue activation retry for %s, left for the sweep: %v", order.OrderID, qerr)
		return
	}
	res.ActivationQueued = true
}

func (s *Service) applyActivation(ctx context.Context, order *models.PaymentOrder) error {
	if s.activator == nil {
		return fmt.Errorf("no subscription activator configured")
	}
	if err := s.activator.Activate(ctx, order.MemberID, order.BillingFrequency, order.Amount, activationDate(order, s.now())); err != nil {
		return err
	}
	if err := s.orders.MarkActivated(ctx, order.OrderID, s.now()); err != nil {
		return fmt.Errorf("mark order %s activated: %w", order.OrderID, err)
	}
	return nil
}

// activationDate is the UTC calendar day the payment was confirmed, so a
// retry days later still grants the same window.
func activationDate(order *models.PaymentOrder, now time.Time) time.Time {
	at := now
	if order.ResolvedAt != nil {
		at = *order.ResolvedAt
	}
	at = at.UTC()
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
}

// RetryActivation re-applies the subscription for a succeeded order whose
// activation did not complete. Already activated orders are left alone.
func (s *Service) RetryActivation(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusSucceeded {
		return fmt.Errorf("%w: order %s is %s", ErrNotActivatable, orderID, order.Status)
	}
	if order.ActivatedAt != nil {
		return nil
	}

	if err := s.applyActivation(ctx, order); err != nil {
		if merr := s.orders.MarkActivationFailed(ctx, orderID, err.Error()); merr != nil {
			log.Errorf("[Billing] Could not record activation failure for %s: %v", orderID, merr)
		}
		return err
	}
	log.Infof("[Billing] Activation retry for order %s succeeded", orderID)
	return nil
}

// retryPendingActivations picks up succeeded orders whose activation never
// completed, for example when the retry queue was unavailable.
func (s *Service) retryPendingActivations(ctx context.Context) int {
	orders, err := s.orders.ListPendingActivation(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		log.Errorf("[Billing] Listing pending activations failed: %v", err)
		return 0
	}
	done := 0
	cutoff := s.now().Add(-activationGrace)
	for i := range orders {
		o := &orders[i]
		if o.ResolvedAt != nil && o.ResolvedAt.After(cutoff) {
			continue
		}
		if err := s.RetryActivation(ctx, o.OrderID); err != nil {
			log.Warnf("[Billing] Activation for order %s still failing: %v", o.OrderID, err)
			continue
		}
		done++
	}
	return done
}
