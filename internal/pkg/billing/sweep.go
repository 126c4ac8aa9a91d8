package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/internal/pkg/gateway"
)

// SweepStaleOrders resolves orders that stayed pending longer than
// MaxPending. Orders known to the provider are checked one last time; a
// provider that cannot be reached leaves the order for the next sweep.
// It returns the number of orders moved to a terminal state.
func (s *Service) SweepStaleOrders(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.MaxPending)
	stale, err := s.orders.ListStalePending(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	resolved := 0
	for i := range stale {
		if ctx.Err() != nil {
			break
		}
		order := &stale[i]
		report, ok := s.finalReport(ctx, order)
		if !ok {
			continue
		}
		res, err := s.reconcile(ctx, order, report)
		if err != nil {
			log.Errorf("[Billing] Sweep could not resolve order %s: %v", order.OrderID, err)
			continue
		}
		if res.Outcome == OutcomeApplied {
			resolved++
		}
	}

	if activated := s.retryPendingActivations(ctx); activated > 0 {
		log.Infof("[Billing] Sweep completed %d pending activations", activated)
	}
	if resolved > 0 {
		log.Infof("[Billing] Sweep resolved %d of %d stale orders", resolved, len(stale))
	}
	return resolved, nil
}

func (s *Service) finalReport(ctx context.Context, order *models.PaymentOrder) (StatusReport, bool) {
	expired := StatusReport{
		Status: models.OrderStatusFailed,
		Reason: fmt.Sprintf("payment not confirmed within %s", s.cfg.MaxPending),
		Source: SourceSweep,
	}

	ref := order.ProviderRef()
	if ref == "" {
		expired.Reason = "order never reached the payment provider"
		return expired, true
	}

	st, err := s.gateway.CheckStatus(ctx, ref)
	if err != nil {
		var ge *gateway.GatewayError
		if errors.As(err, &ge) && ge.NotFound {
			expired.Reason = "provider does not know the order: " + ge.Message
			return expired, true
		}
		log.Warnf("[Billing] Sweep status check for order %s failed, retrying next run: %v", order.OrderID, err)
		return StatusReport{}, false
	}
	if st.Status == models.OrderStatusSucceeded && st.TransactionID != "" {
		return StatusReport{Status: models.OrderStatusSucceeded, TransactionID: st.TransactionID, Source: SourceSweep}, true
	}
	if st.Status == models.OrderStatusFailed {
		expired.Reason = "provider reported failure"
	}
	return expired, true
}
