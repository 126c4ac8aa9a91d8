package gateway

import (
	"strings"

	"github.com/ManuelReschke/GymDesk/app/models"
)

// MapProviderStatus translates the provider's payment_status vocabulary into
// an order status. Unknown values map to pending with ok=false so callers
// can log them without resolving the order.
func MapProviderStatus(raw string) (models.OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful", "succeeded", "completed", "paid":
		return models.OrderStatusSucceeded, true
	case "failed", "failure", "cancelled", "canceled", "rejected", "declined", "expired":
		return models.OrderStatusFailed, true
	case "pending", "processing", "initiated", "in_progress":
		return models.OrderStatusPending, true
	default:
		return models.OrderStatusPending, false
	}
}
