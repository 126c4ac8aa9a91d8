package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/app/models"
)

// SubscriptionActivator writes the subscription purchased by a payment onto
// the member record.
type SubscriptionActivator struct {
	members MemberStore
}

func NewSubscriptionActivator(members MemberStore) *SubscriptionActivator {
	return &SubscriptionActivator{members: members}
}

// SubscriptionEnd returns effectiveDate plus the frequency's months.
func SubscriptionEnd(frequency models.BillingFrequency, effectiveDate time.Time) (time.Time, error) {
	months := frequency.Months()
	if months == 0 {
		return time.Time{}, fmt.Errorf("unknown billing frequency %q", frequency)
	}
	return effectiveDate.AddDate(0, months, 0), nil
}

// Activate sets the member's subscription window and marks the member
// active. The same inputs always produce the same member state.
func (a *SubscriptionActivator) Activate(ctx context.Context, memberID string, frequency models.BillingFrequency, amount int64, effectiveDate time.Time) error {
	end, err := SubscriptionEnd(frequency, effectiveDate)
	if err != nil {
		return err
	}
	if err := a.members.UpdateSubscription(ctx, memberID, models.SubscriptionUpdate{
		Type:      frequency,
		StartDate: effectiveDate,
		EndDate:   end,
		Amount:    amount,
	}); err != nil {
		return fmt.Errorf("activate subscription for member %s: %w", memberID, err)
	}
	log.Infof("[Billing] Member %s active until %s (%s)", memberID, end.Format("2006-01-02"), frequency)
	return nil
}
