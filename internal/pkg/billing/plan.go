package billing

import (
	"math"

	"github.com/ManuelReschke/GymDesk/app/models"
)

// InsuranceDiscountPercent is taken off the package price for insured members.
const InsuranceDiscountPercent = 15

// Plan is one purchasable billing frequency with its package price in TZS.
type Plan struct {
	Frequency       models.BillingFrequency `json:"frequency"`
	Months          int                     `json:"months"`
	Amount          int64                   `json:"amount"`
	DiscountPercent int                     `json:"discount_percent"`
}

var plans = []Plan{
	{Frequency: models.BillingMonthly, Months: 1, Amount: 50000, DiscountPercent: 0},
	{Frequency: models.BillingQuarterly, Months: 3, Amount: 140000, DiscountPercent: 7},
	{Frequency: models.BillingSemiAnnually, Months: 6, Amount: 270000, DiscountPercent: 10},
	{Frequency: models.BillingAnnually, Months: 12, Amount: 500000, DiscountPercent: 15},
}

// Plans returns the billing frequencies offered at the front desk.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

func PlanFor(f models.BillingFrequency) (Plan, bool) {
	for _, p := range plans {
		if p.Frequency == f {
			return p, true
		}
	}
	return Plan{}, false
}

// Quote is a priced billing frequency for one member.
type Quote struct {
	Plan
	HasInsurance bool  `json:"has_insurance"`
	Total        int64 `json:"total"`
}

// QuoteFor prices f, applying the insurance discount and rounding to whole
// shillings. ok is false for an unknown frequency.
func QuoteFor(f models.BillingFrequency, hasInsurance bool) (Quote, bool) {
	p, ok := PlanFor(f)
	if !ok {
		return Quote{}, false
	}
	total := p.Amount
	if hasInsurance {
		total = int64(math.Round(float64(p.Amount) * float64(100-InsuranceDiscountPercent) / 100))
	}
	return Quote{Plan: p, HasInsurance: hasInsurance, Total: total}, true
}
