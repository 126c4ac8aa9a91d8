package billing

import (
	"testing"

	"github.com/ManuelReschke/GymDesk/app/models"
)

func TestQuoteFor(t *testing.T) {
	tests := []struct {
		freq      models.BillingFrequency
		insurance bool
		want      int64
	}{
		{models.BillingMonthly, false, 50000},
		{models.BillingMonthly, true, 42500},
		{models.BillingQuarterly, false, 140000},
		{models.BillingQuarterly, true, 119000},
		{models.BillingSemiAnnually, false, 270000},
		{models.BillingSemiAnnually, true, 229500},
		{models.BillingAnnually, false, 500000},
		{models.BillingAnnually, true, 425000},
	}

	for _, tt := range tests {
		q, ok := QuoteFor(tt.freq, tt.insurance)
		if !ok {
			t.Fatalf("QuoteFor(%q) not found", tt.freq)
		}
		if q.Total != tt.want {
			t.Fatalf("QuoteFor(%q, %v) = %d, want %d", tt.freq, tt.insurance, q.Total, tt.want)
		}
		if q.Months != tt.freq.Months() {
			t.Fatalf("plan months %d disagree with frequency months %d", q.Months, tt.freq.Months())
		}
	}
}

func TestQuoteFor_UnknownFrequency(t *testing.T) {
	if _, ok := QuoteFor("weekly", false); ok {
		t.Fatalf("expected weekly to be unknown")
	}
}

func TestPlans_ReturnsCopy(t *testing.T) {
	p := Plans()
	p[0].Amount = 1
	if fresh := Plans(); fresh[0].Amount != 50000 {
		t.Fatalf("Plans() exposed internal slice")
	}
}
