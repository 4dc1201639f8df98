package billing

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPriceForLiters(t *testing.T) {
	// 1000 liters: 5.50 base + 5% = 5.775.
	if got := PriceForLiters(1000); !almostEqual(got, 5.775) {
		t.Errorf("PriceForLiters(1000) = %v, want 5.775", got)
	}
	if got := PriceForLiters(0); got != 0 {
		t.Errorf("PriceForLiters(0) = %v, want 0", got)
	}
}

func TestTotalPriceAddsOuterFee(t *testing.T) {
	// 5.775 + 5% = 6.06375.
	if got := TotalPrice(1000); !almostEqual(got, 6.06375) {
		t.Errorf("TotalPrice(1000) = %v, want 6.06375", got)
	}
}
