package billing

// Tariff constants. Prices are derived on read, never stored on the bill.
const (
	// PricePerLiter is the flat consumption rate.
	PricePerLiter = 0.0055

	// FeesPercent is the service fee applied twice: once inside the liter
	// price and once on top of it, matching the published tariff.
	FeesPercent = 5.0
)

// PriceForLiters is the consumption charge including the in-price fee.
func PriceForLiters(amount float64) float64 {
	base := amount * PricePerLiter
	return base + (FeesPercent/100)*base
}

// TotalPrice adds the outer fee percentage on top of the liter price.
func TotalPrice(amount float64) float64 {
	p := PriceForLiters(amount)
	return p + p*(FeesPercent/100)
}
