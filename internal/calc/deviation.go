package calc

import "github.com/shopspring/decimal"

// DeviationPct computes the percentage deviation of a day's volume from the
// trailing average of actual volumes. A zero or missing average yields zero so
// new pumps never flag on their first days.
func DeviationPct(volume, average decimal.Decimal, sampleCount int) float64 {
	if sampleCount == 0 || average.IsZero() {
		return 0
	}
	pct, _ := volume.Sub(average).Div(average).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
