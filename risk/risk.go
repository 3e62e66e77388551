package risk

import "math"

// TargetQty converts a target allocation into a quantity:
// floor(equity*weight/price) rounded down to precision decimal places.
// Equities trade in whole shares, so precision is usually 0.
func TargetQty(equity, weight, price float64, precision int) float64 {
	if price <= 0 || equity <= 0 || weight <= 0 {
		return 0
	}
	qty := equity * weight / price
	if precision < 0 {
		precision = 0
	}
	scale := math.Pow(10, float64(precision))
	return math.Floor(qty*scale) / scale
}
