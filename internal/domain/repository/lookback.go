package repository

// Bounds for the trailing history window applied to client trades.
const (
	DefaultLookbackDays = 90
	MinLookbackDays     = 14
	MaxLookbackDays     = 365
)

// NormalizeLookback clamps days into the supported range, with 0 (or any
// non-positive value) meaning the default.
func NormalizeLookback(days int) int {
	if days <= 0 {
		return DefaultLookbackDays
	}
	if days < MinLookbackDays {
		return MinLookbackDays
	}
	if days > MaxLookbackDays {
		return MaxLookbackDays
	}
	return days
}
