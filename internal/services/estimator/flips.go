package estimator

// accelCap stands in for "infinitely faster" when a client with no flip
// history starts flipping; any value above the top bucket works.
const accelCap = 10.0

// flipAcceleration compares the recent position-flip rate against the
// client's own baseline rate. Flips per day come from the loader, zeros
// included, so quiet days pull the rates down. Capped at 0.15.
func (c *Calculator) flipAcceleration(days []dayStat) float64 {
	flips := make([]float64, len(days))
	for i, d := range days {
		flips[i] = float64(d.flips)
	}

	split := len(flips) - c.recentDays()
	if split < 0 {
		split = 0
	}
	recentRate := mean(flips[split:])
	baselineRate := mean(flips[:split])

	var accel float64
	switch {
	case baselineRate == 0 && recentRate > 0:
		accel = accelCap
	case baselineRate == 0:
		accel = 1.0
	default:
		accel = recentRate / baselineRate
	}

	switch {
	case accel > 1.5:
		return maxFlipScore
	case accel > 1.2:
		return 0.10
	case accel > 1.0:
		return 0.05
	default:
		return 0.02
	}
}
