package estimator

// momentumShift scores direction churn: sign flips of the daily net
// direction across the recent window, carrying the last non-zero sign so a
// balanced day means "no change from the prior day". Capped at 0.20.
func (c *Calculator) momentumShift(days []dayStat) float64 {
	window := days
	if len(window) > c.cfg.WindowDays {
		window = window[len(window)-c.cfg.WindowDays:]
	}

	flips := 0
	last := 0
	for _, d := range window {
		if d.netSign == 0 {
			continue
		}
		if last != 0 && d.netSign != last {
			flips++
		}
		last = d.netSign
	}

	rate := float64(flips) / float64(c.cfg.WindowDays)
	switch {
	case rate > 0.6:
		return maxMomentumScore
	case rate > 0.4:
		return 0.15
	case rate > 0.2:
		return 0.10
	default:
		return signalFloor
	}
}
