package estimator

import "math"

// minCUSUMPoints is the shortest series worth testing; below it the CUSUM
// statistic is noise and the signal falls back to its floor.
const minCUSUMPoints = 20

// changePoint counts recent behavior breaks. Three daily series are tested
// with a mean-adjusted CUSUM (trade count, instrument count, buy ratio);
// break days falling inside the recent window are deduplicated across series
// and mapped to a score. Capped at 0.25.
func (c *Calculator) changePoint(days []dayStat) float64 {
	if len(days) < minCUSUMPoints {
		return signalFloor
	}

	tradeCount := make([]float64, len(days))
	instruments := make([]float64, len(days))
	buyRatio := make([]float64, len(days))
	for i := range days {
		tradeCount[i] = float64(days[i].trades)
		instruments[i] = float64(days[i].instruments)
		buyRatio[i] = days[i].buyRatio()
	}

	cutoff := len(days) - c.cfg.WindowDays
	if cutoff < 0 {
		cutoff = 0
	}

	breakDays := map[int]struct{}{}
	for _, series := range [][]float64{tradeCount, instruments, buyRatio} {
		for _, idx := range cusumBreaks(series) {
			if idx >= cutoff {
				breakDays[idx] = struct{}{}
			}
		}
	}

	switch n := len(breakDays); {
	case n >= 3:
		return maxChangePointScore
	case n == 2:
		return 0.18
	case n == 1:
		return 0.12
	default:
		return signalFloor
	}
}

// cusumBreaks returns indices where |CUSUM| of the mean-adjusted series has a
// strict local peak above the Brownian-bridge critical band 1.36*sigma*sqrt(n).
// The sqrt(n) scaling keeps the false-positive rate stable as the lookback
// grows; a constant series (sigma ~ 0) yields no breaks.
func cusumBreaks(xs []float64) []int {
	n := len(xs)
	if n < 3 {
		return nil
	}
	sd := sampleStddev(xs)
	if sd < 1e-12 {
		return nil
	}

	m := mean(xs)
	s := make([]float64, n)
	run := 0.0
	for i, x := range xs {
		run += x - m
		s[i] = math.Abs(run)
	}

	threshold := 1.36 * sd * math.Sqrt(float64(n))
	var breaks []int
	for i := 1; i < n-1; i++ {
		if s[i] > threshold && s[i] > s[i-1] && s[i] > s[i+1] {
			breaks = append(breaks, i)
		}
	}
	return breaks
}
