package estimator

import "math"

// patternInstability measures variance expansion: the rolling variance of
// daily volume and instrument count over the recent window relative to the
// whole lookback. A client whose recent variability far exceeds their norm
// scores high. Capped at 0.30.
func (c *Calculator) patternInstability(days []dayStat) float64 {
	volume := make([]float64, len(days))
	instruments := make([]float64, len(days))
	for i, d := range days {
		volume[i] = d.volume
		instruments[i] = float64(d.instruments)
	}

	ratios := make([]float64, 0, 2)
	for _, series := range [][]float64{volume, instruments} {
		rv := rollingVariance(series, c.cfg.WindowDays)
		if len(rv) == 0 {
			// Not enough days for a single rolling window.
			return signalFloor
		}
		recent := mean(tailFloats(rv, c.recentDays()))
		baseline := mean(rv)
		ratio := 0.0
		if baseline > 0 {
			ratio = recent / baseline
		}
		ratios = append(ratios, ratio)
	}

	return math.Min(maxPatternScore, mean(ratios)*0.10)
}
