package estimator

import "math"

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleVariance computes the n-1 variance via sum/sum2.
func sampleVariance(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for _, x := range xs {
		sum += x
		sum2 += x * x
	}
	m := sum / n
	variance := (sum2 - n*m*m) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return variance
}

func sampleStddev(xs []float64) float64 {
	return math.Sqrt(sampleVariance(xs))
}

// rollingVariance returns the sample variance of each full window, so the
// result has len(xs)-window+1 entries, or nil when no full window fits.
func rollingVariance(xs []float64, window int) []float64 {
	if window < 2 || len(xs) < window {
		return nil
	}
	out := make([]float64, 0, len(xs)-window+1)
	for i := window; i <= len(xs); i++ {
		out = append(out, sampleVariance(xs[i-window:i]))
	}
	return out
}

// tailFloats returns at most the last n entries without copying.
func tailFloats(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
