package estimator

import "testing"

func daysWithSigns(signs []int) []dayStat {
	days := makeDays(len(signs))
	for i, s := range signs {
		days[i].netSign = s
	}
	return days
}

func TestMomentumShift_AlternatingDirectionScoresMax(t *testing.T) {
	c := testCalc()

	signs := make([]int, 14)
	for i := range signs {
		signs[i] = 1
		if i%2 == 1 {
			signs[i] = -1
		}
	}

	if got := c.momentumShift(daysWithSigns(signs)); got != maxMomentumScore {
		t.Fatalf("score = %v, want %v for daily alternation", got, maxMomentumScore)
	}
}

func TestMomentumShift_ConstantDirectionScoresFloor(t *testing.T) {
	c := testCalc()
	if got := c.momentumShift(makeDays(30)); got != signalFloor {
		t.Fatalf("score = %v, want floor for constant direction", got)
	}
}

func TestMomentumShift_BalancedDayMeansNoChange(t *testing.T) {
	c := testCalc()

	// +1, balanced, +1 is zero flips; the balanced day carries the prior
	// direction.
	signs := []int{1, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	if got := c.momentumShift(daysWithSigns(signs)); got != signalFloor {
		t.Fatalf("score = %v, want floor when balanced days carry direction", got)
	}

	// +1, balanced, -1 is one flip.
	signs = []int{1, 0, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	if got := c.momentumShift(daysWithSigns(signs)); got != signalFloor {
		t.Fatalf("score = %v, one flip in 14 days is still the floor bucket", got)
	}
}

func TestMomentumShift_MidRateBuckets(t *testing.T) {
	c := testCalc()

	// Four flips in 14 days: rate 0.29.
	signs := []int{1, 1, 1, -1, -1, -1, 1, 1, 1, -1, -1, -1, 1, 1}
	if got := c.momentumShift(daysWithSigns(signs)); got != 0.10 {
		t.Fatalf("score = %v, want 0.10 for rate ~0.29", got)
	}

	// Six flips in 14 days: rate 0.43.
	signs = []int{1, 1, -1, -1, 1, 1, -1, -1, 1, 1, -1, -1, 1, 1}
	if got := c.momentumShift(daysWithSigns(signs)); got != 0.15 {
		t.Fatalf("score = %v, want 0.15 for rate ~0.43", got)
	}
}

func TestMomentumShift_OnlyRecentWindowCounts(t *testing.T) {
	c := testCalc()

	// Churn in the old half, steady in the last 14 days.
	signs := make([]int, 30)
	for i := range signs {
		if i < 16 && i%2 == 1 {
			signs[i] = -1
		} else {
			signs[i] = 1
		}
	}

	if got := c.momentumShift(daysWithSigns(signs)); got != signalFloor {
		t.Fatalf("score = %v, want floor when churn is outside the window", got)
	}
}
