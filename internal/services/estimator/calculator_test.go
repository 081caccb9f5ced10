package estimator

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"ClientPulse/internal/domain/models"
)

func uniformFixture(days int) []models.TradeRecord {
	trades := make([]models.TradeRecord, 0, days)
	for d := 0; d < days; d++ {
		trades = append(trades, trade(d, "AAPL", models.SideBuy, 100))
	}
	return trades
}

// volatileFixture is 60 quiet days followed by 30 days of escalating volume,
// fresh instruments and daily direction reversals. The growing alternating
// SPY position crosses zero every day, so flips keep landing in the recent
// window.
func volatileFixture() []models.TradeRecord {
	trades := uniformFixture(60)
	instruments := []string{"TSLA", "NVDA", "AMD", "MSFT"}
	for i := 0; i < 30; i++ {
		d := 60 + i
		side := models.SideBuy
		if i%2 == 1 {
			side = models.SideSell
		}
		trades = append(trades,
			trade(d, "SPY", side, float64(1000*(i+1))),
			trade(d, instruments[i%4], side, 50),
		)
	}
	return trades
}

func TestEstimateNoHistoryReturnsBaseline(t *testing.T) {
	c := testCalc()

	got := c.Estimate("c-1", nil, nil, nil, 0)
	if got.Probability != 0.30 {
		t.Fatalf("probability = %v, want exactly 0.30", got.Probability)
	}
	if got.Components != (models.ComponentScores{}) {
		t.Fatalf("components = %+v, want all zero", got.Components)
	}
	if got.Reasoning != "insufficient trading history" {
		t.Fatalf("reasoning = %q", got.Reasoning)
	}
	if got.Errors != nil {
		t.Fatalf("errors = %v, want none", got.Errors)
	}
}

func TestEstimateFewDistinctDaysReturnsBaseline(t *testing.T) {
	c := testCalc()

	// Six distinct days, many trades each: still insufficient.
	var trades []models.TradeRecord
	for d := 0; d < 6; d++ {
		for i := 0; i < 10; i++ {
			trades = append(trades, trade(d, "AAPL", models.SideBuy, 50))
		}
	}

	got := c.Estimate("c-1", trades, nil, nil, 0)
	if got.Probability != 0.30 || got.Reasoning != "insufficient trading history" {
		t.Fatalf("got %v %q, want baseline result", got.Probability, got.Reasoning)
	}
}

func TestEstimateUniformNinetyDays(t *testing.T) {
	c := testCalc()

	got := c.Estimate("c-1", uniformFixture(90), nil, nil, 0)

	want := models.ComponentScores{
		PatternInstability: 0,
		ChangePoint:        signalFloor,
		MomentumShift:      signalFloor,
		FlipAcceleration:   0.02,
		FeatureDrift:       0,
	}
	if got.Components != want {
		t.Fatalf("components = %+v, want %+v", got.Components, want)
	}
	if math.Abs(got.Probability-0.42) > 1e-12 {
		t.Fatalf("probability = %v, want 0.42 (baseline plus floors)", got.Probability)
	}
	if got.Probability >= 0.47 {
		t.Fatalf("probability = %v, must stay well below 0.47", got.Probability)
	}
	if !strings.Contains(got.Reasoning, "Stable behavior patterns") {
		t.Fatalf("reasoning = %q", got.Reasoning)
	}
}

func TestEstimateVolatileRecentMonth(t *testing.T) {
	c := testCalc()

	quiet := c.Estimate("c-1", uniformFixture(90), nil, nil, 0)
	wild := c.Estimate("c-1", volatileFixture(), nil, nil, 0)

	if wild.Probability <= quiet.Probability {
		t.Fatalf("volatile %v not above uniform %v", wild.Probability, quiet.Probability)
	}
	if wild.Probability <= 0.47 {
		t.Fatalf("probability = %v, want > 0.47 for a volatile recent month", wild.Probability)
	}
	if wild.Probability > probCeil {
		t.Fatalf("probability = %v exceeds ceiling", wild.Probability)
	}
	if wild.Components.MomentumShift != maxMomentumScore {
		t.Fatalf("momentum = %v, want max for daily reversals", wild.Components.MomentumShift)
	}
	if wild.Components.FlipAcceleration != maxFlipScore {
		t.Fatalf("flip acceleration = %v, want max for fresh flip activity", wild.Components.FlipAcceleration)
	}
}

func TestEstimateComponentsStayWithinCaps(t *testing.T) {
	c := testCalc()

	fixtures := [][]models.TradeRecord{
		uniformFixture(7),
		uniformFixture(30),
		uniformFixture(90),
		volatileFixture(),
	}
	features := models.BehaviorFeatures{
		models.FeatureMomentumBeta:   0.95,
		models.FeatureHoldingPeriod:  1,
		models.FeatureAggressiveness: 0.95,
	}

	for i, trades := range fixtures {
		got := c.Estimate("c-1", trades, nil, features, 0)
		comp := got.Components
		if comp.PatternInstability < 0 || comp.PatternInstability > maxPatternScore ||
			comp.ChangePoint < 0 || comp.ChangePoint > maxChangePointScore ||
			comp.MomentumShift < 0 || comp.MomentumShift > maxMomentumScore ||
			comp.FlipAcceleration < 0 || comp.FlipAcceleration > maxFlipScore ||
			comp.FeatureDrift < 0 || comp.FeatureDrift > maxDriftScore {
			t.Fatalf("fixture %d: components out of caps: %+v", i, comp)
		}
		if got.Probability < probFloor || got.Probability > probCeil {
			t.Fatalf("fixture %d: probability %v outside [%v, %v]", i, got.Probability, probFloor, probCeil)
		}
	}
}

func TestEstimateExtremeFeaturesHitDriftCap(t *testing.T) {
	c := testCalc()

	features := models.BehaviorFeatures{
		models.FeatureMomentumBeta:   0.95,
		models.FeatureHoldingPeriod:  1,
		models.FeatureAggressiveness: 0.95,
	}
	got := c.Estimate("c-1", uniformFixture(90), nil, features, 0)
	if got.Components.FeatureDrift != 0.10 {
		t.Fatalf("feature drift = %v, want exactly 0.10", got.Components.FeatureDrift)
	}
}

func TestEstimateDeterministic(t *testing.T) {
	c := testCalc()

	features := models.BehaviorFeatures{models.FeatureAggressiveness: 0.95}
	a := c.Estimate("c-1", volatileFixture(), nil, features, 0)
	b := c.Estimate("c-1", volatileFixture(), nil, features, 0)

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical input diverged:\n%+v\n%+v", a, b)
	}
}

func TestEstimateIgnoresPositions(t *testing.T) {
	c := testCalc()

	positions := []models.PositionSnapshot{
		{ClientID: "c-1", Instrument: "AAPL", NetPosition: -500},
	}
	with := c.Estimate("c-1", volatileFixture(), positions, nil, 0)
	without := c.Estimate("c-1", volatileFixture(), nil, nil, 0)

	if !reflect.DeepEqual(with, without) {
		t.Fatalf("positions affected the estimate")
	}
}

func TestEstimateMalformedRecordsDoNotFailBatch(t *testing.T) {
	c := testCalc()

	clean := uniformFixture(90)
	dirty := append([]models.TradeRecord{
		{Instrument: "AAPL", Side: models.SideBuy, Quantity: 10}, // zero timestamp
		trade(5, "AAPL", models.SideBuy, -1),
	}, clean...)

	a := c.Estimate("c-1", clean, nil, nil, 0)
	b := c.Estimate("c-1", dirty, nil, nil, 0)
	if a.Probability != b.Probability || a.Components != b.Components {
		t.Fatalf("malformed records changed the result: %v vs %v", a, b)
	}
}

func TestEstimateClampFloor(t *testing.T) {
	c := NewCalculator(Config{Baseline: 0.01}, nil)

	got := c.Estimate("c-1", uniformFixture(90), nil, nil, 0)
	if got.Probability != probFloor {
		t.Fatalf("probability = %v, want floor %v", got.Probability, probFloor)
	}
}

func TestEstimateClampCeiling(t *testing.T) {
	c := NewCalculator(Config{Baseline: 0.80}, nil)

	got := c.Estimate("c-1", uniformFixture(90), nil, nil, 0)
	if got.Probability != probCeil {
		t.Fatalf("probability = %v, want ceiling %v", got.Probability, probCeil)
	}
}

func TestEstimateZeroConfigUsesDefaults(t *testing.T) {
	c := NewCalculator(Config{}, nil)

	got := c.Estimate("c-1", uniformFixture(90), nil, nil, 0)
	if math.Abs(got.Probability-0.42) > 1e-12 {
		t.Fatalf("probability = %v, want 0.42 under default config", got.Probability)
	}
}

func TestRunSignalRecoversPanics(t *testing.T) {
	c := testCalc()
	res := &models.SwitchProbability{ClientID: "c-1"}

	got := c.runSignal(res, SignalChangePoint, func() float64 {
		panic("index out of range")
	})
	if got != signalFloor {
		t.Fatalf("fallback score = %v, want %v", got, signalFloor)
	}
	if res.Errors[SignalChangePoint] != "index out of range" {
		t.Fatalf("errors = %v, want recorded cause", res.Errors)
	}

	// A healthy signal afterwards is unaffected.
	if got := c.runSignal(res, SignalMomentumShift, func() float64 { return 0.10 }); got != 0.10 {
		t.Fatalf("healthy signal = %v, want 0.10", got)
	}
	if _, ok := res.Errors[SignalMomentumShift]; ok {
		t.Fatalf("healthy signal recorded an error")
	}
}

func TestBuildReasoningOrdersFactorsByWeight(t *testing.T) {
	comp := models.ComponentScores{
		PatternInstability: 0.12,
		ChangePoint:        0.18,
		MomentumShift:      0.15,
		FlipAcceleration:   0.10,
		FeatureDrift:       0.10,
	}
	s := buildReasoning(0.80, comp)

	if !strings.HasPrefix(s, "HIGH risk of strategy switch. Factors: ") {
		t.Fatalf("reasoning = %q", s)
	}
	order := []string{
		"Recent regime change detected (0.18)",
		"Moderate pattern variance (0.12)",
		"Frequent direction changes (0.15)",
		"Accelerating position flips (0.10)",
		"Significant feature drift (0.10)",
	}
	last := -1
	for _, phrase := range order {
		idx := strings.Index(s, phrase)
		if idx < 0 {
			t.Fatalf("reasoning %q missing %q", s, phrase)
		}
		if idx < last {
			t.Fatalf("factor %q out of order in %q", phrase, s)
		}
		last = idx
	}
}

func TestBuildReasoningAppliesNotableFloors(t *testing.T) {
	comp := models.ComponentScores{
		PatternInstability: 0.10, // at the floor, not above: excluded
		ChangePoint:        0.05,
		MomentumShift:      0.10,
		FlipAcceleration:   0.08,
		FeatureDrift:       0.08,
	}
	s := buildReasoning(0.35, comp)
	if !strings.HasPrefix(s, "LOW risk of strategy switch.") {
		t.Fatalf("reasoning = %q", s)
	}
	if !strings.Contains(s, "Stable behavior patterns") {
		t.Fatalf("reasoning = %q, want the stable fallback", s)
	}
}

func TestBuildReasoningRiskLevels(t *testing.T) {
	comp := models.ComponentScores{}
	cases := []struct {
		prob float64
		want string
	}{
		{0.35, "LOW"},
		{0.41, "MODERATE"},
		{0.61, "HIGH"},
	}
	for _, tc := range cases {
		s := buildReasoning(tc.prob, comp)
		if !strings.HasPrefix(s, tc.want) {
			t.Errorf("prob %v: reasoning %q, want %s prefix", tc.prob, s, tc.want)
		}
	}
}
