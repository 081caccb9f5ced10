package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ClientPulse/internal/domain/models"
	pkgcache "ClientPulse/pkg/cache"
)

type fakeHistory struct {
	trades    []models.TradeRecord
	positions []models.PositionSnapshot
	features  models.BehaviorFeatures

	tradesErr    error
	positionsErr error
	featuresErr  error

	tradeCalls int
}

func (f *fakeHistory) GetTrades(_ context.Context, _ string, _, _ time.Time) ([]models.TradeRecord, error) {
	f.tradeCalls++
	if f.tradesErr != nil {
		return nil, f.tradesErr
	}
	return f.trades, nil
}

func (f *fakeHistory) GetPositions(_ context.Context, _ string) ([]models.PositionSnapshot, error) {
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return f.positions, nil
}

func (f *fakeHistory) GetFeatures(_ context.Context, _ string) (models.BehaviorFeatures, error) {
	if f.featuresErr != nil {
		return nil, f.featuresErr
	}
	return f.features, nil
}

type fakeEstimator struct {
	result *models.SwitchProbability

	calls        int
	gotTrades    []models.TradeRecord
	gotPositions []models.PositionSnapshot
	gotFeatures  models.BehaviorFeatures
	gotLookback  int
}

func (f *fakeEstimator) Estimate(clientID string, trades []models.TradeRecord, positions []models.PositionSnapshot, features models.BehaviorFeatures, lookbackDays int) *models.SwitchProbability {
	f.calls++
	f.gotTrades = trades
	f.gotPositions = positions
	f.gotFeatures = features
	f.gotLookback = lookbackDays

	r := *f.result
	r.ClientID = clientID
	return &r
}

type fakeAlerts struct {
	err       error
	published []*models.SwitchAlert
}

func (f *fakeAlerts) PublishAlert(_ context.Context, a *models.SwitchAlert) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, a)
	return nil
}

func (f *fakeAlerts) Close() error { return nil }

type fakeMetrics struct {
	mu           sync.Mutex
	stored       map[string]int
	errors       map[string]int
	fallbacks    map[string]int
	probs        map[string]float64
	latencies    map[string]int
	insufficient int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		stored:    map[string]int{},
		errors:    map[string]int{},
		fallbacks: map[string]int{},
		probs:     map[string]float64{},
		latencies: map[string]int{},
	}
}

func (f *fakeMetrics) RecordTradeStored(backend, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[backend]++
}

func (f *fakeMetrics) RecordError(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[kind]++
}

func (f *fakeMetrics) RecordSwitchProbability(clientID string, p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probs[clientID] = p
}

func (f *fakeMetrics) RecordSignalFallback(signal string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks[signal]++
}

func (f *fakeMetrics) RecordInsufficientHistory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insufficient++
}

func (f *fakeMetrics) RecordLatency(op string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latencies[op]++
}

func (f *fakeMetrics) storedCount(backend string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[backend]
}

func (f *fakeMetrics) errorCount(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[kind]
}

func historyTrades(n int) []models.TradeRecord {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	out := make([]models.TradeRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.TradeRecord{
			TradeID:    fmt.Sprintf("t-%d", i),
			ClientID:   "c1",
			Timestamp:  base.AddDate(0, 0, i),
			Instrument: "ES",
			Side:       models.SideBuy,
			Quantity:   10,
			Price:      100,
		})
	}
	return out
}

func estimateResult(p float64) *models.SwitchProbability {
	return &models.SwitchProbability{
		Probability: p,
		Components:  models.ComponentScores{PatternInstability: 0.05},
		Reasoning:   "elevated pattern instability",
	}
}

func TestEstimateComputesAndCaches(t *testing.T) {
	h := &fakeHistory{
		trades:   historyTrades(20),
		features: models.BehaviorFeatures{models.FeatureMomentumBeta: 1.2},
	}
	est := &fakeEstimator{result: estimateResult(0.42)}
	m := newFakeMetrics()
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), &fakeAlerts{}, m, nil, time.Minute, AlertConfig{})

	res, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if res.ClientID != "c1" || res.Probability != 0.42 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ComputedAt.IsZero() {
		t.Fatal("ComputedAt not stamped")
	}
	if est.gotLookback != 90 {
		t.Fatalf("lookback = %d, want default 90", est.gotLookback)
	}
	if len(est.gotTrades) != 20 {
		t.Fatalf("estimator saw %d trades, want 20", len(est.gotTrades))
	}
	if m.probs["c1"] != 0.42 {
		t.Fatalf("probability gauge = %v", m.probs["c1"])
	}

	again, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1"})
	if err != nil {
		t.Fatalf("second estimate: %v", err)
	}
	if est.calls != 1 {
		t.Fatalf("estimator ran %d times, want cache hit on repeat", est.calls)
	}
	if h.tradeCalls != 1 {
		t.Fatalf("history read %d times, want 1", h.tradeCalls)
	}
	if again.Probability != res.Probability {
		t.Fatalf("cached probability %v != %v", again.Probability, res.Probability)
	}
}

func TestEstimateRefreshBypassesCache(t *testing.T) {
	h := &fakeHistory{trades: historyTrades(20)}
	est := &fakeEstimator{result: estimateResult(0.42)}
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), &fakeAlerts{}, newFakeMetrics(), nil, time.Minute, AlertConfig{})

	for i := 0; i < 2; i++ {
		if _, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1", Refresh: true}); err != nil {
			t.Fatalf("estimate %d: %v", i, err)
		}
	}
	if est.calls != 2 {
		t.Fatalf("estimator ran %d times, want 2", est.calls)
	}
}

func TestEstimateRequiresClientID(t *testing.T) {
	uc := NewSwitchUsecase(&fakeHistory{}, &fakeEstimator{result: estimateResult(0.3)}, nil, nil, newFakeMetrics(), nil, time.Minute, AlertConfig{})
	if _, err := uc.Estimate(context.Background(), EstimateParams{}); err == nil {
		t.Fatal("want error for empty client_id")
	}
}

func TestEstimateFailsWithoutTrades(t *testing.T) {
	h := &fakeHistory{tradesErr: errors.New("clickhouse down")}
	est := &fakeEstimator{result: estimateResult(0.5)}
	m := newFakeMetrics()
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), &fakeAlerts{}, m, nil, time.Minute, AlertConfig{})

	_, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1"})
	if err == nil {
		t.Fatal("want error when trades are unavailable")
	}
	if !strings.Contains(err.Error(), "load trades") {
		t.Fatalf("error = %v", err)
	}
	if est.calls != 0 {
		t.Fatal("estimator must not run without trades")
	}
	if m.errorCount("history_trades") != 1 {
		t.Fatalf("errors = %v", m.errors)
	}
}

func TestEstimateDegradesOptionalSources(t *testing.T) {
	h := &fakeHistory{
		trades:       historyTrades(15),
		positions:    []models.PositionSnapshot{{ClientID: "c1", Instrument: "ES", NetPosition: 5}},
		features:     models.BehaviorFeatures{models.FeatureAggressiveness: 0.7},
		positionsErr: errors.New("positions query timeout"),
		featuresErr:  errors.New("features query timeout"),
	}
	est := &fakeEstimator{result: estimateResult(0.33)}
	m := newFakeMetrics()
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), &fakeAlerts{}, m, nil, time.Minute, AlertConfig{})

	res, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if res == nil {
		t.Fatal("nil result")
	}
	if est.gotPositions != nil {
		t.Fatal("failed positions read should degrade to nil")
	}
	if est.gotFeatures != nil {
		t.Fatal("failed features read should degrade to nil")
	}
	if m.errorCount("history_positions") != 1 || m.errorCount("history_features") != 1 {
		t.Fatalf("errors = %v", m.errors)
	}
}

func TestEstimateClampsLookback(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 90},
		{7, 14},
		{120, 120},
		{9999, 365},
	}
	for _, c := range cases {
		est := &fakeEstimator{result: estimateResult(0.3)}
		uc := NewSwitchUsecase(&fakeHistory{trades: historyTrades(5)}, est, nil, nil, newFakeMetrics(), nil, time.Minute, AlertConfig{})
		if _, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1", LookbackDays: c.in}); err != nil {
			t.Fatalf("lookback %d: %v", c.in, err)
		}
		if est.gotLookback != c.want {
			t.Fatalf("lookback %d normalized to %d, want %d", c.in, est.gotLookback, c.want)
		}
	}
}

func TestEstimateCountsInsufficientHistory(t *testing.T) {
	est := &fakeEstimator{result: &models.SwitchProbability{
		Probability: 0.30,
		Reasoning:   models.ReasonInsufficientHistory,
	}}
	m := newFakeMetrics()
	uc := NewSwitchUsecase(&fakeHistory{trades: historyTrades(3)}, est, nil, nil, m, nil, time.Minute, AlertConfig{})

	if _, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1"}); err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if m.insufficient != 1 {
		t.Fatalf("insufficient history count = %d", m.insufficient)
	}
}

func TestEstimateCountsSignalFallbacks(t *testing.T) {
	est := &fakeEstimator{result: &models.SwitchProbability{
		Probability: 0.35,
		Errors:      map[string]string{"change_point": "window too short"},
	}}
	m := newFakeMetrics()
	uc := NewSwitchUsecase(&fakeHistory{trades: historyTrades(10)}, est, nil, nil, m, nil, time.Minute, AlertConfig{})

	if _, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1"}); err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if m.fallbacks["change_point"] != 1 {
		t.Fatalf("fallbacks = %v", m.fallbacks)
	}
}

func TestAlertFirstObservationSeedsBaseline(t *testing.T) {
	h := &fakeHistory{trades: historyTrades(20)}
	est := &fakeEstimator{result: estimateResult(0.80)}
	alerts := &fakeAlerts{}
	cfg := AlertConfig{Enabled: true, Threshold: 0.6, MinJump: 0.1}
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), alerts, newFakeMetrics(), nil, time.Minute, cfg)

	if _, err := uc.Estimate(context.Background(), EstimateParams{ClientID: "c1"}); err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if len(alerts.published) != 0 {
		t.Fatalf("first observation published %d alerts, want 0", len(alerts.published))
	}
}

func TestAlertFiresOnJumpAboveThreshold(t *testing.T) {
	h := &fakeHistory{trades: historyTrades(20)}
	est := &fakeEstimator{result: estimateResult(0.40)}
	alerts := &fakeAlerts{}
	cfg := AlertConfig{Enabled: true, Threshold: 0.6, MinJump: 0.1}
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), alerts, newFakeMetrics(), nil, time.Minute, cfg)

	ctx := context.Background()
	if _, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	est.result = estimateResult(0.75)
	if _, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1", Refresh: true}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(alerts.published) != 1 {
		t.Fatalf("published %d alerts, want 1", len(alerts.published))
	}
	a := alerts.published[0]
	if a.Type != models.AlertTypeSwitchProbability || a.ClientID != "c1" {
		t.Fatalf("alert = %+v", a)
	}
	if a.OldSwitchProb != 0.40 || a.NewSwitchProb != 0.75 {
		t.Fatalf("alert moved %v -> %v", a.OldSwitchProb, a.NewSwitchProb)
	}

	// Drift smaller than the jump size stays quiet.
	est.result = estimateResult(0.80)
	if _, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1", Refresh: true}); err != nil {
		t.Fatalf("third estimate: %v", err)
	}
	if len(alerts.published) != 1 {
		t.Fatalf("small drift published %d alerts, want 1", len(alerts.published))
	}
}

func TestAlertRespectsThreshold(t *testing.T) {
	h := &fakeHistory{trades: historyTrades(20)}
	est := &fakeEstimator{result: estimateResult(0.20)}
	alerts := &fakeAlerts{}
	cfg := AlertConfig{Enabled: true, Threshold: 0.6, MinJump: 0.1}
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), alerts, newFakeMetrics(), nil, time.Minute, cfg)

	ctx := context.Background()
	if _, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	est.result = estimateResult(0.55)
	if _, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1", Refresh: true}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(alerts.published) != 0 {
		t.Fatalf("below-threshold jump published %d alerts, want 0", len(alerts.published))
	}
}

func TestAlertDisabled(t *testing.T) {
	h := &fakeHistory{trades: historyTrades(20)}
	est := &fakeEstimator{result: estimateResult(0.20)}
	alerts := &fakeAlerts{}
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), alerts, newFakeMetrics(), nil, time.Minute, AlertConfig{Threshold: 0.6, MinJump: 0.1})

	ctx := context.Background()
	if _, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	est.result = estimateResult(0.90)
	if _, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1", Refresh: true}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(alerts.published) != 0 {
		t.Fatalf("disabled alerts published %d, want 0", len(alerts.published))
	}
}

func TestAlertPublishFailureRecorded(t *testing.T) {
	h := &fakeHistory{trades: historyTrades(20)}
	est := &fakeEstimator{result: estimateResult(0.20)}
	alerts := &fakeAlerts{err: errors.New("broker down")}
	m := newFakeMetrics()
	cfg := AlertConfig{Enabled: true, Threshold: 0.6, MinJump: 0.1}
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), alerts, m, nil, time.Minute, cfg)

	ctx := context.Background()
	if _, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	est.result = estimateResult(0.90)
	res, err := uc.Estimate(ctx, EstimateParams{ClientID: "c1", Refresh: true})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res == nil || res.Probability != 0.90 {
		t.Fatalf("publish failure must not affect the result, got %+v", res)
	}
	if m.errorCount("alert_publish") != 1 {
		t.Fatalf("errors = %v", m.errors)
	}
}

func TestPreviewNormalizesAndSkipsStorage(t *testing.T) {
	h := &fakeHistory{tradesErr: errors.New("must not be read")}
	est := &fakeEstimator{result: estimateResult(0.48)}
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), &fakeAlerts{}, newFakeMetrics(), nil, time.Minute, AlertConfig{})

	raw := []models.RawTradeRecord{
		{TradeID: "t1", Timestamp: "2025-06-01T10:00:00Z", Instrument: "ES", Side: "BUY", Quantity: 5, Price: 101},
		{TradeID: "t2", Timestamp: "2025-06-02T10:00:00Z", Instrument: "ES", Side: "sell", Quantity: 3, Price: 102},
		{TradeID: "t3", Timestamp: "not a time", Instrument: "ES", Side: "BUY", Quantity: 1, Price: 100},
	}
	res, dropped, err := uc.Preview(context.Background(), PreviewParams{
		ClientID: "c9",
		Trades:   raw,
		Features: map[string]float64{models.FeatureHoldingPeriod: 4},
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if len(est.gotTrades) != 2 {
		t.Fatalf("estimator saw %d trades, want 2", len(est.gotTrades))
	}
	if est.gotPositions != nil {
		t.Fatal("preview must not fabricate positions")
	}
	if est.gotFeatures[models.FeatureHoldingPeriod] != 4 {
		t.Fatalf("features = %v", est.gotFeatures)
	}
	if h.tradeCalls != 0 {
		t.Fatal("preview must not read history")
	}
	if res.ClientID != "c9" {
		t.Fatalf("client = %q", res.ClientID)
	}

	if _, _, err := uc.Preview(context.Background(), PreviewParams{ClientID: "c9", Trades: raw}); err != nil {
		t.Fatalf("second preview: %v", err)
	}
	if est.calls != 2 {
		t.Fatalf("estimator ran %d times, preview results must not be cached", est.calls)
	}
}

func TestPreviewRequiresClientID(t *testing.T) {
	uc := NewSwitchUsecase(&fakeHistory{}, &fakeEstimator{result: estimateResult(0.3)}, nil, nil, newFakeMetrics(), nil, time.Minute, AlertConfig{})
	if _, _, err := uc.Preview(context.Background(), PreviewParams{}); err == nil {
		t.Fatal("want error for empty client_id")
	}
}
