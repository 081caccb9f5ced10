package usecase

import (
	"context"
	"testing"
	"time"

	pkgcache "ClientPulse/pkg/cache"
)

func analyzeTestJob(h *fakeHistory, est *fakeEstimator) *AnalyzeJob {
	uc := NewSwitchUsecase(h, est, pkgcache.NewMemoryCache(), &fakeAlerts{}, newFakeMetrics(), nil, time.Minute, AlertConfig{})
	return NewAnalyzeJob(uc, nil)
}

func TestAnalyzeJobRecomputes(t *testing.T) {
	h := &fakeHistory{trades: historyTrades(20)}
	est := &fakeEstimator{result: estimateResult(0.42)}
	job := analyzeTestJob(h, est)

	if job.Type() != AnalyzeMessageType {
		t.Fatalf("type = %q", job.Type())
	}

	// Queue payloads arrive as generic maps after JSON decode.
	payload := map[string]interface{}{
		"client_id":     "c1",
		"lookback_days": 30,
		"job_id":        "1718000000000000000",
	}
	if err := job.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if est.calls != 1 {
		t.Fatalf("estimator ran %d times", est.calls)
	}
	if est.gotLookback != 30 {
		t.Fatalf("lookback = %d, want 30", est.gotLookback)
	}

	// A second run must bypass the cache seeded by the first.
	if err := job.Handle(context.Background(), payload); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if est.calls != 2 {
		t.Fatalf("estimator ran %d times, background runs must refresh", est.calls)
	}
}

func TestAnalyzeJobRejectsMissingClient(t *testing.T) {
	job := analyzeTestJob(&fakeHistory{}, &fakeEstimator{result: estimateResult(0.3)})

	if err := job.Handle(context.Background(), map[string]interface{}{"lookback_days": 30}); err == nil {
		t.Fatal("want error for missing client_id")
	}
}

func TestAnalyzeJobAcceptsStructPayload(t *testing.T) {
	h := &fakeHistory{trades: historyTrades(20)}
	est := &fakeEstimator{result: estimateResult(0.42)}
	job := analyzeTestJob(h, est)

	p := AnalyzePayload{ClientID: "c7", JobID: "j1"}
	if err := job.Handle(context.Background(), p); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if est.calls != 1 {
		t.Fatalf("estimator ran %d times", est.calls)
	}
}
