package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ClientPulse/internal/domain/models"
)

type recordingProc struct {
	mu   sync.Mutex
	got  []*models.TradeRecord
	fail bool
}

func (p *recordingProc) Process(_ context.Context, t *models.TradeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("downstream down")
	}
	p.got = append(p.got, t)
	return nil
}

func (p *recordingProc) setFail(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = v
}

func (p *recordingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordTradeStored(string, string)        {}
func (m *countingMetrics) RecordSwitchProbability(string, float64) {}
func (m *countingMetrics) RecordSignalFallback(string)             {}
func (m *countingMetrics) RecordInsufficientHistory()              {}
func (m *countingMetrics) RecordLatency(string, float64)           {}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func feedTrade(client string) *models.TradeRecord {
	return &models.TradeRecord{
		TradeID:    "t-1",
		ClientID:   client,
		Timestamp:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Instrument: "ES",
		Side:       models.SideBuy,
		Quantity:   5,
		Price:      101.25,
	}
}

func TestPipelineForwardsValidRecord(t *testing.T) {
	proc := &recordingProc{}
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m)

	if err := p.Process(context.Background(), feedTrade("c1")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("expected 1 forwarded record, got %d", proc.count())
	}
	if got := m.errorCount("pipeline_validate"); got != 0 {
		t.Fatalf("unexpected validation errors: %d", got)
	}
}

func TestPipelineRejectsMalformedRecords(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.TradeRecord)
	}{
		{"no client", func(r *models.TradeRecord) { r.ClientID = "" }},
		{"no instrument", func(r *models.TradeRecord) { r.Instrument = "" }},
		{"zero timestamp", func(r *models.TradeRecord) { r.Timestamp = time.Time{} }},
		{"zero quantity", func(r *models.TradeRecord) { r.Quantity = 0 }},
		{"negative price", func(r *models.TradeRecord) { r.Price = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &recordingProc{}
			m := newCountingMetrics()
			p := NewRealtimePipeline(proc, m)

			rec := feedTrade("c1")
			tc.mutate(rec)

			if err := p.Process(context.Background(), rec); err == nil {
				t.Fatal("expected validation error")
			}
			if proc.count() != 0 {
				t.Fatalf("malformed record reached downstream")
			}
			if got := m.errorCount("pipeline_validate"); got != 1 {
				t.Fatalf("expected 1 validation error, got %d", got)
			}
		})
	}
}

func TestPipelineThrottlesPerClient(t *testing.T) {
	proc := &recordingProc{}
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m, WithMaxRPS(1))

	// Second record from the same client inside the gap is dropped without
	// an error; another client is unaffected.
	if err := p.Process(context.Background(), feedTrade("c1")); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := p.Process(context.Background(), feedTrade("c1")); err != nil {
		t.Fatalf("throttled record should not error: %v", err)
	}
	if err := p.Process(context.Background(), feedTrade("c2")); err != nil {
		t.Fatalf("other client: %v", err)
	}

	if proc.count() != 2 {
		t.Fatalf("expected 2 forwarded records, got %d", proc.count())
	}
	if got := m.errorCount("pipeline_throttle"); got != 1 {
		t.Fatalf("expected 1 throttle, got %d", got)
	}
}

func TestPipelineBuffersAndFlushesOnRecovery(t *testing.T) {
	proc := &recordingProc{}
	proc.setFail(true)
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m, WithBufferSize(10))

	if err := p.Process(context.Background(), feedTrade("c1")); err == nil {
		t.Fatal("expected downstream error")
	}
	if got := m.errorCount("pipeline_process"); got != 1 {
		t.Fatalf("expected 1 process error, got %d", got)
	}

	proc.setFail(false)
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if proc.count() != 1 {
		t.Fatalf("buffered record never flushed")
	}
}

func TestPipelineCountsDropWhenBufferFull(t *testing.T) {
	proc := &recordingProc{}
	proc.setFail(true)
	m := newCountingMetrics()
	p := NewRealtimePipeline(proc, m, WithBufferSize(1))

	_ = p.Process(context.Background(), feedTrade("c1"))
	_ = p.Process(context.Background(), feedTrade("c2"))

	if got := m.errorCount("pipeline_buffer_full"); got != 1 {
		t.Fatalf("expected 1 buffer-full drop, got %d", got)
	}
}
