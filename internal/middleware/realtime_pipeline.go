package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ClientPulse/internal/domain/models"
	domrepo "ClientPulse/internal/domain/repository"
)

// Proc is the downstream the pipeline forwards accepted records to.
type Proc interface {
	Process(ctx context.Context, t *models.TradeRecord) error
}

const (
	flushBackoffMin = 50 * time.Millisecond
	flushBackoffMax = 2 * time.Second
	rateEntryTTL    = time.Minute
)

// RealtimePipeline sits between the execution feed and the ingest worker.
// It rejects malformed records, rate limits per client, and parks records in
// an overflow buffer when the downstream publish fails, so a Kafka hiccup
// does not wedge the feed reader.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics

	maxRPS   int
	bufSize  int
	overflow chan *models.TradeRecord

	rateMu   sync.Mutex
	lastSeen map[string]time.Time

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps accepted trades per second for each client. Zero or
// negative disables the limit.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		p.maxRPS = n
	}
}

// WithBufferSize sets how many records the overflow buffer holds while the
// downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   50,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.overflow = make(chan *models.TradeRecord, p.bufSize)
	return p
}

// Start launches the background goroutine that retries buffered records and
// expires idle rate-limit entries. Safe to call once; later calls are no-ops.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

// Stop halts the background flusher. Records still in the overflow buffer
// are dropped.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process admits one record from the feed: validate, rate limit, forward.
// A failed forward buffers the record for the flusher and reports the error
// so callers can count it.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.TradeRecord) error {
	start := time.Now()

	if err := validateRecord(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if !p.allow(t.ClientID, start) {
		// Over the per-client rate. Dropping protects the history store from
		// a runaway feed; the caller sees success and keeps reading.
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.overflow <- t:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.overflow)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}

	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// flushLoop retries buffered records with capped exponential backoff and
// sweeps the rate-limit map so one-off clients do not pin entries forever.
func (p *RealtimePipeline) flushLoop(ctx context.Context) {
	sweep := time.NewTicker(rateEntryTTL)
	defer sweep.Stop()

	backoff := flushBackoffMin
	for {
		select {
		case <-p.stopCh:
			return
		case now := <-sweep.C:
			p.pruneRates(now)
		case t := <-p.overflow:
			if err := p.proc.Process(ctx, t); err != nil {
				p.metrics.RecordError("pipeline_flush")
				if backoff < flushBackoffMax {
					backoff *= 2
				}
				time.Sleep(backoff)
				// Put it back if there is room. The history table orders by
				// timestamp, so a record re-entering late is harmless.
				select {
				case p.overflow <- t:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				continue
			}
			backoff = flushBackoffMin
		}
	}
}

// allow enforces a minimum gap between accepted records per client.
func (p *RealtimePipeline) allow(clientID string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	minGap := time.Second / time.Duration(p.maxRPS)

	p.rateMu.Lock()
	defer p.rateMu.Unlock()

	last, seen := p.lastSeen[clientID]
	if seen && now.Sub(last) < minGap {
		return false
	}
	p.lastSeen[clientID] = now
	return true
}

func (p *RealtimePipeline) pruneRates(now time.Time) {
	p.rateMu.Lock()
	defer p.rateMu.Unlock()
	for id, last := range p.lastSeen {
		if now.Sub(last) > rateEntryTTL {
			delete(p.lastSeen, id)
		}
	}
}

func validateRecord(t *models.TradeRecord) error {
	switch {
	case t == nil:
		return fmt.Errorf("trade nil")
	case t.ClientID == "":
		return fmt.Errorf("client_id empty")
	case t.Instrument == "":
		return fmt.Errorf("instrument empty")
	case t.Timestamp.IsZero():
		return fmt.Errorf("timestamp missing")
	case t.Quantity <= 0:
		return fmt.Errorf("quantity must be positive")
	case t.Price < 0:
		return fmt.Errorf("price negative")
	}
	return nil
}
