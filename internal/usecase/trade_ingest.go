package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ClientPulse/internal/domain/models"
	drepo "ClientPulse/internal/domain/repository"
)

// TradeIngest routes executed trades to the configured backend, batching
// by size and timeout. With batch size <= 1 every record is sent directly.
type TradeIngest struct {
	pub     drepo.Publisher
	store   drepo.TradeSink
	metrics drepo.Metrics
	backend string
	batchSz int
	batchTO time.Duration

	mu        sync.Mutex
	buf       []*models.TradeRecord
	stopCh    chan struct{}
	startOnce sync.Once
	once      sync.Once
}

// NewTradeIngest creates a new TradeIngest instance.
func NewTradeIngest(
	pub drepo.Publisher,
	store drepo.TradeSink,
	metrics drepo.Metrics,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *TradeIngest {
	return &TradeIngest{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the timeout flusher. Safe to call more than once; no-op
// when batching is off.
func (p *TradeIngest) Start(ctx context.Context) {
	if p.batchSz <= 1 || p.batchTO <= 0 {
		return
	}
	p.startOnce.Do(func() { go p.flushLoop(ctx) })
}

func (p *TradeIngest) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(p.batchTO)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			batch := p.buf
			p.buf = nil
			p.mu.Unlock()
			if len(batch) > 0 {
				if err := p.flush(ctx, batch); err != nil {
					p.metrics.RecordError("ingest_flush")
				}
			}
		}
	}
}

// Process accepts a single trade. With batching on, the record is buffered
// and the call that fills the batch performs the flush.
func (p *TradeIngest) Process(ctx context.Context, t *models.TradeRecord) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}

	if p.batchSz <= 1 {
		return p.send(ctx, t)
	}

	p.mu.Lock()
	p.buf = append(p.buf, t)
	var batch []*models.TradeRecord
	if len(p.buf) >= p.batchSz {
		batch = p.buf
		p.buf = nil
	}
	p.mu.Unlock()

	if batch != nil {
		return p.flush(ctx, batch)
	}
	return nil
}

// ProcessBatch sends multiple trades in one shot, bypassing the buffer.
func (p *TradeIngest) ProcessBatch(ctx context.Context, trades []*models.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	return p.flush(ctx, trades)
}

func (p *TradeIngest) send(ctx context.Context, t *models.TradeRecord) error {
	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, t)
	case "clickhouse":
		err = p.store.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("ingest")
		return fmt.Errorf("ingest trade: %w", err)
	}

	p.metrics.RecordTradeStored(p.backend, t.ClientID)
	p.metrics.RecordLatency("ingest", time.Since(start).Seconds())

	return nil
}

func (p *TradeIngest) flush(ctx context.Context, trades []*models.TradeRecord) error {
	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, trades)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, trades)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("ingest_batch")
		return fmt.Errorf("ingest batch: %w", err)
	}

	for _, t := range trades {
		p.metrics.RecordTradeStored(p.backend, t.ClientID)
	}
	p.metrics.RecordLatency("ingest_batch", time.Since(start).Seconds())

	return nil
}

// Close flushes buffered records and closes underlying resources.
func (p *TradeIngest) Close() {
	p.once.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	batch := p.buf
	p.buf = nil
	p.mu.Unlock()
	if len(batch) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.flush(ctx, batch); err != nil {
			p.metrics.RecordError("ingest_close_flush")
		}
	}

	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
