package repository

import (
	"context"

	"ClientPulse/internal/domain/models"
)

type TradeStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.TradeRecord, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, t *models.TradeRecord) error
	PublishBatch(ctx context.Context, trades []*models.TradeRecord) error
	Close() error
}

type AlertPublisher interface {
	PublishAlert(ctx context.Context, a *models.SwitchAlert) error
	Close() error
}

type TradeSink interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.TradeRecord) error
	StoreBatch(ctx context.Context, trades []*models.TradeRecord) error
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordTradeStored(backend, clientID string)
	RecordError(kind string)
	RecordSwitchProbability(clientID string, p float64)
	RecordSignalFallback(signal string)
	RecordInsufficientHistory()
	RecordLatency(op string, seconds float64)
}
