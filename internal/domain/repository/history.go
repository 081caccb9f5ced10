package repository

import (
	"context"
	"time"

	"ClientPulse/internal/domain/models"
)

// TradeHistory provides read-only access to stored client activity for
// estimation.
type TradeHistory interface {
	// GetTrades returns the client's trades in [from, to], ascending by time.
	GetTrades(ctx context.Context, clientID string, from, to time.Time) ([]models.TradeRecord, error)
	// GetPositions returns the latest position snapshot per instrument.
	GetPositions(ctx context.Context, clientID string) ([]models.PositionSnapshot, error)
	// GetFeatures returns the newest behavioral feature row for the client.
	// A client with no features yields a nil map and no error.
	GetFeatures(ctx context.Context, clientID string) (models.BehaviorFeatures, error)
}
