package models

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeRecord is one executed client trade. Tagged because records travel
// through the ingest topic as JSON.
type TradeRecord struct {
	TradeID    string    `json:"trade_id"`
	ClientID   string    `json:"client_id"`
	Timestamp  time.Time `json:"timestamp"`
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	OrderType  string    `json:"order_type,omitempty"`
	Venue      string    `json:"venue,omitempty"`
}

// SignedQuantity returns quantity with the side's sign applied (SELL negative).
func (t *TradeRecord) SignedQuantity() float64 {
	if t.Side == SideSell {
		return -t.Quantity
	}
	return t.Quantity
}

// RawTradeRecord is the JSON-facing shape used by the preview endpoint and the
// execution feed, where timestamps arrive as strings. Malformed records are
// dropped one by one during normalization, never rejected as a batch.
type RawTradeRecord struct {
	TradeID    string  `json:"trade_id"`
	ClientID   string  `json:"client_id"`
	Timestamp  string  `json:"timestamp"`
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	OrderType  string  `json:"order_type"`
	Venue      string  `json:"venue"`
}

// PositionSnapshot is a point-in-time net position from the books feed.
// The estimator derives flips from the trade stream itself; snapshots are
// accepted as input but reserved for future reconciliation.
type PositionSnapshot struct {
	ClientID      string
	Instrument    string
	NetPosition   float64
	GrossPosition float64
	AveragePrice  float64
	MarketValue   float64
	UpdatedAt     time.Time
}

// Keys produced by the behavioral feature pipeline.
const (
	FeatureMomentumBeta   = "momentum_beta"
	FeatureHoldingPeriod  = "holding_period_days"
	FeatureAggressiveness = "aggressiveness"
)

// BehaviorFeatures maps feature keys to values. Any key may be absent; a nil
// map means no features are known for the client.
type BehaviorFeatures map[string]float64
