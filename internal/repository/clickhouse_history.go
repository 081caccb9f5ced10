package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ClientPulse/internal/domain/models"
	pkgch "ClientPulse/pkg/clickhouse"
	applogger "ClientPulse/pkg/logger"
)

// CHHistoryStore implements TradeHistory backed by ClickHouse.
type CHHistoryStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHHistoryStore(ch *pkgch.Client, database string) *CHHistoryStore {
	return &CHHistoryStore{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (s *CHHistoryStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHHistoryStore) GetTrades(ctx context.Context, clientID string, from, to time.Time) ([]models.TradeRecord, error) {
	start := time.Now()
	const qtpl = `
        SELECT trade_id, client_id, ts, instrument, side, quantity, price, order_type, venue
        FROM %s.client_trades
        WHERE client_id = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	q := fmt.Sprintf(qtpl, s.database)
	rows, err := s.db.QueryContext(ctx, q, clientID, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_trades query error",
				applogger.String("client_id", clientID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get trades: %w", err)
	}
	defer rows.Close()

	out := make([]models.TradeRecord, 0, 1024)
	for rows.Next() {
		var t models.TradeRecord
		var side string
		if err := rows.Scan(&t.TradeID, &t.ClientID, &t.Timestamp, &t.Instrument, &side, &t.Quantity, &t.Price, &t.OrderType, &t.Venue); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse get_trades scan error",
					applogger.String("client_id", clientID),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = models.Side(side)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_trades rows error",
				applogger.String("client_id", clientID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse get_trades ok",
			applogger.String("client_id", clientID),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHHistoryStore) GetPositions(ctx context.Context, clientID string) ([]models.PositionSnapshot, error) {
	// Latest row per instrument; the table is a ReplacingMergeTree so rows
	// may not be collapsed yet at read time.
	const qtpl = `
        SELECT
            instrument,
            argMax(net_position, updated_at),
            argMax(gross_position, updated_at),
            argMax(avg_price, updated_at),
            argMax(market_value, updated_at),
            max(updated_at)
        FROM %s.client_positions
        WHERE client_id = ?
        GROUP BY instrument
    `
	q := fmt.Sprintf(qtpl, s.database)
	rows, err := s.db.QueryContext(ctx, q, clientID)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_positions query error",
				applogger.String("client_id", clientID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get positions: %w", err)
	}
	defer rows.Close()

	var out []models.PositionSnapshot
	for rows.Next() {
		p := models.PositionSnapshot{ClientID: clientID}
		if err := rows.Scan(&p.Instrument, &p.NetPosition, &p.GrossPosition, &p.AveragePrice, &p.MarketValue, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *CHHistoryStore) GetFeatures(ctx context.Context, clientID string) (models.BehaviorFeatures, error) {
	const qtpl = `
        SELECT momentum_beta, holding_period_days, aggressiveness
        FROM %s.client_features
        WHERE client_id = ?
        ORDER BY updated_at DESC
        LIMIT 1
    `
	q := fmt.Sprintf(qtpl, s.database)
	var beta, holding, aggr sql.NullFloat64
	err := s.db.QueryRowContext(ctx, q, clientID).Scan(&beta, &holding, &aggr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_features query error",
				applogger.String("client_id", clientID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get features: %w", err)
	}

	// Null columns stay absent from the map so the estimator treats them
	// as unknown rather than zero.
	f := models.BehaviorFeatures{}
	if beta.Valid {
		f[models.FeatureMomentumBeta] = beta.Float64
	}
	if holding.Valid {
		f[models.FeatureHoldingPeriod] = holding.Float64
	}
	if aggr.Valid {
		f[models.FeatureAggressiveness] = aggr.Float64
	}
	return f, nil
}
