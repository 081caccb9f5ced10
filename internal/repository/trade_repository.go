package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ClientPulse/internal/domain/models"
	"ClientPulse/internal/domain/repository"
	pkgch "ClientPulse/pkg/clickhouse"
	pkgkafka "ClientPulse/pkg/kafka"
)

// CHTradeSink implements TradeSink for ClickHouse.
type CHTradeSink struct {
	db       *sql.DB
	ch       *pkgch.Client
	database string
}

// NewCHTradeSink creates ClickHouse trade storage.
func NewCHTradeSink(ch *pkgch.Client, database string) repository.TradeSink {
	return &CHTradeSink{db: ch.DB(), ch: ch, database: database}
}

func (s *CHTradeSink) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, SchemaStatements(s.database))
}

func (s *CHTradeSink) Store(ctx context.Context, t *models.TradeRecord) error {
	q := fmt.Sprintf("INSERT INTO %s.client_trades (ts, client_id, trade_id, instrument, side, quantity, price, order_type, venue) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.database)
	_, err := s.db.ExecContext(ctx, q,
		t.Timestamp,
		t.ClientID,
		t.TradeID,
		t.Instrument,
		string(t.Side),
		t.Quantity,
		t.Price,
		t.OrderType,
		t.Venue,
	)
	return err
}

func (s *CHTradeSink) StoreBatch(ctx context.Context, trades []*models.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	// Chunk size tuned to 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(trades); start += chunkSize {
		end := start + chunkSize
		if end > len(trades) { end = len(trades) }

		// Build VALUES list
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, t := range trades[start:end] {
			if t == nil || t.ClientID == "" || t.Timestamp.IsZero() { continue }
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.Timestamp,
				t.ClientID,
				t.TradeID,
				t.Instrument,
				string(t.Side),
				t.Quantity,
				t.Price,
				t.OrderType,
				t.Venue,
			)
		}
		if len(values) == 0 { continue }
		q := fmt.Sprintf("INSERT INTO %s.client_trades (ts, client_id, trade_id, instrument, side, quantity, price, order_type, venue) VALUES %s", s.database, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *CHTradeSink) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHTradeSink) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka. Messages are keyed by
// client so a client's trades land on one partition in order.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.TradeRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.ClientID), t)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, trades []*models.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(trades))
	for i, t := range trades {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(t.ClientID),
			Value: t,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaAlertPublisher implements AlertPublisher for Kafka.
type KafkaAlertPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAlertPublisher creates alert publisher.
func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) repository.AlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

func (p *KafkaAlertPublisher) PublishAlert(ctx context.Context, a *models.SwitchAlert) error {
	return p.producer.Publish(ctx, p.topic, []byte(a.ClientID), a)
}

func (p *KafkaAlertPublisher) Close() error {
	// The producer is shared with the trade publisher; the owner closes it.
	return nil
}
