package usecase

import (
	"context"
	"encoding/json"
	"time"

	"ClientPulse/internal/domain/models"
	domrepo "ClientPulse/internal/domain/repository"
	pkgkafka "ClientPulse/pkg/kafka"
)

// KafkaTradesHandler consumes trade records from Kafka and writes them to
// the history store.
type KafkaTradesHandler struct {
	topic   string
	storage domrepo.TradeSink
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, storage domrepo.TradeSink, metrics domrepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

// Handle decodes one TradeRecord JSON message and stores it.
func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var t models.TradeRecord
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if t.ClientID == "" || t.Timestamp.IsZero() {
		h.metrics.RecordError("consumer_invalid")
		// malformed record; commit and move on rather than poison the topic
		return nil
	}
	// E2E latency from execution time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(t.Timestamp).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &t)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordTradeStored("clickhouse", t.ClientID)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)
