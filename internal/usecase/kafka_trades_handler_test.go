package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ClientPulse/internal/domain/models"
)

func tradeJSON(t *testing.T, rec models.TradeRecord) []byte {
	t.Helper()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return b
}

func TestTradesHandlerStoresRecord(t *testing.T) {
	sink := &fakeSink{}
	m := newFakeMetrics()
	h := NewKafkaTradesHandler("clientpulse.trades", sink, m)

	if h.Topic() != "clientpulse.trades" {
		t.Fatalf("topic = %q", h.Topic())
	}

	rec := models.TradeRecord{
		TradeID:    "t1",
		ClientID:   "c1",
		Timestamp:  time.Now().UTC().Add(-time.Second),
		Instrument: "ES",
		Side:       models.SideBuy,
		Quantity:   5,
		Price:      101.5,
	}
	if err := h.Handle(context.Background(), tradeJSON(t, rec)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.stored) != 1 || sink.stored[0].TradeID != "t1" {
		t.Fatalf("stored = %v", sink.stored)
	}
	if m.storedCount("clickhouse") != 1 {
		t.Fatalf("stored count = %d", m.storedCount("clickhouse"))
	}
}

func TestTradesHandlerRejectsBadJSON(t *testing.T) {
	sink := &fakeSink{}
	m := newFakeMetrics()
	h := NewKafkaTradesHandler("clientpulse.trades", sink, m)

	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("want unmarshal error")
	}
	if m.errorCount("consumer_unmarshal") != 1 {
		t.Fatalf("errors = %v", m.errors)
	}
	if len(sink.stored) != 0 {
		t.Fatal("malformed message must not reach storage")
	}
}

func TestTradesHandlerSkipsInvalidRecords(t *testing.T) {
	cases := []models.TradeRecord{
		{TradeID: "no-client", Timestamp: time.Now().UTC(), Side: models.SideBuy, Quantity: 1},
		{TradeID: "no-time", ClientID: "c1", Side: models.SideSell, Quantity: 1},
	}
	for _, rec := range cases {
		sink := &fakeSink{}
		m := newFakeMetrics()
		h := NewKafkaTradesHandler("clientpulse.trades", sink, m)

		// Invalid records are dropped without error so the offset commits.
		if err := h.Handle(context.Background(), tradeJSON(t, rec)); err != nil {
			t.Fatalf("%s: handle: %v", rec.TradeID, err)
		}
		if m.errorCount("consumer_invalid") != 1 {
			t.Fatalf("%s: errors = %v", rec.TradeID, m.errors)
		}
		if len(sink.stored) != 0 {
			t.Fatalf("%s: invalid record stored", rec.TradeID)
		}
	}
}

func TestTradesHandlerStoreFailure(t *testing.T) {
	sink := &fakeSink{storeErr: errors.New("insert timeout")}
	m := newFakeMetrics()
	h := NewKafkaTradesHandler("clientpulse.trades", sink, m)

	rec := models.TradeRecord{
		TradeID:   "t1",
		ClientID:  "c1",
		Timestamp: time.Now().UTC(),
		Side:      models.SideBuy,
		Quantity:  1,
	}
	if err := h.Handle(context.Background(), tradeJSON(t, rec)); err == nil {
		t.Fatal("want store error so the message retries")
	}
	if m.errorCount("consumer_store") != 1 {
		t.Fatalf("errors = %v", m.errors)
	}
}
