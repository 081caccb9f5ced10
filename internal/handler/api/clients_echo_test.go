package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ClientPulse/internal/domain/models"
	"ClientPulse/internal/usecase"
	pkgcache "ClientPulse/pkg/cache"
	xhttp "ClientPulse/pkg/http"
	"ClientPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

type histStub struct{}

func (histStub) GetTrades(_ context.Context, clientID string, _, _ time.Time) ([]models.TradeRecord, error) {
	base := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	out := make([]models.TradeRecord, 0, 20)
	for i := 0; i < 20; i++ {
		out = append(out, models.TradeRecord{
			TradeID:    fmt.Sprintf("t-%d", i),
			ClientID:   clientID,
			Timestamp:  base.AddDate(0, 0, i),
			Instrument: "ES",
			Side:       models.SideBuy,
			Quantity:   10,
			Price:      100,
		})
	}
	return out, nil
}

func (histStub) GetPositions(context.Context, string) ([]models.PositionSnapshot, error) {
	return nil, nil
}

func (histStub) GetFeatures(context.Context, string) (models.BehaviorFeatures, error) {
	return nil, nil
}

type estStub struct{}

func (estStub) Estimate(clientID string, _ []models.TradeRecord, _ []models.PositionSnapshot, _ models.BehaviorFeatures, _ int) *models.SwitchProbability {
	return &models.SwitchProbability{
		ClientID:    clientID,
		Probability: 0.42,
		Reasoning:   "elevated pattern instability",
	}
}

type alertStub struct{}

func (alertStub) PublishAlert(context.Context, *models.SwitchAlert) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordTradeStored(string, string)        {}
func (noopMetrics) RecordError(string)                      {}
func (noopMetrics) RecordSwitchProbability(string, float64) {}
func (noopMetrics) RecordSignalFallback(string)             {}
func (noopMetrics) RecordInsufficientHistory()              {}
func (noopMetrics) RecordLatency(string, float64)           {}

type jobsStub struct {
	mu       sync.Mutex
	err      error
	msgTypes []string
	payloads []interface{}
}

func (s *jobsStub) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgTypes = append(s.msgTypes, msgType)
	s.payloads = append(s.payloads, payload)
	return nil
}

func newTestServer(jobs queue.QueueService) *echo.Echo {
	uc := usecase.NewSwitchUsecase(
		histStub{}, estStub{}, pkgcache.NewMemoryCache(), alertStub{}, noopMetrics{},
		nil, time.Minute, usecase.AlertConfig{})
	h := NewClientsEchoHandler(nil, uc, jobs)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, e *echo.Echo, method, target string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope (%d %s): %v", rec.Code, rec.Body.String(), err)
	}
	return rec, env
}

func TestSwitchProbabilityReturnsEstimate(t *testing.T) {
	e := newTestServer(nil)

	rec, env := doRequest(t, e, http.MethodGet, "/api/clients/c1/switch-probability?lookback_days=30", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("wire status = %d", rec.Code)
	}
	if env.Status != http.StatusOK {
		t.Fatalf("envelope status = %d", env.Status)
	}
	if cc := rec.Header().Get(echo.HeaderCacheControl); cc != "private, max-age=15" {
		t.Fatalf("cache-control = %q", cc)
	}

	var res models.SwitchProbability
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.ClientID != "c1" {
		t.Fatalf("client_id = %q", res.ClientID)
	}
	if res.Probability != 0.42 {
		t.Fatalf("probability = %v", res.Probability)
	}
}

func TestSwitchProbabilityRejectsShortLookback(t *testing.T) {
	e := newTestServer(nil)

	rec, env := doRequest(t, e, http.MethodGet, "/api/clients/c1/switch-probability?lookback_days=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("wire status = %d", rec.Code)
	}
	if env.Status != http.StatusBadRequest {
		t.Fatalf("envelope status = %d", env.Status)
	}

	var verrs []xhttp.ValidationError
	if err := json.Unmarshal(env.Data, &verrs); err != nil {
		t.Fatalf("decode validation errors: %v", err)
	}
	if len(verrs) != 1 {
		t.Fatalf("expected 1 validation error, got %d", len(verrs))
	}
	if verrs[0].Field != "lookback_days" || verrs[0].Code != "ERR_GTE" {
		t.Fatalf("unexpected validation error: %+v", verrs[0])
	}
}

func TestSwitchProbabilityRateLimits(t *testing.T) {
	e := newTestServer(nil)

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last, _ = doRequest(t, e, http.MethodGet, "/api/clients/c1/switch-probability", nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth request status = %d", last.Code)
	}
	if ra := last.Header().Get("Retry-After"); ra != "1" {
		t.Fatalf("retry-after = %q", ra)
	}
}

func TestPreviewEstimatesSuppliedTrades(t *testing.T) {
	e := newTestServer(nil)

	body := []byte(`{
		"client_id": "c7",
		"lookback_days": 30,
		"trades": [
			{"trade_id":"p-1","timestamp":"2025-06-01T10:00:00Z","instrument":"ES","side":"BUY","quantity":5,"price":101.5},
			{"trade_id":"p-2","timestamp":"not-a-time","instrument":"ES","side":"BUY","quantity":5,"price":101.5}
		]
	}`)
	rec, env := doRequest(t, e, http.MethodPost, "/api/switch-probability/preview", body)
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("status wire=%d envelope=%d", rec.Code, env.Status)
	}

	var res models.PreviewResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode preview response: %v", err)
	}
	if res.Result == nil || res.Result.ClientID != "c7" {
		t.Fatalf("unexpected result: %+v", res.Result)
	}
	if res.DroppedRecords != 1 {
		t.Fatalf("dropped_records = %d", res.DroppedRecords)
	}
}

func TestPreviewRequiresClientID(t *testing.T) {
	e := newTestServer(nil)

	rec, env := doRequest(t, e, http.MethodPost, "/api/switch-probability/preview", []byte(`{"lookback_days":30}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("wire status = %d", rec.Code)
	}
	if env.Status != http.StatusBadRequest {
		t.Fatalf("envelope status = %d", env.Status)
	}

	var verrs []xhttp.ValidationError
	if err := json.Unmarshal(env.Data, &verrs); err != nil {
		t.Fatalf("decode validation errors: %v", err)
	}
	if len(verrs) != 1 || verrs[0].Field != "client_id" || verrs[0].Code != "ERR_REQUIRED" {
		t.Fatalf("unexpected validation errors: %+v", verrs)
	}
}

func TestAnalyzeQueuesJob(t *testing.T) {
	jobs := &jobsStub{}
	e := newTestServer(jobs)

	rec, env := doRequest(t, e, http.MethodPost, "/api/clients/c9/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("wire status = %d", rec.Code)
	}
	if env.Status != http.StatusAccepted {
		t.Fatalf("envelope status = %d", env.Status)
	}

	var acc models.AnalyzeAccepted
	if err := json.Unmarshal(env.Data, &acc); err != nil {
		t.Fatalf("decode accepted: %v", err)
	}
	if acc.ClientID != "c9" || acc.JobID == "" {
		t.Fatalf("unexpected ack: %+v", acc)
	}

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if len(jobs.msgTypes) != 1 || jobs.msgTypes[0] != usecase.AnalyzeMessageType {
		t.Fatalf("unexpected message types: %v", jobs.msgTypes)
	}
	payload, ok := jobs.payloads[0].(usecase.AnalyzePayload)
	if !ok {
		t.Fatalf("payload type %T", jobs.payloads[0])
	}
	if payload.ClientID != "c9" || payload.JobID != acc.JobID {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.LookbackDays != 90 {
		t.Fatalf("lookback default = %d", payload.LookbackDays)
	}
}

func TestAnalyzeWithoutQueueConfigured(t *testing.T) {
	e := newTestServer(nil)

	rec, env := doRequest(t, e, http.MethodPost, "/api/clients/c9/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("wire status = %d", rec.Code)
	}
	if env.Status != http.StatusServiceUnavailable {
		t.Fatalf("envelope status = %d", env.Status)
	}

	var appErrs []*xhttp.AppError
	if err := json.Unmarshal(env.Data, &appErrs); err != nil {
		t.Fatalf("decode app errors: %v", err)
	}
	if len(appErrs) != 1 || appErrs[0].Code != "ERR_QUEUE_DISABLED" {
		t.Fatalf("unexpected app errors: %+v", appErrs)
	}
}

func TestAnalyzePublishFailure(t *testing.T) {
	jobs := &jobsStub{err: fmt.Errorf("redis down")}
	e := newTestServer(jobs)

	rec, env := doRequest(t, e, http.MethodPost, "/api/clients/c9/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("wire status = %d", rec.Code)
	}
	if env.Status != http.StatusInternalServerError {
		t.Fatalf("envelope status = %d", env.Status)
	}
}
