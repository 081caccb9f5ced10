package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ClientPulse/internal/domain/models"
	domrepo "ClientPulse/internal/domain/repository"
	domsvc "ClientPulse/internal/domain/service"
	"ClientPulse/internal/services/estimator"
	pkgcache "ClientPulse/pkg/cache"
	applogger "ClientPulse/pkg/logger"
)

// AlertConfig controls switch alert emission.
type AlertConfig struct {
	Enabled   bool
	Threshold float64
	MinJump   float64
}

// SwitchUsecase computes switch probabilities from stored history, caches
// results, and emits alerts on significant jumps.
type SwitchUsecase struct {
	history  domrepo.TradeHistory
	est      domsvc.SwitchEstimator
	cache    pkgcache.Service // optional
	alerts   domrepo.AlertPublisher
	metrics  domrepo.Metrics
	log      *applogger.Logger
	cacheTTL time.Duration
	alertCfg AlertConfig
	timeout  time.Duration
}

func NewSwitchUsecase(
	history domrepo.TradeHistory,
	est domsvc.SwitchEstimator,
	cache pkgcache.Service,
	alerts domrepo.AlertPublisher,
	metrics domrepo.Metrics,
	lgr *applogger.Logger,
	cacheTTL time.Duration,
	alertCfg AlertConfig,
) *SwitchUsecase {
	if lgr == nil {
		lgr = applogger.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &SwitchUsecase{
		history:  history,
		est:      est,
		cache:    cache,
		alerts:   alerts,
		metrics:  metrics,
		log:      lgr,
		cacheTTL: cacheTTL,
		alertCfg: alertCfg,
		timeout:  10 * time.Second,
	}
}

type EstimateParams struct {
	ClientID     string
	LookbackDays int
	Refresh      bool
}

// Estimate returns the switch probability for a client, serving from cache
// unless Refresh is set.
func (uc *SwitchUsecase) Estimate(ctx context.Context, p EstimateParams) (*models.SwitchProbability, error) {
	if p.ClientID == "" {
		return nil, fmt.Errorf("client_id required")
	}
	lookback := domrepo.NormalizeLookback(p.LookbackDays)

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	cacheKey := pkgcache.GenerateKeyWithParams("switch", p.ClientID, lookback)
	if uc.cache != nil && !p.Refresh {
		if cached, ok := uc.cacheGet(ctx, cacheKey); ok {
			uc.log.Debug("switch estimate cache hit",
				applogger.String("client_id", p.ClientID),
				applogger.Int("lookback_days", lookback))
			return cached, nil
		}
		won, release := uc.lockEstimate(ctx, cacheKey)
		if won {
			defer release()
		} else if cached, ok := uc.waitForPeer(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	start := time.Now()
	trades, positions, features, err := uc.loadHistory(ctx, p.ClientID, lookback)
	if err != nil {
		uc.metrics.RecordError("history_trades")
		return nil, err
	}

	res := uc.est.Estimate(p.ClientID, trades, positions, features, lookback)
	res.ComputedAt = time.Now().UTC()

	uc.metrics.RecordSwitchProbability(p.ClientID, res.Probability)
	for sig := range res.Errors {
		uc.metrics.RecordSignalFallback(sig)
	}
	if res.Reasoning == models.ReasonInsufficientHistory {
		uc.metrics.RecordInsufficientHistory()
	}
	uc.metrics.RecordLatency("estimate", time.Since(start).Seconds())

	uc.log.Info("switch estimate computed",
		applogger.String("client_id", p.ClientID),
		applogger.Int("lookback_days", lookback),
		applogger.Int("trades", len(trades)),
		applogger.Float64("probability", res.Probability))

	uc.maybeAlert(ctx, res)
	uc.cacheSet(ctx, cacheKey, res)
	uc.rememberLast(ctx, p.ClientID, res.Probability)

	return res, nil
}

// loadHistory fans out the three reads. Trades are required; missing
// positions or features degrade to nil inputs.
func (uc *SwitchUsecase) loadHistory(ctx context.Context, clientID string, lookback int) ([]models.TradeRecord, []models.PositionSnapshot, models.BehaviorFeatures, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -lookback)

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.history.GetTrades(ctx, clientID, from, to)
		ch <- item{"trades", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.history.GetPositions(ctx, clientID)
		ch <- item{"positions", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.history.GetFeatures(ctx, clientID)
		ch <- item{"features", v, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	var (
		trades    []models.TradeRecord
		positions []models.PositionSnapshot
		features  models.BehaviorFeatures
		tradesErr error
	)
	for it := range ch {
		if it.err != nil {
			if it.name == "trades" {
				tradesErr = it.err
				continue
			}
			uc.metrics.RecordError("history_" + it.name)
			uc.log.Warn("history read degraded",
				applogger.String("client_id", clientID),
				applogger.String("source", it.name),
				applogger.Error(it.err))
			continue
		}
		switch it.name {
		case "trades":
			trades = it.val.([]models.TradeRecord)
		case "positions":
			positions = it.val.([]models.PositionSnapshot)
		case "features":
			features = it.val.(models.BehaviorFeatures)
		}
	}
	if tradesErr != nil {
		return nil, nil, nil, fmt.Errorf("load trades: %w", tradesErr)
	}
	return trades, positions, features, nil
}

type PreviewParams struct {
	ClientID     string
	LookbackDays int
	Trades       []models.RawTradeRecord
	Features     map[string]float64
}

// Preview estimates against caller-supplied trades without touching storage,
// cache, or alerts. Returns the result and the count of dropped records.
func (uc *SwitchUsecase) Preview(ctx context.Context, p PreviewParams) (*models.SwitchProbability, int, error) {
	if p.ClientID == "" {
		return nil, 0, fmt.Errorf("client_id required")
	}
	lookback := domrepo.NormalizeLookback(p.LookbackDays)

	start := time.Now()
	records, dropped := estimator.NormalizeRaw(p.Trades, p.ClientID)

	res := uc.est.Estimate(p.ClientID, records, nil, p.Features, lookback)
	res.ComputedAt = time.Now().UTC()

	for sig := range res.Errors {
		uc.metrics.RecordSignalFallback(sig)
	}
	if res.Reasoning == models.ReasonInsufficientHistory {
		uc.metrics.RecordInsufficientHistory()
	}
	uc.metrics.RecordLatency("preview", time.Since(start).Seconds())

	if dropped > 0 {
		uc.log.Debug("preview dropped malformed records",
			applogger.String("client_id", p.ClientID),
			applogger.Int("dropped", dropped))
	}
	return res, dropped, nil
}

// maybeAlert publishes a switch alert when the probability crosses the
// threshold with a significant jump over the last known value. The first
// observation for a client only seeds the baseline.
func (uc *SwitchUsecase) maybeAlert(ctx context.Context, res *models.SwitchProbability) {
	if !uc.alertCfg.Enabled || uc.alerts == nil || uc.cache == nil {
		return
	}
	old, ok := uc.lastKnown(ctx, res.ClientID)
	if !ok {
		return
	}
	if res.Probability < uc.alertCfg.Threshold || res.Probability-old < uc.alertCfg.MinJump {
		return
	}

	alert := &models.SwitchAlert{
		Type:          models.AlertTypeSwitchProbability,
		ClientID:      res.ClientID,
		OldSwitchProb: old,
		NewSwitchProb: res.Probability,
		Reason:        res.Reasoning,
		Timestamp:     res.ComputedAt,
	}
	if err := uc.alerts.PublishAlert(ctx, alert); err != nil {
		uc.metrics.RecordError("alert_publish")
		uc.log.Error("switch alert publish failed",
			applogger.String("client_id", res.ClientID),
			applogger.Error(err))
		return
	}
	uc.log.Info("switch alert published",
		applogger.String("client_id", res.ClientID),
		applogger.Float64("old", old),
		applogger.Float64("new", res.Probability))
}

// lockEstimate takes a short lock on the cache key so concurrent misses for
// the same client do not recompute in parallel. Lock errors fall back to
// computing; correctness never depends on the lock.
func (uc *SwitchUsecase) lockEstimate(ctx context.Context, cacheKey string) (bool, func()) {
	lockKey := pkgcache.GenerateKey("lock", cacheKey)
	ok, err := uc.cache.TryLock(ctx, lockKey, 10*time.Second)
	if err != nil {
		return true, func() {}
	}
	if !ok {
		return false, nil
	}
	return true, func() { _ = uc.cache.Unlock(ctx, lockKey) }
}

// waitForPeer polls the cache while another instance holds the estimate lock.
// Gives up after a short window and lets the caller compute anyway.
func (uc *SwitchUsecase) waitForPeer(ctx context.Context, cacheKey string) (*models.SwitchProbability, bool) {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(1500 * time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline:
			return nil, false
		case <-tick.C:
			if cached, ok := uc.cacheGet(ctx, cacheKey); ok {
				return cached, true
			}
		}
	}
}

func (uc *SwitchUsecase) cacheGet(ctx context.Context, key string) (*models.SwitchProbability, bool) {
	raw, err := uc.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var out models.SwitchProbability
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}
	return &out, true
}

func (uc *SwitchUsecase) cacheSet(ctx context.Context, key string, res *models.SwitchProbability) {
	if uc.cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := uc.cache.Set(ctx, key, string(b), uc.cacheTTL); err != nil {
		uc.metrics.RecordError("cache_set")
	}
}

func (uc *SwitchUsecase) lastKnown(ctx context.Context, clientID string) (float64, bool) {
	key := pkgcache.GenerateKey("switch:last", clientID)
	raw, err := uc.cache.Get(ctx, key)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		// Drop the corrupt entry so the next pass reseeds it.
		_ = uc.cache.Delete(ctx, key)
		return 0, false
	}
	return v, true
}

func (uc *SwitchUsecase) rememberLast(ctx context.Context, clientID string, p float64) {
	if uc.cache == nil {
		return
	}
	key := pkgcache.GenerateKey("switch:last", clientID)
	if err := uc.cache.Set(ctx, key, strconv.FormatFloat(p, 'f', -1, 64), 0); err != nil {
		uc.metrics.RecordError("cache_set")
	}
}
