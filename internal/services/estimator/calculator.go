package estimator

import (
	"fmt"

	"ClientPulse/internal/domain/models"
	"ClientPulse/pkg/logger"
)

// Score caps per signal. Raw probability is baseline plus the five scores,
// then clamped into [probFloor, probCeil].
const (
	maxPatternScore     = 0.30
	maxChangePointScore = 0.25
	maxMomentumScore    = 0.20
	maxFlipScore        = 0.15
	maxDriftScore       = 0.10

	probFloor = 0.15
	probCeil  = 0.85

	// signalFloor doubles as the per-signal failure fallback.
	signalFloor = 0.05

	// minTradingDays gates estimation; below it the baseline result is
	// returned and no signal runs.
	minTradingDays = 7
)

// Signal names as they appear in result errors, logs and metrics.
const (
	SignalPatternInstability = "pattern_instability"
	SignalChangePoint        = "change_point"
	SignalMomentumShift      = "momentum_shift"
	SignalFlipAcceleration   = "flip_acceleration"
	SignalFeatureDrift       = "feature_drift"
)

// Config is the estimation window setup. Zero fields take defaults; two
// calculators with different configs are fully independent.
type Config struct {
	LookbackDays int
	WindowDays   int
	Baseline     float64
}

func DefaultConfig() Config {
	return Config{LookbackDays: 90, WindowDays: 14, Baseline: 0.30}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LookbackDays <= 0 {
		c.LookbackDays = def.LookbackDays
	}
	if c.WindowDays < 2 {
		c.WindowDays = def.WindowDays
	}
	if c.Baseline <= 0 || c.Baseline >= 1 {
		c.Baseline = def.Baseline
	}
	return c
}

// Calculator computes switch probabilities. It is pure and safe for
// concurrent use; all state is the immutable config.
type Calculator struct {
	cfg Config
	log *logger.Logger
}

func NewCalculator(cfg Config, log *logger.Logger) *Calculator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Calculator{cfg: cfg.withDefaults(), log: log}
}

// recentDays is the "recent" slice of the window: half the rolling window,
// 7 days under the default setup.
func (c *Calculator) recentDays() int {
	r := c.cfg.WindowDays / 2
	if r < 1 {
		r = 1
	}
	return r
}

// Estimate computes the switch probability for one client. Positions are
// reserved (flips derive from the trade stream). lookbackDays <= 0 means the
// configured default. The call never fails: malformed records are dropped,
// and a panicking signal degrades to its floor score with the cause recorded
// on the result.
func (c *Calculator) Estimate(clientID string, trades []models.TradeRecord, positions []models.PositionSnapshot, features models.BehaviorFeatures, lookbackDays int) *models.SwitchProbability {
	_ = positions

	if lookbackDays <= 0 {
		lookbackDays = c.cfg.LookbackDays
	}

	norm := normalize(trades, lookbackDays)
	if norm.dropped > 0 {
		c.log.Debug("dropped malformed trade records",
			logger.String("client_id", clientID),
			logger.Int("dropped", norm.dropped),
			logger.Int("kept", norm.kept))
	}

	res := &models.SwitchProbability{ClientID: clientID}

	if len(norm.days) < minTradingDays {
		res.Probability = c.cfg.Baseline
		res.Reasoning = insufficientReason
		return res
	}

	days := norm.days
	comp := models.ComponentScores{
		PatternInstability: c.runSignal(res, SignalPatternInstability, func() float64 { return c.patternInstability(days) }),
		ChangePoint:        c.runSignal(res, SignalChangePoint, func() float64 { return c.changePoint(days) }),
		MomentumShift:      c.runSignal(res, SignalMomentumShift, func() float64 { return c.momentumShift(days) }),
		FlipAcceleration:   c.runSignal(res, SignalFlipAcceleration, func() float64 { return c.flipAcceleration(days) }),
		FeatureDrift:       c.runSignal(res, SignalFeatureDrift, func() float64 { return featureDrift(features) }),
	}

	raw := c.cfg.Baseline +
		comp.PatternInstability +
		comp.ChangePoint +
		comp.MomentumShift +
		comp.FlipAcceleration +
		comp.FeatureDrift

	res.Components = comp
	res.Probability = clamp(raw, probFloor, probCeil)
	res.Reasoning = buildReasoning(res.Probability, comp)
	return res
}

// runSignal isolates one signal so a failure cannot take down the estimate:
// a panic is recovered, logged, recorded on the result and replaced by the
// floor score.
func (c *Calculator) runSignal(res *models.SwitchProbability, name string, fn func() float64) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			score = signalFloor
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[name] = fmt.Sprintf("%v", r)
			c.log.Warn("signal failed, using fallback score",
				logger.String("signal", name),
				logger.String("client_id", res.ClientID),
				logger.Any("cause", r))
		}
	}()
	return fn()
}
