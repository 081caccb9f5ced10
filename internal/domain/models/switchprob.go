package models

import "time"

// ReasonInsufficientHistory is the reasoning text emitted when a client has
// too little history for signal computation.
const ReasonInsufficientHistory = "insufficient trading history"

// ComponentScores holds the per-signal contributions to the switch probability.
type ComponentScores struct {
	PatternInstability float64 `json:"pattern_instability"`
	ChangePoint        float64 `json:"change_point"`
	MomentumShift      float64 `json:"momentum_shift"`
	FlipAcceleration   float64 `json:"flip_acceleration"`
	FeatureDrift       float64 `json:"feature_drift"`
}

// SwitchProbability is the estimator output for one client. Errors records
// per-signal fallbacks (signal name to cause); empty when every signal ran
// clean. ComputedAt labels the result and never feeds the computation.
type SwitchProbability struct {
	ClientID    string            `json:"client_id"`
	ComputedAt  time.Time         `json:"computed_at"`
	Probability float64           `json:"switch_probability"`
	Components  ComponentScores   `json:"components"`
	Reasoning   string            `json:"reasoning"`
	Errors      map[string]string `json:"errors,omitempty"`
}
