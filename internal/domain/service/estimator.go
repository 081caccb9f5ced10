package service

import (
	"ClientPulse/internal/domain/models"
)

// SwitchEstimator computes the probability that a client is about to switch
// trading strategy. Positions are accepted but reserved; flips derive from
// the trade stream. A nil or partial feature map is valid input. The call is
// pure and never fails: bad records are dropped and signal errors degrade to
// per-signal defaults recorded on the result.
type SwitchEstimator interface {
	Estimate(clientID string, trades []models.TradeRecord, positions []models.PositionSnapshot, features models.BehaviorFeatures, lookbackDays int) *models.SwitchProbability
}
