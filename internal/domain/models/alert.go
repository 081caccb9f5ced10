package models

import "time"

const AlertTypeSwitchProbability = "switch_probability_alert"

// SwitchAlert is published to the alerts topic when a client's switch
// probability crosses the alert threshold with a significant jump.
type SwitchAlert struct {
	Type          string    `json:"type"`
	ClientID      string    `json:"client_id"`
	OldSwitchProb float64   `json:"old_switch_prob"`
	NewSwitchProb float64   `json:"new_switch_prob"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}
