package models

// Requests for the clients API. Defined in domain for consistency and reuse.

type SwitchProbabilityRequest struct {
	ClientID     string `param:"id" json:"client_id" validate:"required"`
	LookbackDays int    `query:"lookback_days" json:"lookback_days" default:"90" validate:"gte=14,lte=365"`
	Refresh      bool   `query:"refresh" json:"refresh"`
}

type PreviewRequest struct {
	ClientID     string             `json:"client_id" validate:"required"`
	LookbackDays int                `json:"lookback_days" default:"90" validate:"gte=14,lte=365"`
	Trades       []RawTradeRecord   `json:"trades"`
	Features     map[string]float64 `json:"features"`
}

type AnalyzeRequest struct {
	ClientID     string `param:"id" json:"client_id" validate:"required"`
	LookbackDays int    `query:"lookback_days" json:"lookback_days" default:"90" validate:"gte=14,lte=365"`
}

// PreviewResponse pairs the estimate with the number of supplied records
// that failed validation and were excluded.
type PreviewResponse struct {
	Result         *SwitchProbability `json:"result"`
	DroppedRecords int                `json:"dropped_records"`
}

// AnalyzeAccepted acknowledges a queued background analysis.
type AnalyzeAccepted struct {
	JobID    string `json:"job_id"`
	ClientID string `json:"client_id"`
}
