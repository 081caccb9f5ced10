package usecase

import (
	"context"
	"fmt"

	applogger "ClientPulse/pkg/logger"
	"ClientPulse/pkg/queue"
)

// AnalyzeMessageType is the queue message type for background analysis.
const AnalyzeMessageType = "client.analyze"

// AnalyzePayload is the queue payload for one analysis request. JobID is
// minted by the enqueuer so API responses and worker logs correlate.
type AnalyzePayload struct {
	ClientID     string `json:"client_id"`
	LookbackDays int    `json:"lookback_days"`
	JobID        string `json:"job_id,omitempty"`
}

// AnalyzeJob recomputes a client's switch probability in the background,
// bypassing the result cache.
type AnalyzeJob struct {
	uc  *SwitchUsecase
	log *applogger.Logger
}

func NewAnalyzeJob(uc *SwitchUsecase, lgr *applogger.Logger) *AnalyzeJob {
	if lgr == nil {
		lgr = applogger.NewNop()
	}
	return &AnalyzeJob{uc: uc, log: lgr}
}

func (j *AnalyzeJob) Name() string { return "client-analyze" }

func (j *AnalyzeJob) Type() string { return AnalyzeMessageType }

func (j *AnalyzeJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[AnalyzePayload](payload)
	if err != nil {
		return fmt.Errorf("parse analyze payload: %w", err)
	}
	if p.ClientID == "" {
		return fmt.Errorf("analyze payload missing client_id")
	}

	res, err := j.uc.Estimate(ctx, EstimateParams{
		ClientID:     p.ClientID,
		LookbackDays: p.LookbackDays,
		Refresh:      true,
	})
	if err != nil {
		return fmt.Errorf("analyze %s: %w", p.ClientID, err)
	}

	j.log.Info("background analysis done",
		applogger.String("client_id", p.ClientID),
		applogger.String("job_id", p.JobID),
		applogger.Float64("probability", res.Probability))
	return nil
}

var _ queue.Job = (*AnalyzeJob)(nil)
