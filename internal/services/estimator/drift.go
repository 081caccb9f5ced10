package estimator

import (
	"math"

	"ClientPulse/internal/domain/models"
)

// featureDrift applies threshold rules to the behavioral feature vector.
// Each feature drifting outside its normal band adds a fixed contribution;
// absent features contribute nothing, so a client without a feature row
// scores exactly 0. Contributions are summed in hundredths so the 0.10 cap
// is exact. Capped at 0.10.
func featureDrift(features models.BehaviorFeatures) float64 {
	if len(features) == 0 {
		return 0
	}

	pts := 0
	if v, ok := features[models.FeatureMomentumBeta]; ok {
		if a := math.Abs(v); a < 0.2 || a > 0.9 {
			pts += 3
		}
	}
	if v, ok := features[models.FeatureHoldingPeriod]; ok {
		if v < 2 || v > 60 {
			pts += 3
		}
	}
	if v, ok := features[models.FeatureAggressiveness]; ok {
		if v < 0.2 || v > 0.9 {
			pts += 4
		}
	}
	if pts > 10 {
		pts = 10
	}
	return float64(pts) / 100
}
