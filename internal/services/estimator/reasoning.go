package estimator

import (
	"fmt"
	"strings"

	"ClientPulse/internal/domain/models"
)

const insufficientReason = models.ReasonInsufficientHistory

// Notable floors: components below these stay out of the reasoning string.
const (
	notableMajor = 0.10 // change point, pattern instability, momentum
	notableMinor = 0.08 // flip acceleration, feature drift
)

// buildReasoning lists the notable components in descending weight order,
// each with its numeric value, under a coarse risk level.
func buildReasoning(prob float64, comp models.ComponentScores) string {
	var factors []string

	if comp.ChangePoint > 0.15 {
		factors = append(factors, fmt.Sprintf("Recent regime change detected (%.2f)", comp.ChangePoint))
	} else if comp.ChangePoint > notableMajor {
		factors = append(factors, fmt.Sprintf("Possible regime shift (%.2f)", comp.ChangePoint))
	}
	if comp.PatternInstability > 0.15 {
		factors = append(factors, fmt.Sprintf("High pattern instability (%.2f)", comp.PatternInstability))
	} else if comp.PatternInstability > notableMajor {
		factors = append(factors, fmt.Sprintf("Moderate pattern variance (%.2f)", comp.PatternInstability))
	}
	if comp.MomentumShift > notableMajor {
		factors = append(factors, fmt.Sprintf("Frequent direction changes (%.2f)", comp.MomentumShift))
	}
	if comp.FlipAcceleration > notableMinor {
		factors = append(factors, fmt.Sprintf("Accelerating position flips (%.2f)", comp.FlipAcceleration))
	}
	if comp.FeatureDrift > notableMinor {
		factors = append(factors, fmt.Sprintf("Significant feature drift (%.2f)", comp.FeatureDrift))
	}

	level := "LOW"
	switch {
	case prob > 0.60:
		level = "HIGH"
	case prob > 0.40:
		level = "MODERATE"
	}

	if len(factors) == 0 {
		return fmt.Sprintf("%s risk of strategy switch. Stable behavior patterns", level)
	}
	return fmt.Sprintf("%s risk of strategy switch. Factors: %s", level, strings.Join(factors, ", "))
}
