package autoscaler

import (
	"fmt"
	"math"
)

// candidate is the winning threshold's verdict for one policy evaluation.
type candidate struct {
	direction       Direction
	scaleFactor     float64
	cooldownSeconds int
	reason          string
}

// evaluatePolicy combines every threshold's candidate direction for one
// policy (spec.md §4.9 step 1-2): a threshold fires Up if its metric is
// above scale_up_threshold, Down if below scale_down_threshold, else
// Maintain; the policy's overall direction is the highest-ranked
// candidate across its thresholds (Up > Down > Maintain).
func evaluatePolicy(policy Policy, metrics map[string]float64) candidate {
	best := candidate{direction: Maintain}

	for _, th := range policy.Thresholds {
		value, ok := metrics[th.MetricName]
		if !ok {
			continue
		}

		var dir Direction
		switch {
		case value > th.ScaleUpThreshold:
			dir = Up
		case value < th.ScaleDownThreshold:
			dir = Down
		default:
			dir = Maintain
		}

		if directionRank(dir) > directionRank(best.direction) {
			best = candidate{
				direction:       dir,
				scaleFactor:     th.ScaleFactor,
				cooldownSeconds: th.CooldownSeconds,
				reason: fmt.Sprintf("%s=%.2f outside [%.2f,%.2f]",
					th.MetricName, value, th.ScaleDownThreshold, th.ScaleUpThreshold),
			}
		}
	}

	return best
}

// clampCapacity projects currentCapacity through the candidate's direction
// and scale factor, then clamps it into the policy's [min, max] bounds
// (spec.md §4.9 step 4). Up rounds the projection up, Down rounds it down,
// so a scale factor of 1.0 never produces a no-op projection by rounding
// error alone.
func clampCapacity(currentCapacity int, c candidate, policy Policy) int {
	var projected float64
	switch c.direction {
	case Up:
		projected = math.Ceil(float64(currentCapacity) * c.scaleFactor)
		if projected <= float64(currentCapacity) {
			projected = float64(currentCapacity + 1)
		}
	case Down:
		projected = math.Floor(float64(currentCapacity) / c.scaleFactor)
		if projected >= float64(currentCapacity) && currentCapacity > 0 {
			projected = float64(currentCapacity - 1)
		}
	default:
		return currentCapacity
	}

	target := int(projected)
	if policy.MinCapacity != nil && target < *policy.MinCapacity {
		target = *policy.MinCapacity
	}
	if policy.MaxCapacity != nil && target > *policy.MaxCapacity {
		target = *policy.MaxCapacity
	}
	return target
}
