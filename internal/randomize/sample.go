package randomize

import (
	"math"
	"math/rand"
)

// RampFactor returns the linear schedule multiplier in [0, 1]: zero effect
// at step 0, full effect once step reaches scheduleSteps.
func RampFactor(step, scheduleSteps int) float64 {
	if scheduleSteps <= 0 {
		return 1
	}
	if step <= 0 {
		return 0
	}
	if step >= scheduleSteps {
		return 1
	}
	return float64(step) / float64(scheduleSteps)
}

// draw produces one raw sample for a single axis.
func draw(rng *rand.Rand, dist Distribution, bounds Range) float64 {
	switch dist {
	case DistributionUniform:
		return bounds.Lo + rng.Float64()*(bounds.Hi-bounds.Lo)
	case DistributionLoguniform:
		logLo := math.Log(bounds.Lo)
		logHi := math.Log(bounds.Hi)
		return math.Exp(logLo + rng.Float64()*(logHi-logLo))
	case DistributionGaussian:
		std := (bounds.Hi - bounds.Lo) / 2
		return rng.NormFloat64() * std
	default:
		return 0
	}
}

// ramp scales a sample's magnitude toward its neutral element: 0 for
// additive rules, 1 for scaling rules.
func ramp(sample float64, op Operation, factor float64) float64 {
	if factor >= 1 {
		return sample
	}
	switch op {
	case OperationScaling:
		return 1 + (sample-1)*factor
	default:
		return sample * factor
	}
}

// quantize snaps a sample onto one of numBuckets equal-width levels
// spanning the range, using bucket midpoints.
func quantize(sample float64, bounds Range, numBuckets int) float64 {
	if numBuckets <= 0 || bounds.Hi == bounds.Lo {
		return sample
	}
	width := (bounds.Hi - bounds.Lo) / float64(numBuckets)
	idx := int(math.Floor((sample - bounds.Lo) / width))
	if idx < 0 {
		idx = 0
	}
	if idx >= numBuckets {
		idx = numBuckets - 1
	}
	return bounds.Lo + (float64(idx)+0.5)*width
}

// sampleRule draws the per-group values for one rule at the given step.
// Bucketed rules get one quantized draw per bucket; everything else gets
// one draw per simulated instance. groups[g][axis] is the sampled value.
func sampleRule(rng *rand.Rand, rule Rule, step, instances int) [][]float64 {
	groupCount := instances
	if rule.NumBuckets > 0 {
		groupCount = rule.NumBuckets
	}
	if groupCount < 1 {
		groupCount = 1
	}
	factor := 1.0
	if rule.Schedule == ScheduleLinear {
		factor = RampFactor(step, rule.ScheduleSteps)
	}
	groups := make([][]float64, groupCount)
	for g := range groups {
		values := make([]float64, len(rule.Ranges))
		for axis, bounds := range rule.Ranges {
			v := draw(rng, rule.Distribution, bounds)
			if rule.NumBuckets > 0 {
				v = quantize(v, bounds, rule.NumBuckets)
			}
			values[axis] = ramp(v, rule.Operation, factor)
		}
		groups[g] = values
	}
	return groups
}
