package scoring

import "math"

// Normalize maps a raw value onto [0,1] against a reference range.
//
// A nil, NaN or infinite value yields nil. A degenerate range (max == min)
// yields exactly 0 whatever the direction, so that a variable with no spread
// adds nothing to a composite score. Values outside the range are clipped.
// When vulnerabilityIncreasing is false the result is inverted, so that 1
// always means "most vulnerable".
func Normalize(value *float64, min, max float64, vulnerabilityIncreasing bool) *float64 {
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return nil
	}
	if max == min {
		zero := 0.0
		return &zero
	}
	n := (clamp(*value, min, max) - min) / (max - min)
	if !vulnerabilityIncreasing {
		n = 1 - n
	}
	return &n
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
