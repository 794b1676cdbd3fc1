package scoring

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidAlpha       = errors.New("alpha must be within [0, 1]")
	ErrNegativeWeight     = errors.New("weights must be non-negative numbers")
	ErrUnknownVariable    = errors.New("unknown variable")
	ErrUnknownGranularity = errors.New("unknown granularity")
)

// Weights maps a variable label to its relative importance. Only the ratios
// matter: scaling every weight by the same factor leaves scores unchanged.
type Weights map[string]float64

// UniformWeights gives every label the same weight.
func UniformWeights(labels []string, w float64) Weights {
	out := make(Weights, len(labels))
	for _, l := range labels {
		out[l] = w
	}
	return out
}

// Sum returns the total weight of the given labels. Labels without an entry
// count as 0.
func (w Weights) Sum(labels []string) float64 {
	var total float64
	for _, l := range labels {
		total += w[l]
	}
	return total
}

// Validate rejects negative, NaN and infinite weights on the given labels.
// Entries for labels outside the selection are ignored.
func (w Weights) Validate(labels []string) error {
	for _, label := range labels {
		v, ok := w[label]
		if !ok {
			continue
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %q = %v", ErrNegativeWeight, label, v)
		}
	}
	return nil
}

// ValidateAlpha checks the blend parameter of the combiner.
func ValidateAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}
	return nil
}
