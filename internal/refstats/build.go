package refstats

import (
	"fmt"
	"math"
	"sort"

	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// Build computes the reference statistics of every definition over the full
// population of ds. Definitions without a single value in ds are left out.
// Statistics are rounded to two decimals.
func Build(defs []Definition, ds *territory.Dataset) (*Catalog, error) {
	descriptors := make([]Descriptor, 0, len(defs))
	for _, def := range defs {
		if def.Category != CategorySocio && def.Category != CategoryAccess {
			return nil, fmt.Errorf("build %s catalog: %q: unknown category %q", ds.Granularity(), def.Label, def.Category)
		}
		values := ds.Values(def.Column)
		if len(values) == 0 {
			continue
		}
		descriptors = append(descriptors, Descriptor{
			Label:                   def.Label,
			Column:                  def.Column,
			Category:                def.Category,
			VulnerabilityIncreasing: def.VulnerabilityIncreasing,
			Unit:                    def.Unit,
			Stats:                   Summarize(values),
		})
	}
	return NewCatalog(ds.Granularity(), descriptors)
}

// Summarize returns the rounded distribution summary of values. values must
// not be empty; it is not modified.
func Summarize(values []float64) Stats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return Stats{
		Min:    round2(sorted[0]),
		Max:    round2(sorted[len(sorted)-1]),
		P5:     round2(Percentile(sorted, 5)),
		Q1:     round2(Percentile(sorted, 25)),
		Median: round2(Percentile(sorted, 50)),
		Q3:     round2(Percentile(sorted, 75)),
		P95:    round2(Percentile(sorted, 95)),
	}
}

// Percentile returns the p-th percentile (0..100) of an ascending slice using
// linear interpolation between closest ranks:
//
//	rank = p/100 × (n-1)
//
// An empty slice yields NaN.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
