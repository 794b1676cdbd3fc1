package scoring

import (
	"fmt"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// WeightedVariable is a socio-economic variable resolved against the catalog
// of the active granularity, with its weight.
type WeightedVariable struct {
	refstats.Descriptor
	Weight float64 `json:"weight"`
}

// ResolveSocio resolves the selected labels once, ahead of scoring. Labels
// that are not socio variables of the catalog's granularity are returned in
// skipped rather than failing the request; this tolerates selections carried
// over from another granularity. A label selected twice is resolved once.
// A label with no weight entry gets weight 0.
func ResolveSocio(cat *refstats.Catalog, labels []string, weights Weights) ([]WeightedVariable, []string, error) {
	if err := weights.Validate(labels); err != nil {
		return nil, nil, err
	}
	var (
		vars    []WeightedVariable
		skipped []string
		seen    = make(map[string]bool, len(labels))
	)
	for _, label := range labels {
		if seen[label] {
			continue
		}
		seen[label] = true
		d, ok := cat.Lookup(label)
		if !ok || d.Category != refstats.CategorySocio {
			skipped = append(skipped, label)
			continue
		}
		vars = append(vars, WeightedVariable{Descriptor: d, Weight: weights[label]})
	}
	return vars, skipped, nil
}

// ComputeSocioScore adds score_socio to a copy of ds.
//
// Each variable is normalized against its national reference range and
// weighted by weight/total. A unit missing a variable gets a neutral 0 for
// that term, the weight share of the other terms is unchanged. A unit
// missing every variable gets no score. With no variables, or a zero total
// weight, the whole column is undefined.
func ComputeSocioScore(ds *territory.Dataset, vars []WeightedVariable) (*territory.Dataset, error) {
	scores := make([]*float64, ds.Len())

	var total float64
	for _, v := range vars {
		if v.Weight < 0 {
			return nil, fmt.Errorf("%w: %q = %v", ErrNegativeWeight, v.Label, v.Weight)
		}
		total += v.Weight
	}
	if len(vars) == 0 || total <= 0 {
		return ds.WithScore(territory.ColumnSocio, scores)
	}

	units := ds.Units()
	for i := range units {
		var (
			sum       float64
			available bool
		)
		for _, v := range vars {
			n := Normalize(units[i].Value(v.Column), v.Stats.Min, v.Stats.Max, v.VulnerabilityIncreasing)
			if n == nil {
				continue
			}
			available = true
			sum += *n * v.Weight / total
		}
		if available {
			s := round2(sum * 100)
			scores[i] = &s
		}
	}
	return ds.WithScore(territory.ColumnSocio, scores)
}
