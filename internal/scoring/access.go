package scoring

import (
	"fmt"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// ResolveAccess resolves the selected professional category to its
// accessibility indicator.
func ResolveAccess(cat *refstats.Catalog, label string) (*refstats.Descriptor, error) {
	d, ok := cat.Lookup(label)
	if !ok || d.Category != refstats.CategoryAccess {
		return nil, fmt.Errorf("%w: %q is not an access variable for %s", ErrUnknownVariable, label, cat.Granularity())
	}
	return &d, nil
}

// ComputeAccessScore adds score_access to a copy of ds. Accessibility is
// always read as "higher is less vulnerable", whatever the descriptor says,
// so that a high score means difficult access. A nil descriptor, or an
// indicator absent from the dataset, leaves the whole column undefined.
func ComputeAccessScore(ds *territory.Dataset, access *refstats.Descriptor) (*territory.Dataset, error) {
	scores := make([]*float64, ds.Len())
	if access == nil || !ds.HasColumn(access.Column) {
		return ds.WithScore(territory.ColumnAccess, scores)
	}

	units := ds.Units()
	for i := range units {
		n := Normalize(units[i].Value(access.Column), access.Stats.Min, access.Stats.Max, false)
		if n == nil {
			continue
		}
		s := round2(*n * 100)
		scores[i] = &s
	}
	return ds.WithScore(territory.ColumnAccess, scores)
}
