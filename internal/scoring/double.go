package scoring

import "github.com/MikeSquared-Agency/Territoires/internal/territory"

// ComputeDoubleVulnerability adds score_double to a copy of ds:
//
//	score_double = alpha*score_socio + (1-alpha)*score_access
//
// A unit missing either input gets no score, as does every unit when one of
// the input columns has not been computed.
func ComputeDoubleVulnerability(ds *territory.Dataset, alpha float64) (*territory.Dataset, error) {
	if err := ValidateAlpha(alpha); err != nil {
		return nil, err
	}
	scores := make([]*float64, ds.Len())
	if !ds.HasScore(territory.ColumnSocio) || !ds.HasScore(territory.ColumnAccess) {
		return ds.WithScore(territory.ColumnDouble, scores)
	}

	units := ds.Units()
	for i := range units {
		socio, access := units[i].Scores.Socio, units[i].Scores.Access
		if socio == nil || access == nil {
			continue
		}
		s := round2(alpha*(*socio) + (1-alpha)*(*access))
		scores[i] = &s
	}
	return ds.WithScore(territory.ColumnDouble, scores)
}
