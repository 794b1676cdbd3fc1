package scoring

import (
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// Contribution captures one variable's share of a unit's socio score.
// Normalized is on [0,1]; Weighted is in score points.
type Contribution struct {
	Label      string   `json:"label"`
	Column     string   `json:"column"`
	Raw        *float64 `json:"raw"`
	Normalized *float64 `json:"normalized"`
	Weight     float64  `json:"weight"`
	Weighted   float64  `json:"weighted"`
	Available  bool     `json:"available"`
	Reason     string   `json:"reason"`
}

// Explanation breaks down the three scores of one unit.
type Explanation struct {
	Code   string         `json:"code"`
	Name   string         `json:"name"`
	Socio  []Contribution `json:"socio"`
	Access *Contribution  `json:"access,omitempty"`
	Alpha  float64        `json:"alpha"`
	territory.Scores
}

// Explain recomputes the contributions behind a unit's socio score. The
// Weighted values of the available terms add up to score_socio before
// rounding.
func Explain(u *territory.Unit, vars []WeightedVariable) []Contribution {
	var total float64
	for _, v := range vars {
		total += v.Weight
	}

	out := make([]Contribution, 0, len(vars))
	for _, v := range vars {
		c := Contribution{Label: v.Label, Column: v.Column, Weight: v.Weight}
		c.Raw = u.Value(v.Column)
		c.Normalized = Normalize(c.Raw, v.Stats.Min, v.Stats.Max, v.VulnerabilityIncreasing)
		switch {
		case c.Normalized == nil:
			c.Reason = "missing value, neutral contribution"
		case v.Stats.Max == v.Stats.Min:
			c.Available = true
			c.Reason = "degenerate reference range"
		case total <= 0:
			c.Available = true
			c.Reason = "zero total weight"
		default:
			c.Available = true
			c.Weighted = round2(*c.Normalized * v.Weight / total * 100)
			c.Reason = directionReason(v.Descriptor)
		}
		out = append(out, c)
	}
	return out
}

// ExplainAccess describes the access term of a unit.
func ExplainAccess(u *territory.Unit, access *refstats.Descriptor) *Contribution {
	if access == nil {
		return nil
	}
	c := &Contribution{Label: access.Label, Column: access.Column, Weight: 1}
	c.Raw = u.Value(access.Column)
	c.Normalized = Normalize(c.Raw, access.Stats.Min, access.Stats.Max, false)
	if c.Normalized == nil {
		c.Reason = "missing value"
		return c
	}
	c.Available = true
	c.Weighted = round2(*c.Normalized * 100)
	c.Reason = "higher accessibility is less vulnerable"
	return c
}

func directionReason(d refstats.Descriptor) string {
	if d.VulnerabilityIncreasing {
		return "higher value is more vulnerable"
	}
	return "higher value is less vulnerable"
}
