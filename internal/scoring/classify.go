package scoring

import (
	"sort"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// ClassUndetermined is given to units without a score_double.
const ClassUndetermined = "indeterminee"

// ClassThreshold is the upper bound of one class on the live distribution.
type ClassThreshold struct {
	Name  string  `json:"name"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Classification assigns a vulnerability class to every unit of a view.
type Classification struct {
	Thresholds   []ClassThreshold  `json:"thresholds"`
	Undetermined int               `json:"undetermined"`
	ByCode       map[string]string `json:"-"`
}

// Class returns the class of a unit, ClassUndetermined when unknown.
func (c *Classification) Class(code string) string {
	if c == nil {
		return ClassUndetermined
	}
	if name, ok := c.ByCode[code]; ok {
		return name
	}
	return ClassUndetermined
}

// Classify cuts the live score_double distribution of ds at the configured
// quantiles. A unit belongs to the first class whose threshold is not below
// its score; the last class catches everything above. With no rules, the
// default quartile classes apply.
func Classify(ds *territory.Dataset, rules []config.ClassDef) *Classification {
	if len(rules) == 0 {
		rules = config.DefaultClasses()
	}
	c := &Classification{ByCode: make(map[string]string, ds.Len())}

	values := ds.Values(territory.ColumnDouble)
	sort.Float64s(values)
	for _, r := range rules {
		th := ClassThreshold{Name: r.Name}
		if len(values) > 0 {
			th.Upper = round2(refstats.Percentile(values, r.UpperQuantile*100))
		}
		c.Thresholds = append(c.Thresholds, th)
	}

	units := ds.Units()
	for i := range units {
		s := units[i].Scores.Double
		if s == nil {
			c.ByCode[units[i].Code] = ClassUndetermined
			c.Undetermined++
			continue
		}
		idx := len(c.Thresholds) - 1
		for j, th := range c.Thresholds {
			if *s <= th.Upper {
				idx = j
				break
			}
		}
		c.Thresholds[idx].Count++
		c.ByCode[units[i].Code] = c.Thresholds[idx].Name
	}
	return c
}
