package scoring

import (
	"math"
	"sort"

	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// PriorityUnit is a unit on the vulnerability frontier.
type PriorityUnit struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Socio  float64 `json:"score_socio"`
	Access float64 `json:"score_access"`
}

// PriorityFrontier returns the units no other unit dominates on both
// score_socio and score_access (higher is more vulnerable on both). The set
// does not depend on alpha: whatever the blend, the top unit is on it.
// Units missing either score are ignored; units with equal scores are all
// kept. The frontier is ordered by score_socio descending.
//
// Candidates are sorted by socio then access, both descending, and swept
// once: a unit survives when its access beats every unit of higher socio
// and ties the best access of its own socio group.
func PriorityFrontier(ds *territory.Dataset) []PriorityUnit {
	var candidates []PriorityUnit
	units := ds.Units()
	for i := range units {
		s, a := units[i].Scores.Socio, units[i].Scores.Access
		if s == nil || a == nil {
			continue
		}
		candidates = append(candidates, PriorityUnit{Code: units[i].Code, Name: units[i].Name, Socio: *s, Access: *a})
	}
	if len(candidates) <= 1 {
		return candidates
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Socio != b.Socio {
			return a.Socio > b.Socio
		}
		if a.Access != b.Access {
			return a.Access > b.Access
		}
		return a.Code < b.Code
	})

	var (
		frontier  []PriorityUnit
		bestAbove = math.Inf(-1) // best access among strictly higher socio
		groupBest float64
	)
	for i, c := range candidates {
		if i == 0 || c.Socio != candidates[i-1].Socio {
			if i > 0 {
				bestAbove = math.Max(bestAbove, groupBest)
			}
			groupBest = c.Access
		}
		if c.Access == groupBest && c.Access > bestAbove {
			frontier = append(frontier, c)
		}
	}
	return frontier
}
