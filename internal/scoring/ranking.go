package scoring

import (
	"sort"

	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// RankRow is one line of the ranking table.
type RankRow struct {
	Rank       int      `json:"rank"`
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Department string   `json:"department_code"`
	Population *float64 `json:"population,omitempty"`
	Socio      *float64 `json:"score_socio"`
	Access     *float64 `json:"score_access"`
	Double     *float64 `json:"score_double"`
	Class      string   `json:"class"`
}

// Rank orders units by score_double, most vulnerable first. Units without a
// score come last; ties are broken by code. limit <= 0 returns every unit.
// classes may be nil.
func Rank(ds *territory.Dataset, classes *Classification, limit int) []RankRow {
	units := ds.Units()
	rows := make([]RankRow, 0, len(units))
	for i := range units {
		u := &units[i]
		rows = append(rows, RankRow{
			Code:       u.Code,
			Name:       u.Name,
			Department: u.DepartmentCode,
			Population: u.Population,
			Socio:      u.Scores.Socio,
			Access:     u.Scores.Access,
			Double:     u.Scores.Double,
			Class:      classes.Class(u.Code),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Double, rows[j].Double
		switch {
		case a == nil && b == nil:
			return rows[i].Code < rows[j].Code
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		}
		return rows[i].Code < rows[j].Code
	})

	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
