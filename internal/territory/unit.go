package territory

import (
	"fmt"
	"math"
	"strings"

	"github.com/twpayne/go-geom"
)

type Granularity string

const (
	Departement Granularity = "departement"
	Commune     Granularity = "commune"
)

// Granularities lists every supported level, coarse first.
var Granularities = []Granularity{Departement, Commune}

// ParseGranularity accepts the canonical names plus the plural forms used by
// the data files ("departements", "communes").
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "departement", "departements", "département", "départements", "dep":
		return Departement, nil
	case "commune", "communes", "com":
		return Commune, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// CodeWidth is the fixed width of a geographic code at this level.
func (g Granularity) CodeWidth() int {
	if g == Commune {
		return 5
	}
	return 2
}

// Score column names.
const (
	ColumnSocio  = "score_socio"
	ColumnAccess = "score_access"
	ColumnDouble = "score_double"
)

// ScoreColumns lists the derived columns in dependency order.
var ScoreColumns = []string{ColumnSocio, ColumnAccess, ColumnDouble}

func IsScoreColumn(column string) bool {
	switch column {
	case ColumnSocio, ColumnAccess, ColumnDouble:
		return true
	}
	return false
}

// Scores holds the derived columns of a unit. nil means undefined.
type Scores struct {
	Socio  *float64 `json:"score_socio"`
	Access *float64 `json:"score_access"`
	Double *float64 `json:"score_double"`
}

// Unit is one territorial entity (département or commune).
type Unit struct {
	Code           string             `json:"code"`
	Name           string             `json:"name"`
	DepartmentCode string             `json:"department_code"`
	Population     *float64           `json:"population,omitempty"`
	Indicators     map[string]float64 `json:"indicators"`
	Geometry       geom.T             `json:"-"`
	Scores         Scores             `json:"scores"`
}

// Value returns the raw indicator for column, or nil when missing. NaN and
// infinities count as missing.
func (u *Unit) Value(column string) *float64 {
	v, ok := u.Indicators[column]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Score returns a derived score by column name.
func (u *Unit) Score(column string) *float64 {
	switch column {
	case ColumnSocio:
		return u.Scores.Socio
	case ColumnAccess:
		return u.Scores.Access
	case ColumnDouble:
		return u.Scores.Double
	}
	return nil
}

// Lookup returns either a score or a raw indicator.
func (u *Unit) Lookup(column string) *float64 {
	if IsScoreColumn(column) {
		return u.Score(column)
	}
	return u.Value(column)
}

func (u *Unit) setScore(column string, v *float64) {
	switch column {
	case ColumnSocio:
		u.Scores.Socio = v
	case ColumnAccess:
		u.Scores.Access = v
	case ColumnDouble:
		u.Scores.Double = v
	}
}
