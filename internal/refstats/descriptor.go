package refstats

import (
	"fmt"

	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

type Category string

const (
	CategorySocio  Category = "socio"
	CategoryAccess Category = "access"
)

// ParseCategory also accepts "sante", the name used by the published data files.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "socio":
		return CategorySocio, nil
	case "access", "acces", "sante":
		return CategoryAccess, nil
	}
	return "", fmt.Errorf("unknown variable category %q", s)
}

// Stats is the distributional summary of one variable over the full
// population of a granularity.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P5     float64 `json:"p5"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"q2"`
	Q3     float64 `json:"q3"`
	P95    float64 `json:"p95"`
}

// Descriptor identifies one indicator and carries its reference statistics.
type Descriptor struct {
	Label                   string                `json:"label"`
	Column                  string                `json:"column_id"`
	Category                Category              `json:"category"`
	VulnerabilityIncreasing bool                  `json:"direction_flag"`
	Unit                    string                `json:"unit_label,omitempty"`
	Granularity             territory.Granularity `json:"granularity"`
	Stats                   Stats                 `json:"stats"`
}

// Definition declares a candidate variable before its statistics are known.
type Definition struct {
	Label                   string   `yaml:"label" json:"label"`
	Column                  string   `yaml:"column" json:"column"`
	Category                Category `yaml:"category" json:"category"`
	VulnerabilityIncreasing bool     `yaml:"vulnerability_increasing" json:"vulnerability_increasing"`
	Unit                    string   `yaml:"unit" json:"unit"`
}
