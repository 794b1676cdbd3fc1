package territory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// AggregateDepartments derives département-level units from commune-level
// units. Each indicator is the weighted mean of its communes,
//
//	value_D = Σ(value_i × w_i) / Σ(w_i)
//
// where w_i is the commune's weightColumn indicator, or its population when
// weightColumn is empty. Communes without a value or with a zero/missing
// weight are left out of that indicator's mean. Populations are summed.
// Overseas communes are excluded.
func AggregateDepartments(communes *Dataset, columns []string, weightColumn string, names map[string]string) (*Dataset, error) {
	if communes.Granularity() != Commune {
		return nil, fmt.Errorf("aggregate departments: expected commune dataset, got %s", communes.Granularity())
	}

	type acc struct {
		population float64
		hasPop     bool
		values     map[string][]float64
		weights    map[string][]float64
	}
	byDep := make(map[string]*acc)
	var order []string

	for _, u := range communes.Units() {
		if IsOverseas(u.Code) {
			continue
		}
		dep := u.DepartmentCode
		a, ok := byDep[dep]
		if !ok {
			a = &acc{values: make(map[string][]float64), weights: make(map[string][]float64)}
			byDep[dep] = a
			order = append(order, dep)
		}
		if u.Population != nil && *u.Population != 0 {
			a.population += *u.Population
			a.hasPop = true
		}

		w := u.Population
		if weightColumn != "" {
			w = u.Value(weightColumn)
		}
		if w == nil || *w == 0 {
			continue
		}
		for _, col := range columns {
			v := u.Value(col)
			if v == nil {
				continue
			}
			a.values[col] = append(a.values[col], *v)
			a.weights[col] = append(a.weights[col], *w)
		}
	}

	units := make([]Unit, 0, len(order))
	for _, dep := range order {
		a := byDep[dep]
		u := Unit{
			Code:           dep,
			Name:           names[dep],
			DepartmentCode: dep,
			Indicators:     make(map[string]float64, len(columns)),
		}
		if a.hasPop {
			pop := math.Round(a.population)
			u.Population = &pop
		}
		for _, col := range columns {
			if len(a.values[col]) == 0 {
				continue
			}
			u.Indicators[col] = round2(stat.Mean(a.values[col], a.weights[col]))
		}
		units = append(units, u)
	}
	return NewDataset(Departement, units, columns)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
