package territory

import (
	"fmt"
	"sort"
)

// Dataset is an immutable, code-ordered collection of units of one
// granularity. Operations that add a score column return a new Dataset and
// leave the receiver untouched, so a Dataset can be shared between
// concurrent requests.
type Dataset struct {
	granularity  Granularity
	units        []Unit
	index        map[string]int
	columns      map[string]struct{}
	scoreColumns map[string]struct{}
}

// NewDataset builds a Dataset. Raw columns are the union of the declared
// columns and every indicator key found on the units; a declared column with
// no values at all is still reported as present.
func NewDataset(g Granularity, units []Unit, columns []string) (*Dataset, error) {
	d := &Dataset{
		granularity:  g,
		units:        make([]Unit, len(units)),
		index:        make(map[string]int, len(units)),
		columns:      make(map[string]struct{}),
		scoreColumns: make(map[string]struct{}),
	}
	copy(d.units, units)
	sort.SliceStable(d.units, func(i, j int) bool { return d.units[i].Code < d.units[j].Code })

	for i := range d.units {
		u := &d.units[i]
		if _, dup := d.index[u.Code]; dup {
			return nil, fmt.Errorf("duplicate %s code %q", g, u.Code)
		}
		d.index[u.Code] = i
		if u.DepartmentCode == "" {
			u.DepartmentCode = DepartmentOf(u.Code)
		}
		for col := range u.Indicators {
			d.columns[col] = struct{}{}
		}
	}
	for _, col := range columns {
		d.columns[col] = struct{}{}
	}
	return d, nil
}

func (d *Dataset) Granularity() Granularity { return d.granularity }

func (d *Dataset) Len() int { return len(d.units) }

// Units returns the units in code order. The slice is shared: read only.
func (d *Dataset) Units() []Unit { return d.units }

// Unit returns the unit with the given code.
func (d *Dataset) Unit(code string) (*Unit, bool) {
	i, ok := d.index[code]
	if !ok {
		return nil, false
	}
	return &d.units[i], true
}

// HasColumn reports whether a raw column is present in the source data.
func (d *Dataset) HasColumn(column string) bool {
	_, ok := d.columns[column]
	return ok
}

// Columns returns the raw column names, sorted.
func (d *Dataset) Columns() []string {
	out := make([]string, 0, len(d.columns))
	for c := range d.columns {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// HasScore reports whether a score column has been computed on this dataset.
func (d *Dataset) HasScore(column string) bool {
	_, ok := d.scoreColumns[column]
	return ok
}

// WithScore returns a copy of the dataset carrying the given score column.
// values is indexed like Units().
func (d *Dataset) WithScore(column string, values []*float64) (*Dataset, error) {
	if !IsScoreColumn(column) {
		return nil, fmt.Errorf("not a score column: %q", column)
	}
	if len(values) != len(d.units) {
		return nil, fmt.Errorf("score column %s: got %d values for %d units", column, len(values), len(d.units))
	}
	out := d.clone()
	for i := range out.units {
		out.units[i].setScore(column, values[i])
	}
	out.scoreColumns[column] = struct{}{}
	return out, nil
}

// Filter returns the units of one département. An empty code returns the
// whole dataset.
func (d *Dataset) Filter(department string) *Dataset {
	if department == "" {
		return d
	}
	out := &Dataset{
		granularity:  d.granularity,
		index:        make(map[string]int),
		columns:      d.columns,
		scoreColumns: copySet(d.scoreColumns),
	}
	for _, u := range d.units {
		if u.DepartmentCode == department {
			out.index[u.Code] = len(out.units)
			out.units = append(out.units, u)
		}
	}
	return out
}

// Values returns the non-missing values of a raw or score column, in unit
// order.
func (d *Dataset) Values(column string) []float64 {
	var out []float64
	for i := range d.units {
		if v := d.units[i].Lookup(column); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func (d *Dataset) clone() *Dataset {
	out := &Dataset{
		granularity:  d.granularity,
		units:        make([]Unit, len(d.units)),
		index:        d.index,
		columns:      d.columns,
		scoreColumns: copySet(d.scoreColumns),
	}
	copy(out.units, d.units)
	return out
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
