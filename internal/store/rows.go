package store

import (
	"encoding/json"
	"fmt"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// unitRow is the relational shape of a unit shared by the SQL stores.
// Indicators keep declared-but-missing columns as JSON nulls.
type unitRow struct {
	Code           string
	Name           string
	DepartmentCode string
	Population     *float64
	Indicators     []byte
	Geometry       []byte
}

func toUnitRows(ds *territory.Dataset) ([]unitRow, error) {
	columns := ds.Columns()
	rows := make([]unitRow, 0, ds.Len())
	for _, u := range ds.Units() {
		ind := make(map[string]*float64, len(columns))
		for _, c := range columns {
			ind[c] = u.Value(c)
		}
		indJSON, err := json.Marshal(ind)
		if err != nil {
			return nil, fmt.Errorf("encode %s indicators: %w", u.Code, err)
		}
		geoJSON, err := territory.EncodeGeometry(u.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encode %s geometry: %w", u.Code, err)
		}
		rows = append(rows, unitRow{
			Code:           u.Code,
			Name:           u.Name,
			DepartmentCode: u.DepartmentCode,
			Population:     u.Population,
			Indicators:     indJSON,
			Geometry:       geoJSON,
		})
	}
	return rows, nil
}

// fromUnitRows rebuilds a dataset. A dataset with no rows is ErrNotFound.
func fromUnitRows(g territory.Granularity, rows []unitRow) (*territory.Dataset, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s units: %w", g, ErrNotFound)
	}
	columns := make(map[string]struct{})
	units := make([]territory.Unit, 0, len(rows))
	for _, r := range rows {
		u := territory.Unit{
			Code:           r.Code,
			Name:           r.Name,
			DepartmentCode: r.DepartmentCode,
			Population:     r.Population,
			Indicators:     make(map[string]float64),
		}
		var ind map[string]*float64
		if len(r.Indicators) > 0 {
			if err := json.Unmarshal(r.Indicators, &ind); err != nil {
				return nil, fmt.Errorf("decode %s indicators: %w", r.Code, err)
			}
		}
		for c, v := range ind {
			columns[c] = struct{}{}
			if v != nil {
				u.Indicators[c] = *v
			}
		}
		if len(r.Geometry) > 0 {
			gm, err := territory.DecodeGeometry(r.Geometry)
			if err != nil {
				return nil, fmt.Errorf("decode %s geometry: %w", r.Code, err)
			}
			u.Geometry = gm
		}
		units = append(units, u)
	}
	cols := make([]string, 0, len(columns))
	for c := range columns {
		cols = append(cols, c)
	}
	return territory.NewDataset(g, units, cols)
}

// statsRow is the relational shape of a descriptor.
type statsRow struct {
	Position int
	refstats.Descriptor
}

func toStatsRows(cat *refstats.Catalog) []statsRow {
	descs := cat.Descriptors()
	rows := make([]statsRow, len(descs))
	for i, d := range descs {
		rows[i] = statsRow{Position: i, Descriptor: d}
	}
	return rows
}

// fromStatsRows rebuilds a catalog from rows ordered by position. Stored
// direction flags win; defs only fill in missing unit labels.
func fromStatsRows(g territory.Granularity, rows []statsRow, defs []refstats.Definition) (*refstats.Catalog, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s catalog: %w", g, ErrNotFound)
	}
	units := make(map[string]string, len(defs))
	for _, d := range defs {
		units[d.Column] = d.Unit
	}
	descs := make([]refstats.Descriptor, len(rows))
	for i, r := range rows {
		d := r.Descriptor
		if d.Unit == "" {
			d.Unit = units[d.Column]
		}
		descs[i] = d
	}
	return refstats.NewCatalog(g, descs)
}
