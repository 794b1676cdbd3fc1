package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// BlobSource opens named files. A missing file is reported as ErrNotFound.
type BlobSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// BlobSink writes named files.
type BlobSink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// DirSource reads files from a local directory.
type DirSource string

func (d DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(string(d), name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return f, err
}

func (d DirSource) Put(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(string(d), 0o755); err != nil {
		return err
	}
	path := filepath.Join(string(d), name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// File names of the canonical data set.
func UnitsFile(g territory.Granularity) string    { return string(g) + "s.json" }
func CatalogFile(g territory.Granularity) string  { return "variable_" + string(g) + "s.json" }
func GeometryFile(g territory.Granularity) string { return string(g) + "s_polygon.geojson" }

// JSONStore reads the canonical JSON files (communes.json, departements.json,
// variable_*.json, departements_polygon.geojson) from a BlobSource. It also
// implements Writer when the source is a BlobSink.
type JSONStore struct {
	src BlobSource
}

func NewJSONStore(src BlobSource) *JSONStore {
	return &JSONStore{src: src}
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) read(ctx context.Context, name string) ([]byte, error) {
	rc, err := s.src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *JSONStore) LoadDataset(ctx context.Context, g territory.Granularity) (*territory.Dataset, error) {
	raw, err := s.read(ctx, UnitsFile(g))
	if err != nil {
		return nil, fmt.Errorf("load %s units: %w", g, err)
	}
	units, columns, err := DecodeUnits(g, raw)
	if err != nil {
		return nil, err
	}

	geo, err := s.read(ctx, GeometryFile(g))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load %s geometry: %w", g, err)
	default:
		geoms, err := territory.DecodeFeatureGeometries(geo, "code", g)
		if err != nil {
			return nil, err
		}
		for i := range units {
			if gm, ok := geoms[units[i].Code]; ok {
				units[i].Geometry = gm
			}
		}
	}
	return territory.NewDataset(g, units, columns)
}

func (s *JSONStore) LoadCatalog(ctx context.Context, g territory.Granularity, defs []refstats.Definition) (*refstats.Catalog, error) {
	raw, err := s.read(ctx, CatalogFile(g))
	if err != nil {
		return nil, fmt.Errorf("load %s catalog: %w", g, err)
	}
	return refstats.DecodeCatalog(g, raw, defs)
}

func (s *JSONStore) sink() (BlobSink, error) {
	sink, ok := s.src.(BlobSink)
	if !ok {
		return nil, fmt.Errorf("json store: source %T is read-only", s.src)
	}
	return sink, nil
}

func (s *JSONStore) PutDataset(ctx context.Context, ds *territory.Dataset) error {
	sink, err := s.sink()
	if err != nil {
		return err
	}
	raw, err := EncodeUnits(ds)
	if err != nil {
		return err
	}
	return sink.Put(ctx, UnitsFile(ds.Granularity()), raw)
}

func (s *JSONStore) PutCatalog(ctx context.Context, cat *refstats.Catalog) error {
	sink, err := s.sink()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cat)
	if err != nil {
		return err
	}
	return sink.Put(ctx, CatalogFile(cat.Granularity()), raw)
}

// Reserved keys of a unit record; every other key is an indicator.
const (
	keyPopulation = "population_totale"
	keyLatitude   = "lat"
	keyLongitude  = "lon"
)

func nameKey(g territory.Granularity) string { return "nom_" + string(g) }

var ignoredKeys = map[string]bool{
	"nom": true, "name": true, "nom_commune": true, "nom_departement": true,
	"code_postal": true, "code_departement": true,
}

// unitName picks the first string among nom_<granularity>, nom and name.
func unitName(g territory.Granularity, fields map[string]interface{}) string {
	for _, key := range []string{nameKey(g), "nom", "name"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// DecodeUnits parses a { code: { field: value } } file. Numbers, and strings
// holding a number (with either decimal separator), become indicators;
// anything else is a missing value. The returned columns include keys that
// only ever hold missing values.
func DecodeUnits(g territory.Granularity, raw []byte) ([]territory.Unit, []string, error) {
	var records map[string]map[string]interface{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil, fmt.Errorf("decode %s units: %w", g, err)
	}

	columns := make(map[string]struct{})
	units := make([]territory.Unit, 0, len(records))
	for rawCode, fields := range records {
		code, err := territory.NormalizeCode(rawCode, g)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s units: %w", g, err)
		}
		u := territory.Unit{Code: code, Indicators: make(map[string]float64, len(fields))}
		var lat, lon *float64
		for key, v := range fields {
			switch key {
			case nameKey(g), "nom", "name":
				continue
			case keyPopulation:
				u.Population = toFloat(v)
				continue
			case keyLatitude, "latitude":
				lat = toFloat(v)
				continue
			case keyLongitude, "longitude":
				lon = toFloat(v)
				continue
			}
			if ignoredKeys[key] {
				continue
			}
			columns[key] = struct{}{}
			if f := toFloat(v); f != nil {
				u.Indicators[key] = *f
			}
		}
		u.Name = unitName(g, fields)
		if lat != nil && lon != nil {
			u.Geometry = territory.PointFromLonLat(*lon, *lat)
		}
		units = append(units, u)
	}

	cols := make([]string, 0, len(columns))
	for c := range columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return units, cols, nil
}

// EncodeUnits writes ds in the format DecodeUnits reads. Scores are not
// persisted.
func EncodeUnits(ds *territory.Dataset) ([]byte, error) {
	out := make(map[string]map[string]interface{}, ds.Len())
	columns := ds.Columns()
	for _, u := range ds.Units() {
		rec := make(map[string]interface{}, len(u.Indicators)+4)
		rec[nameKey(ds.Granularity())] = u.Name
		if u.Population != nil {
			rec[keyPopulation] = *u.Population
		}
		if p, ok := territory.PointCoords(u.Geometry); ok {
			rec[keyLongitude], rec[keyLatitude] = p[0], p[1]
		}
		for _, col := range columns {
			if v := u.Value(col); v != nil {
				rec[col] = *v
			} else {
				rec[col] = nil
			}
		}
		out[u.Code] = rec
	}
	return json.MarshalIndent(out, "", "    ")
}

func toFloat(v interface{}) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(x), ",", ".", 1), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
