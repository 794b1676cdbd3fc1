package territory

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
)

// PointFromLonLat builds the point geometry used for communes.
func PointFromLonLat(lon, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat})
}

// PointCoords returns the lon/lat of a point geometry.
func PointCoords(g geom.T) ([2]float64, bool) {
	p, ok := g.(*geom.Point)
	if !ok || p == nil || p.Empty() {
		return [2]float64{}, false
	}
	return [2]float64{p.X(), p.Y()}, true
}

// Locate returns the unit whose polygon contains the point. Units with point
// or missing geometries never match.
func (d *Dataset) Locate(lon, lat float64) (*Unit, bool) {
	p := geom.Coord{lon, lat}
	for i := range d.units {
		if containsPoint(d.units[i].Geometry, p) {
			return &d.units[i], true
		}
	}
	return nil, false
}

func containsPoint(g geom.T, p geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, p)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), p) {
				return true
			}
		}
	}
	return false
}

func polygonContains(poly *geom.Polygon, p geom.Coord) bool {
	if poly.Empty() {
		return false
	}
	if !xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// DecodeGeometry parses a GeoJSON geometry object.
func DecodeGeometry(raw []byte) (geom.T, error) {
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	return g, nil
}

// EncodeGeometry renders a geometry as GeoJSON. A nil geometry encodes as nil.
func EncodeGeometry(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return geojson.Marshal(g)
}

// DecodeFeatureGeometries reads a GeoJSON FeatureCollection and returns the
// geometry of each feature keyed by the normalized code found in codeProperty.
// Features without a usable code are skipped.
func DecodeFeatureGeometries(raw []byte, codeProperty string, g Granularity) (map[string]geom.T, error) {
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	out := make(map[string]geom.T, len(fc.Features))
	for _, f := range fc.Features {
		rawCode, ok := f.Properties[codeProperty]
		if !ok {
			continue
		}
		code, err := NormalizeCode(fmt.Sprint(rawCode), g)
		if err != nil {
			continue
		}
		out[code] = f.Geometry
	}
	return out, nil
}

// FeatureCollection renders the dataset as GeoJSON features. props supplies
// the properties of each unit.
func (d *Dataset) FeatureCollection(props func(u *Unit) map[string]interface{}) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(d.units))}
	for i := range d.units {
		u := &d.units[i]
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         u.Code,
			Geometry:   u.Geometry,
			Properties: props(u),
		})
	}
	return fc
}
