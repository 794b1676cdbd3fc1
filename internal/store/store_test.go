package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

func float64Ptr(v float64) *float64 { return &v }

func sampleDataset(t *testing.T) *territory.Dataset {
	t.Helper()
	ds, err := territory.NewDataset(territory.Commune, []territory.Unit{
		{
			Code: "01001", Name: "L'Abergement-Clémenciat", Population: float64Ptr(779),
			Indicators: map[string]float64{"tx_pauvrete": 8.5, "apl_medecins": 2.1},
			Geometry:   territory.PointFromLonLat(4.92, 46.15),
		},
		{
			Code: "2A004", Name: "Ajaccio", Population: float64Ptr(71361),
			Indicators: map[string]float64{"tx_pauvrete": 18.2},
		},
	}, []string{"EDI"})
	require.NoError(t, err)
	return ds
}

// sampleCatalog lists labels in sorted order, the order the JSON store reads.
func sampleCatalog(t *testing.T) *refstats.Catalog {
	t.Helper()
	cat, err := refstats.NewCatalog(territory.Commune, []refstats.Descriptor{
		{Label: "Médecins généralistes", Column: "apl_medecins", Category: refstats.CategoryAccess,
			Stats: refstats.Stats{Min: 0, Max: 9, P5: 1, Q1: 2, Median: 3, Q3: 4, P95: 6}},
		{Label: "Taux de pauvreté", Column: "tx_pauvrete", Category: refstats.CategorySocio, VulnerabilityIncreasing: true, Unit: "%",
			Stats: refstats.Stats{Min: 1, Max: 50, P5: 4, Q1: 8, Median: 11, Q3: 15, P95: 25}},
	})
	require.NoError(t, err)
	return cat
}

// exerciseStore checks a round trip through any Store that is also a Writer.
func exerciseStore(t *testing.T, s ReadWriter) {
	t.Helper()
	ctx := context.Background()

	_, err := s.LoadDataset(ctx, territory.Departement)
	assert.True(t, errors.Is(err, ErrNotFound), "empty store: got %v", err)
	_, err = s.LoadCatalog(ctx, territory.Departement, nil)
	assert.True(t, errors.Is(err, ErrNotFound), "empty store: got %v", err)

	want := sampleDataset(t)
	require.NoError(t, s.PutDataset(ctx, want))
	require.NoError(t, s.PutDataset(ctx, want), "put replaces")

	got, err := s.LoadDataset(ctx, territory.Commune)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.True(t, got.HasColumn("EDI"), "all-missing column survives")

	u, ok := got.Unit("01001")
	require.True(t, ok)
	assert.Equal(t, "L'Abergement-Clémenciat", u.Name)
	assert.Equal(t, 779.0, *u.Population)
	assert.Equal(t, 2.1, u.Indicators["apl_medecins"])
	p, ok := territory.PointCoords(u.Geometry)
	require.True(t, ok)
	assert.Equal(t, [2]float64{4.92, 46.15}, p)

	corse, ok := got.Unit("2A004")
	require.True(t, ok)
	assert.Equal(t, "2A", corse.DepartmentCode)
	assert.Nil(t, corse.Value("apl_medecins"))
	assert.Nil(t, corse.Geometry)

	cat := sampleCatalog(t)
	require.NoError(t, s.PutCatalog(ctx, cat))
	gotCat, err := s.LoadCatalog(ctx, territory.Commune, nil)
	require.NoError(t, err)
	assert.Equal(t, cat.Descriptors(), gotCat.Descriptors())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "territoires.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	exerciseStore(t, s)
}

func TestJSONStoreDir(t *testing.T) {
	s := NewJSONStore(DirSource(t.TempDir()))
	exerciseStore(t, s)
}

func TestJSONStoreReadOnlySource(t *testing.T) {
	s := NewJSONStore(readOnly{DirSource(t.TempDir())})
	assert.Error(t, s.PutCatalog(context.Background(), sampleCatalog(t)))
}

type readOnly struct{ BlobSource }

func TestJSONStoreLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"departements.json": `{
			"1": {"nom_departement": "Ain", "population_totale": 650000, "tx_pauvrete": "10,5", "apl_medecins": null, "EDI": "n/a"},
			"2A": {"nom_departement": "Corse-du-Sud", "tx_pauvrete": 17.1, "apl_medecins": 3.2}
		}`,
		"departements_polygon.geojson": `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "properties": {"code": "01", "nom": "Ain"},
			 "geometry": {"type": "Polygon", "coordinates": [[[4.7, 45.6], [6.1, 45.6], [6.1, 46.5], [4.7, 45.6]]]}}
		]}`,
		"variable_departements.json": `{
			"Taux de pauvreté": {"nom_col": "tx_pauvrete", "type": "socio", "min": 8, "max": 30, "p5": 9, "q1": 12, "q2": 14, "q3": 17, "p95": 22}
		}`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	s := NewJSONStore(DirSource(dir))
	ctx := context.Background()

	ds, err := s.LoadDataset(ctx, territory.Departement)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.True(t, ds.HasColumn("apl_medecins"))
	assert.True(t, ds.HasColumn("EDI"))

	ain, ok := ds.Unit("01")
	require.True(t, ok)
	assert.Equal(t, "Ain", ain.Name)
	assert.Equal(t, 10.5, *ain.Value("tx_pauvrete"), "decimal comma is accepted")
	assert.Nil(t, ain.Value("apl_medecins"))
	assert.Nil(t, ain.Value("EDI"), "non-numeric value is missing")
	assert.NotNil(t, ain.Geometry)

	cat, err := s.LoadCatalog(ctx, territory.Departement, nil)
	require.NoError(t, err)
	d, ok := cat.Lookup("Taux de pauvreté")
	require.True(t, ok)
	assert.Equal(t, 14.0, d.Stats.Median)

	_, err = s.LoadCatalog(ctx, territory.Commune, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, config.DataConfig{Backend: config.BackendJSON, Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	s, err = Open(ctx, config.DataConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "t.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.DataConfig{Backend: "redis"})
	assert.Error(t, err)
}

func TestJSONStoreHTTP(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewJSONStore(DirSource(dir)).PutDataset(context.Background(), sampleDataset(t)))
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	s := NewJSONStore(NewHTTPSource(srv.URL + "/"))
	ctx := context.Background()

	ds, err := s.LoadDataset(ctx, territory.Commune)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	_, err = s.LoadCatalog(ctx, territory.Commune, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, s.PutDataset(ctx, ds), "http source is read-only")
}

func TestDecodeUnitsRejectsBadCodes(t *testing.T) {
	_, _, err := DecodeUnits(territory.Departement, []byte(`{"123": {}}`))
	assert.Error(t, err)
}

func TestDecodeUnitsNamePrecedence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"granularity key first", `{"01": {"nom_departement": "Ain", "nom": "AIN", "name": "ain"}}`, "Ain"},
		{"nom before name", `{"01": {"nom": "Ain", "name": "ain"}}`, "Ain"},
		{"name alone", `{"01": {"name": "Ain"}}`, "Ain"},
		{"empty names skipped", `{"01": {"nom": "", "name": "Ain"}}`, "Ain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Map iteration order varies between runs; decode repeatedly.
			for i := 0; i < 20; i++ {
				units, cols, err := DecodeUnits(territory.Departement, []byte(tt.raw))
				require.NoError(t, err)
				require.Len(t, units, 1)
				if units[0].Name != tt.want {
					t.Fatalf("expected name %q, got %q", tt.want, units[0].Name)
				}
				assert.Empty(t, cols, "name keys are not indicator columns")
			}
		})
	}
}

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestJSONStoreS3(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte)}
	s := NewJSONStore(NewS3SourceWithClient(fake, "open-data", "territoires/2024"))
	exerciseStore(t, s)

	_, ok := fake.objects["open-data/territoires/2024/communes.json"]
	assert.True(t, ok, "objects are written under the prefix")
	_, ok = fake.objects["open-data/territoires/2024/variable_communes.json"]
	assert.True(t, ok)
}
