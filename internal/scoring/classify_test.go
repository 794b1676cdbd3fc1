package scoring

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

func doubleDataset(t *testing.T, values ...*float64) *territory.Dataset {
	t.Helper()
	units := make([]territory.Unit, len(values))
	for i := range units {
		units[i] = territory.Unit{Code: string(rune('A'+i)) + "0", Name: "Unité " + string(rune('A'+i))}
	}
	ds, err := territory.NewDataset(territory.Departement, units, nil)
	require.NoError(t, err)
	ds, err = ds.WithScore(territory.ColumnDouble, values)
	require.NoError(t, err)
	return ds
}

func TestClassifyQuartiles(t *testing.T) {
	ds := doubleDataset(t,
		float64Ptr(10), float64Ptr(20), float64Ptr(30), float64Ptr(40), float64Ptr(50), nil,
	)
	c := Classify(ds, nil)

	require.Len(t, c.Thresholds, 4)
	assert.Equal(t, []float64{20, 30, 40, 50}, []float64{
		c.Thresholds[0].Upper, c.Thresholds[1].Upper, c.Thresholds[2].Upper, c.Thresholds[3].Upper,
	})

	tests := []struct {
		code string
		want string
	}{
		{"A0", "faible"},
		{"B0", "faible"},
		{"C0", "moderee"},
		{"D0", "elevee"},
		{"E0", "prioritaire"},
		{"F0", ClassUndetermined},
		{"ZZ", ClassUndetermined},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := c.Class(tt.code); got != tt.want {
				t.Errorf("class of %s = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
	assert.Equal(t, 1, c.Undetermined)
	assert.Equal(t, 2, c.Thresholds[0].Count)
}

func TestClassifyCustomRules(t *testing.T) {
	ds := doubleDataset(t, float64Ptr(10), float64Ptr(90))
	c := Classify(ds, []config.ClassDef{
		{Name: "hors priorite", UpperQuantile: 0.5},
		{Name: "priorite", UpperQuantile: 1},
	})
	assert.Equal(t, "hors priorite", c.Class("A0"))
	assert.Equal(t, "priorite", c.Class("B0"))
}

func TestClassifyWithoutScores(t *testing.T) {
	ds := doubleDataset(t, nil, nil)
	c := Classify(ds, nil)
	assert.Equal(t, 2, c.Undetermined)
	for _, th := range c.Thresholds {
		assert.Equal(t, 0.0, th.Upper)
		assert.Equal(t, 0, th.Count)
	}

	var nilClasses *Classification
	assert.Equal(t, ClassUndetermined, nilClasses.Class("A0"))
}

func TestRank(t *testing.T) {
	ds := doubleDataset(t, float64Ptr(40), nil, float64Ptr(75), float64Ptr(40))
	rows := Rank(ds, Classify(ds, nil), 0)

	require.Len(t, rows, 4)
	codes := []string{rows[0].Code, rows[1].Code, rows[2].Code, rows[3].Code}
	assert.Equal(t, []string{"C0", "A0", "D0", "B0"}, codes, "descending, ties by code, undefined last")
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, 4, rows[3].Rank)
	assert.Equal(t, ClassUndetermined, rows[3].Class)

	top := Rank(ds, nil, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "C0", top[0].Code)
	assert.Equal(t, ClassUndetermined, top[0].Class)
}

func TestPriorityFrontier(t *testing.T) {
	units := []territory.Unit{{Code: "01"}, {Code: "02"}, {Code: "03"}, {Code: "04"}, {Code: "05"}}
	ds, err := territory.NewDataset(territory.Departement, units, nil)
	require.NoError(t, err)
	ds, err = ds.WithScore(territory.ColumnSocio, []*float64{float64Ptr(90), float64Ptr(20), float64Ptr(50), float64Ptr(40), nil})
	require.NoError(t, err)
	ds, err = ds.WithScore(territory.ColumnAccess, []*float64{float64Ptr(10), float64Ptr(95), float64Ptr(50), float64Ptr(40), float64Ptr(100)})
	require.NoError(t, err)

	frontier := PriorityFrontier(ds)
	var codes []string
	for _, u := range frontier {
		codes = append(codes, u.Code)
	}
	// 04 is dominated by 03; 05 has no socio score.
	assert.Equal(t, []string{"01", "03", "02"}, codes, "ordered by socio score")
}

func TestPriorityFrontierEqualUnits(t *testing.T) {
	ds, err := territory.NewDataset(territory.Departement, []territory.Unit{{Code: "01"}, {Code: "02"}}, nil)
	require.NoError(t, err)
	same := []*float64{float64Ptr(50), float64Ptr(50)}
	ds, err = ds.WithScore(territory.ColumnSocio, same)
	require.NoError(t, err)
	ds, err = ds.WithScore(territory.ColumnAccess, same)
	require.NoError(t, err)
	assert.Len(t, PriorityFrontier(ds), 2, "equal units do not dominate each other")
}

func TestDisplayRangeReference(t *testing.T) {
	cat, err := refstats.NewCatalog(territory.Commune, []refstats.Descriptor{
		{Label: "Taux de pauvreté", Column: "tx_pauvrete", Category: refstats.CategorySocio, VulnerabilityIncreasing: true,
			Stats: refstats.Stats{Min: 0, Max: 60, P5: 6, Median: 13, P95: 30}},
		{Label: "Infirmiers", Column: "apl_infirmiers", Category: refstats.CategoryAccess,
			Stats: refstats.Stats{Min: 1, Max: 9, P5: 4, Median: 4, P95: 4}},
	})
	require.NoError(t, err)

	r, err := DisplayRangeFor("tx_pauvrete", cat, nil)
	require.NoError(t, err)
	assert.Equal(t, DisplayRange{Column: "tx_pauvrete", Low: 6, Mid: 13, High: 30, Ascending: true, Source: SourceReference}, r)

	r, err = DisplayRangeFor("apl_infirmiers", cat, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Low, "flat percentiles fall back to min..max")
	assert.Equal(t, 9.0, r.High)
	assert.False(t, r.Ascending)

	_, err = DisplayRangeFor("inconnue", cat, nil)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestDisplayRangeLive(t *testing.T) {
	ds := doubleDataset(t, float64Ptr(0), float64Ptr(10), float64Ptr(20), float64Ptr(30), float64Ptr(40), nil)
	r, err := DisplayRangeFor(territory.ColumnDouble, nil, ds)
	require.NoError(t, err)
	assert.Equal(t, DisplayRange{Column: territory.ColumnDouble, Low: 2, Mid: 20, High: 38, Ascending: true, Source: SourceLive}, r)

	flat := doubleDataset(t, float64Ptr(42), float64Ptr(42))
	r, err = DisplayRangeFor(territory.ColumnDouble, nil, flat)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Low)
	assert.Equal(t, 100.0, r.High)

	r, err = DisplayRangeFor(territory.ColumnSocio, nil, ds)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Low, "column not computed on this view")
	assert.Equal(t, 100.0, r.High)
}

// scoredCommunes builds n communes whose socio and access scores come from
// socio(i) and access(i).
func scoredCommunes(t *testing.T, n int, socio, access func(i int) float64) *territory.Dataset {
	t.Helper()
	units := make([]territory.Unit, n)
	s := make([]*float64, n)
	a := make([]*float64, n)
	for i := range units {
		units[i] = territory.Unit{Code: fmt.Sprintf("%05d", i+1)}
		s[i] = float64Ptr(socio(i))
		a[i] = float64Ptr(access(i))
	}
	ds, err := territory.NewDataset(territory.Commune, units, nil)
	require.NoError(t, err)
	ds, err = ds.WithScore(territory.ColumnSocio, s)
	require.NoError(t, err)
	ds, err = ds.WithScore(territory.ColumnAccess, a)
	require.NoError(t, err)
	return ds
}

func TestPriorityFrontierNationalScale(t *testing.T) {
	const n = 35000
	tests := []struct {
		name   string
		socio  func(i int) float64
		access func(i int) float64
		want   int
	}{
		{"anticorrelated", func(i int) float64 { return float64(i) }, func(i int) float64 { return float64(n - i) }, n},
		{"flat", func(int) float64 { return 0 }, func(int) float64 { return 0 }, n},
		{"correlated", func(i int) float64 { return float64(i) }, func(i int) float64 { return float64(i) / 10 }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := scoredCommunes(t, n, tt.socio, tt.access)
			start := time.Now()
			frontier := PriorityFrontier(ds)
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("frontier over %d units took %v", n, elapsed)
			}
			assert.Len(t, frontier, tt.want)
		})
	}
}

// dominates reports whether a is at least as vulnerable as b on both axes
// and strictly more on one.
func dominates(a, b PriorityUnit) bool {
	if a.Socio < b.Socio || a.Access < b.Access {
		return false
	}
	return a.Socio > b.Socio || a.Access > b.Access
}

func TestPriorityFrontierMatchesPairwiseDominance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	// Coarse values so that ties on either axis are frequent.
	ds := scoredCommunes(t, 400,
		func(int) float64 { return float64(rng.Intn(20)) },
		func(int) float64 { return float64(rng.Intn(20)) })

	var all []PriorityUnit
	for _, u := range ds.Units() {
		all = append(all, PriorityUnit{Code: u.Code, Socio: *u.Scores.Socio, Access: *u.Scores.Access})
	}
	want := make(map[string]bool)
	for _, c := range all {
		dominated := false
		for _, o := range all {
			if dominates(o, c) {
				dominated = true
				break
			}
		}
		if !dominated {
			want[c.Code] = true
		}
	}

	got := make(map[string]bool)
	for _, u := range PriorityFrontier(ds) {
		got[u.Code] = true
	}
	assert.Equal(t, want, got)
}
