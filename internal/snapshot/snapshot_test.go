package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Territoires/internal/hermes"
	"github.com/MikeSquared-Agency/Territoires/internal/metrics"
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/store"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func float64Ptr(v float64) *float64 { return &v }

var testDefs = []refstats.Definition{
	{Label: "Taux de pauvreté", Column: "tx_pauvrete", Category: refstats.CategorySocio, VulnerabilityIncreasing: true},
	{Label: "Médecins généralistes", Column: "apl_medecins", Category: refstats.CategoryAccess},
}

func defsFor(territory.Granularity) []refstats.Definition { return testDefs }

func communes(t *testing.T) *territory.Dataset {
	t.Helper()
	ds, err := territory.NewDataset(territory.Commune, []territory.Unit{
		{Code: "01001", Population: float64Ptr(100), Indicators: map[string]float64{"tx_pauvrete": 10, "apl_medecins": 2}},
		{Code: "01002", Population: float64Ptr(300), Indicators: map[string]float64{"tx_pauvrete": 20, "apl_medecins": 4}},
		{Code: "02001", Population: float64Ptr(50), Indicators: map[string]float64{"tx_pauvrete": 30}},
	}, nil)
	require.NoError(t, err)
	return ds
}

func TestLoaderDerivesMissingParts(t *testing.T) {
	ctx := context.Background()
	s := store.NewJSONStore(store.DirSource(t.TempDir()))
	require.NoError(t, s.PutDataset(ctx, communes(t)))

	snap, err := NewLoader(s, defsFor, discardLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []territory.Granularity{territory.Departement, territory.Commune}, snap.Granularities())

	deps, cat, ok := snap.Get(territory.Departement)
	require.True(t, ok)
	assert.Equal(t, 2, deps.Len())
	ain, ok := deps.Unit("01")
	require.True(t, ok)
	assert.Equal(t, 17.5, *ain.Value("tx_pauvrete"), "population-weighted mean")
	assert.Equal(t, 400.0, *ain.Population)

	d, ok := cat.Lookup("Taux de pauvreté")
	require.True(t, ok)
	assert.Equal(t, 17.5, d.Stats.Min)
	assert.Equal(t, 30.0, d.Stats.Max)

	_, cat, _ = snap.Get(territory.Commune)
	d, ok = cat.Lookup("Médecins généralistes")
	require.True(t, ok)
	assert.Equal(t, 3.0, d.Stats.Median)

	units, variables := snap.Counts()
	assert.Equal(t, map[string]int{"departement": 2, "commune": 3}, units)
	assert.Equal(t, 2, variables["commune"])
}

func TestLoaderPrefersStoredCatalog(t *testing.T) {
	ctx := context.Background()
	s := store.NewJSONStore(store.DirSource(t.TempDir()))
	require.NoError(t, s.PutDataset(ctx, communes(t)))
	stored, err := refstats.NewCatalog(territory.Commune, []refstats.Descriptor{
		{Label: "Taux de pauvreté", Column: "tx_pauvrete", Category: refstats.CategorySocio, VulnerabilityIncreasing: true,
			Stats: refstats.Stats{Min: 0, Max: 100}},
	})
	require.NoError(t, err)
	require.NoError(t, s.PutCatalog(ctx, stored))

	snap, err := NewLoader(s, defsFor, discardLogger()).Load(ctx)
	require.NoError(t, err)
	_, cat, _ := snap.Get(territory.Commune)
	assert.Equal(t, 1, cat.Len())
	d, _ := cat.Lookup("Taux de pauvreté")
	assert.Equal(t, 100.0, d.Stats.Max)
}

func TestLoaderEmptyStore(t *testing.T) {
	s := store.NewJSONStore(store.DirSource(t.TempDir()))
	_, err := NewLoader(s, defsFor, discardLogger()).Load(context.Background())
	assert.Error(t, err)
}

func TestNewRequiresCatalog(t *testing.T) {
	_, err := New([]*territory.Dataset{communes(t)}, nil)
	assert.Error(t, err)
}

func TestSnapshotGetUnknown(t *testing.T) {
	cat, err := refstats.Build(testDefs, communes(t))
	require.NoError(t, err)
	snap, err := New([]*territory.Dataset{communes(t)}, []*refstats.Catalog{cat})
	require.NoError(t, err)
	_, _, ok := snap.Get(territory.Departement)
	assert.False(t, ok)
}

type stubLoader struct {
	snap *Snapshot
	err  error
}

func (l *stubLoader) Load(context.Context) (*Snapshot, error) { return l.snap, l.err }

type recordingHermes struct {
	mu        sync.Mutex
	published map[string][]interface{}
	handlers  map[string]func(string, []byte)
}

func newRecordingHermes() *recordingHermes {
	return &recordingHermes{published: map[string][]interface{}{}, handlers: map[string]func(string, []byte){}}
}

func (h *recordingHermes) Publish(subject string, data interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published[subject] = append(h.published[subject], data)
	return nil
}

func (h *recordingHermes) Subscribe(subject string, handler func(string, []byte)) error {
	h.handlers[subject] = handler
	return nil
}

func (h *recordingHermes) Close() {}

func TestReloaderSwapsAndPublishes(t *testing.T) {
	cat, err := refstats.Build(testDefs, communes(t))
	require.NoError(t, err)
	snap, err := New([]*territory.Dataset{communes(t)}, []*refstats.Catalog{cat})
	require.NoError(t, err)

	h := newRecordingHermes()
	holder := &Holder{}
	r := NewReloader(&stubLoader{snap: snap}, holder, h, discardLogger())
	before := testutil.ToFloat64(metrics.SnapshotReloads.WithLabelValues(TriggerAdmin, "ok"))

	got, err := r.Reload(context.Background(), TriggerAdmin)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SnapshotReloads.WithLabelValues(TriggerAdmin, "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SnapshotUnits.WithLabelValues("commune")))
	assert.Same(t, snap, got)
	assert.Same(t, snap, holder.Load())

	events := h.published[hermes.SubjectSnapshotReloaded]
	require.Len(t, events, 1)
	ev := events[0].(hermes.SnapshotReloadedEvent)
	assert.Equal(t, snap.ID.String(), ev.SnapshotID)
	assert.Equal(t, TriggerAdmin, ev.Trigger)
	assert.Equal(t, 3, ev.Units["commune"])
}

func TestReloaderKeepsPreviousOnFailure(t *testing.T) {
	cat, err := refstats.Build(testDefs, communes(t))
	require.NoError(t, err)
	previous, err := New([]*territory.Dataset{communes(t)}, []*refstats.Catalog{cat})
	require.NoError(t, err)

	holder := &Holder{}
	holder.Store(previous)
	h := newRecordingHermes()
	r := NewReloader(&stubLoader{err: errors.New("bucket unreachable")}, holder, h, discardLogger())

	_, err = r.Reload(context.Background(), TriggerSchedule)
	assert.Error(t, err)
	assert.Same(t, previous, holder.Load())
	assert.Empty(t, h.published)
}

func TestReloaderHandlesReloadRequests(t *testing.T) {
	cat, err := refstats.Build(testDefs, communes(t))
	require.NoError(t, err)
	snap, err := New([]*territory.Dataset{communes(t)}, []*refstats.Catalog{cat})
	require.NoError(t, err)

	h := newRecordingHermes()
	holder := &Holder{}
	r := NewReloader(&stubLoader{snap: snap}, holder, h, discardLogger())
	require.NoError(t, r.Start(context.Background(), ""))
	defer r.Stop()

	handler, ok := h.handlers[hermes.SubjectReloadRequest]
	require.True(t, ok, "reloader subscribes to reload requests")

	payload, _ := json.Marshal(hermes.ReloadRequestEvent{Reason: "new INSEE release"})
	handler(hermes.SubjectReloadRequest, payload)
	assert.Same(t, snap, holder.Load())

	handler(hermes.SubjectReloadRequest, []byte("not json"))
	assert.Len(t, h.published[hermes.SubjectSnapshotReloaded], 1, "malformed request is ignored")
}

func TestReloaderRejectsBadSchedule(t *testing.T) {
	r := NewReloader(&stubLoader{}, &Holder{}, nil, discardLogger())
	assert.Error(t, r.Start(context.Background(), "every tuesday"))
}
