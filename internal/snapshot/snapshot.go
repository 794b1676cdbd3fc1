package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/store"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// Snapshot is one immutable generation of datasets and reference catalogs.
// It is shared by concurrent requests without locking.
type Snapshot struct {
	ID       uuid.UUID
	LoadedAt time.Time
	datasets map[territory.Granularity]*territory.Dataset
	catalogs map[territory.Granularity]*refstats.Catalog
}

// New assembles a snapshot. Every dataset needs a catalog of the same
// granularity.
func New(datasets []*territory.Dataset, catalogs []*refstats.Catalog) (*Snapshot, error) {
	s := &Snapshot{
		ID:       uuid.New(),
		LoadedAt: time.Now().UTC(),
		datasets: make(map[territory.Granularity]*territory.Dataset, len(datasets)),
		catalogs: make(map[territory.Granularity]*refstats.Catalog, len(catalogs)),
	}
	for _, c := range catalogs {
		s.catalogs[c.Granularity()] = c
	}
	for _, d := range datasets {
		if _, ok := s.catalogs[d.Granularity()]; !ok {
			return nil, fmt.Errorf("snapshot: no catalog for %s", d.Granularity())
		}
		s.datasets[d.Granularity()] = d
	}
	if len(s.datasets) == 0 {
		return nil, errors.New("snapshot: no dataset loaded")
	}
	return s, nil
}

// Get returns the dataset and catalog of a granularity.
func (s *Snapshot) Get(g territory.Granularity) (*territory.Dataset, *refstats.Catalog, bool) {
	d, ok := s.datasets[g]
	if !ok {
		return nil, nil, false
	}
	return d, s.catalogs[g], true
}

// Granularities lists the loaded levels, coarse first.
func (s *Snapshot) Granularities() []territory.Granularity {
	var out []territory.Granularity
	for _, g := range territory.Granularities {
		if _, ok := s.datasets[g]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Counts returns units and catalog variables per granularity.
func (s *Snapshot) Counts() (units, variables map[string]int) {
	units = make(map[string]int, len(s.datasets))
	variables = make(map[string]int, len(s.datasets))
	for g, d := range s.datasets {
		units[string(g)] = d.Len()
		variables[string(g)] = s.catalogs[g].Len()
	}
	return units, variables
}

// Holder publishes the current snapshot. Readers never block; a reload
// swaps the whole snapshot at once.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func (h *Holder) Load() *Snapshot { return h.current.Load() }

func (h *Holder) Store(s *Snapshot) { h.current.Store(s) }

// Loader builds snapshots from a store.
type Loader struct {
	store  store.Store
	defs   func(territory.Granularity) []refstats.Definition
	logger *slog.Logger
}

// NewLoader creates a Loader. defs supplies the variable definitions of a
// granularity, used to build a catalog the store does not hold.
func NewLoader(s store.Store, defs func(territory.Granularity) []refstats.Definition, logger *slog.Logger) *Loader {
	return &Loader{store: s, defs: defs, logger: logger}
}

// Load reads every granularity. A missing département dataset is derived
// from the communes by population-weighted aggregation; a missing catalog is
// built from the dataset itself.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	datasets := make(map[territory.Granularity]*territory.Dataset, len(territory.Granularities))
	for _, g := range territory.Granularities {
		ds, err := l.store.LoadDataset(ctx, g)
		if errors.Is(err, store.ErrNotFound) {
			l.logger.Warn("no dataset stored", "granularity", g)
			continue
		}
		if err != nil {
			return nil, err
		}
		datasets[g] = ds
	}

	if _, ok := datasets[territory.Departement]; !ok {
		if communes, ok := datasets[territory.Commune]; ok {
			deps, err := territory.AggregateDepartments(communes, communes.Columns(), "", nil)
			if err != nil {
				return nil, fmt.Errorf("aggregate departements: %w", err)
			}
			l.logger.Info("departements aggregated from communes", "units", deps.Len())
			datasets[territory.Departement] = deps
		}
	}

	var (
		dsList  []*territory.Dataset
		catList []*refstats.Catalog
	)
	for _, g := range territory.Granularities {
		ds, ok := datasets[g]
		if !ok {
			continue
		}
		cat, err := l.store.LoadCatalog(ctx, g, l.defs(g))
		if errors.Is(err, store.ErrNotFound) {
			cat, err = refstats.Build(l.defs(g), ds)
			if err == nil {
				l.logger.Info("reference statistics built from dataset", "granularity", g, "variables", cat.Len())
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%s catalog: %w", g, err)
		}
		dsList = append(dsList, ds)
		catList = append(catList, cat)
	}
	return New(dsList, catList)
}
