package store

import (
	"context"
	"errors"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// ErrNotFound is returned when a store holds no data for a granularity.
var ErrNotFound = errors.New("not found")

// Store reads the territorial datasets and reference catalogs of every
// granularity.
type Store interface {
	// LoadDataset returns every unit of a granularity.
	LoadDataset(ctx context.Context, g territory.Granularity) (*territory.Dataset, error)
	// LoadCatalog returns the reference statistics of a granularity. defs
	// fill in direction flags and unit labels the stored catalog lacks.
	// ErrNotFound means no catalog was stored; callers may build one.
	LoadCatalog(ctx context.Context, g territory.Granularity, defs []refstats.Definition) (*refstats.Catalog, error)

	Close() error
}

// Writer persists datasets and catalogs.
type Writer interface {
	PutDataset(ctx context.Context, ds *territory.Dataset) error
	PutCatalog(ctx context.Context, cat *refstats.Catalog) error
}

// ReadWriter is a Store that can also be written to.
type ReadWriter interface {
	Store
	Writer
}
