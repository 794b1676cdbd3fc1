// Command territoires-refstats imports the national datasets into the
// configured data store and computes their reference statistics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/hermes"
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/store"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	srcDir := flag.String("src", "", "directory holding the source JSON files (defaults to the configured data source)")
	aggregate := flag.Bool("aggregate", true, "derive départements from communes when no département file exists")
	dryRun := flag.Bool("dry-run", false, "print the computed statistics instead of writing them")
	notify := flag.Bool("notify", true, "ask running servers to reload over hermes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger(os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	src, err := openSource(ctx, cfg.Data, *srcDir)
	if err != nil {
		logger.Error("failed to open source", "error", err)
		os.Exit(1)
	}

	datasets, catalogs, err := compute(ctx, src, cfg, *aggregate, logger)
	if err != nil {
		logger.Error("failed to compute reference statistics", "error", err)
		os.Exit(1)
	}

	if *dryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(catalogs); err != nil {
			logger.Error("failed to print statistics", "error", err)
			os.Exit(1)
		}
		return
	}

	dst, err := store.Open(ctx, cfg.Data)
	if err != nil {
		logger.Error("failed to open data store", "backend", cfg.Data.Backend, "error", err)
		os.Exit(1)
	}
	defer dst.Close()

	for i, ds := range datasets {
		if err := dst.PutDataset(ctx, ds); err != nil {
			logger.Error("failed to write dataset", "granularity", ds.Granularity(), "error", err)
			os.Exit(1)
		}
		if err := dst.PutCatalog(ctx, catalogs[i]); err != nil {
			logger.Error("failed to write statistics", "granularity", ds.Granularity(), "error", err)
			os.Exit(1)
		}
		logger.Info("granularity imported",
			"granularity", ds.Granularity(),
			"backend", cfg.Data.Backend,
			"units", ds.Len(),
			"variables", catalogs[i].Len(),
		)
	}

	if *notify && cfg.Hermes.URL != "" {
		requestReload(ctx, cfg.Hermes.URL, logger)
	}
}

// openSource reads from dir when given, from the configured JSON location
// otherwise.
func openSource(ctx context.Context, data config.DataConfig, dir string) (store.Store, error) {
	if dir != "" {
		return store.NewJSONStore(store.DirSource(dir)), nil
	}
	data.Backend = config.BackendJSON
	return store.Open(ctx, data)
}

func compute(ctx context.Context, src store.Store, cfg *config.Config, aggregate bool, logger *slog.Logger) ([]*territory.Dataset, []*refstats.Catalog, error) {
	loaded := make(map[territory.Granularity]*territory.Dataset)
	for _, g := range territory.Granularities {
		ds, err := src.LoadDataset(ctx, g)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("no source file", "granularity", g, "file", store.UnitsFile(g))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", g, err)
		}
		loaded[g] = ds
	}

	if _, ok := loaded[territory.Departement]; !ok && aggregate {
		if communes, ok := loaded[territory.Commune]; ok {
			deps, err := territory.AggregateDepartments(communes, communes.Columns(), "", nil)
			if err != nil {
				return nil, nil, err
			}
			logger.Info("départements aggregated from communes", "units", deps.Len())
			loaded[territory.Departement] = deps
		}
	}

	var (
		datasets []*territory.Dataset
		catalogs []*refstats.Catalog
	)
	for _, g := range territory.Granularities {
		ds, ok := loaded[g]
		if !ok {
			continue
		}
		cat, err := refstats.Build(cfg.DefinitionsFor(g), ds)
		if err != nil {
			return nil, nil, err
		}
		datasets = append(datasets, ds)
		catalogs = append(catalogs, cat)
	}
	if len(datasets) == 0 {
		return nil, nil, errors.New("no source dataset found")
	}
	return datasets, catalogs, nil
}

func requestReload(ctx context.Context, url string, logger *slog.Logger) {
	hc, err := hermes.NewNATSClient(ctx, url, logger)
	if err != nil {
		logger.Warn("failed to connect to hermes, servers will pick up the data on their next reload", "error", err)
		return
	}
	defer hc.Close()
	if err := hc.Publish(hermes.SubjectReloadRequest, hermes.ReloadRequestEvent{Reason: "reference statistics imported"}); err != nil {
		logger.Warn("failed to request reload", "error", err)
		return
	}
	logger.Info("reload requested")
}
