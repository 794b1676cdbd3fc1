package store

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
)

// Open returns the backend selected by cfg. The JSON backend reads from the
// S3 bucket when one is configured, then from BaseURL (read-only), then from
// the local directory.
func Open(ctx context.Context, cfg config.DataConfig) (ReadWriter, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		s, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendSQLite:
		s, err := NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendJSON:
		if cfg.S3.Bucket != "" {
			src, err := NewS3Source(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region, cfg.S3.Endpoint)
			if err != nil {
				return nil, err
			}
			return NewJSONStore(src), nil
		}
		if cfg.BaseURL != "" {
			return NewJSONStore(NewHTTPSource(cfg.BaseURL)), nil
		}
		return NewJSONStore(DirSource(cfg.Dir)), nil
	}
	return nil, fmt.Errorf("unknown data backend %q", cfg.Backend)
}
