package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS territorial_units (
		granularity     TEXT NOT NULL,
		code            TEXT NOT NULL,
		name            TEXT NOT NULL DEFAULT '',
		department_code TEXT NOT NULL,
		population      DOUBLE PRECISION,
		indicators      JSONB NOT NULL DEFAULT '{}',
		geometry        JSONB,
		PRIMARY KEY (granularity, code)
	)`,
	`CREATE INDEX IF NOT EXISTS territorial_units_department_idx
		ON territorial_units (granularity, department_code)`,
	`CREATE TABLE IF NOT EXISTS variable_stats (
		granularity              TEXT NOT NULL,
		label                    TEXT NOT NULL,
		position                 INTEGER NOT NULL,
		column_id                TEXT NOT NULL,
		category                 TEXT NOT NULL,
		vulnerability_increasing BOOLEAN NOT NULL,
		unit_label               TEXT NOT NULL DEFAULT '',
		min                      DOUBLE PRECISION NOT NULL,
		max                      DOUBLE PRECISION NOT NULL,
		p5                       DOUBLE PRECISION NOT NULL,
		q1                       DOUBLE PRECISION NOT NULL,
		q2                       DOUBLE PRECISION NOT NULL,
		q3                       DOUBLE PRECISION NOT NULL,
		p95                      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (granularity, label)
	)`,
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, ddl := range postgresSchema {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadDataset(ctx context.Context, g territory.Granularity) (*territory.Dataset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, department_code, population, indicators, geometry
		FROM territorial_units WHERE granularity = $1 ORDER BY code`, string(g))
	if err != nil {
		return nil, fmt.Errorf("query %s units: %w", g, err)
	}
	defer rows.Close()

	var out []unitRow
	for rows.Next() {
		var r unitRow
		if err := rows.Scan(&r.Code, &r.Name, &r.DepartmentCode, &r.Population, &r.Indicators, &r.Geometry); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fromUnitRows(g, out)
}

func (s *PostgresStore) LoadCatalog(ctx context.Context, g territory.Granularity, defs []refstats.Definition) (*refstats.Catalog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT position, label, column_id, category, vulnerability_increasing, unit_label,
			min, max, p5, q1, q2, q3, p95
		FROM variable_stats WHERE granularity = $1 ORDER BY position`, string(g))
	if err != nil {
		return nil, fmt.Errorf("query %s catalog: %w", g, err)
	}
	defer rows.Close()

	var out []statsRow
	for rows.Next() {
		var r statsRow
		var category string
		if err := rows.Scan(&r.Position, &r.Label, &r.Column, &category, &r.VulnerabilityIncreasing, &r.Unit,
			&r.Stats.Min, &r.Stats.Max, &r.Stats.P5, &r.Stats.Q1, &r.Stats.Median, &r.Stats.Q3, &r.Stats.P95); err != nil {
			return nil, err
		}
		if r.Category, err = refstats.ParseCategory(category); err != nil {
			return nil, fmt.Errorf("%s catalog %q: %w", g, r.Label, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fromStatsRows(g, out, defs)
}

// PutDataset replaces every unit of the dataset's granularity.
func (s *PostgresStore) PutDataset(ctx context.Context, ds *territory.Dataset) error {
	rows, err := toUnitRows(ds)
	if err != nil {
		return err
	}
	g := string(ds.Granularity())

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM territorial_units WHERE granularity = $1`, g); err != nil {
		return fmt.Errorf("clear %s units: %w", g, err)
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO territorial_units (granularity, code, name, department_code, population, indicators, geometry)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			g, r.Code, r.Name, r.DepartmentCode, r.Population, r.Indicators, r.Geometry)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert %s units: %w", g, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PutCatalog replaces the reference statistics of the catalog's granularity.
func (s *PostgresStore) PutCatalog(ctx context.Context, cat *refstats.Catalog) error {
	g := string(cat.Granularity())

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM variable_stats WHERE granularity = $1`, g); err != nil {
		return fmt.Errorf("clear %s catalog: %w", g, err)
	}
	for _, r := range toStatsRows(cat) {
		_, err := tx.Exec(ctx, `
			INSERT INTO variable_stats (granularity, label, position, column_id, category,
				vulnerability_increasing, unit_label, min, max, p5, q1, q2, q3, p95)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			g, r.Label, r.Position, r.Column, string(r.Category),
			r.VulnerabilityIncreasing, r.Unit,
			r.Stats.Min, r.Stats.Max, r.Stats.P5, r.Stats.Q1, r.Stats.Median, r.Stats.Q3, r.Stats.P95)
		if err != nil {
			return fmt.Errorf("insert %s variable %q: %w", g, r.Label, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
