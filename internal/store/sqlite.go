package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // driver: sqlite

	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS territorial_units (
  granularity TEXT NOT NULL,
  code TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  department_code TEXT NOT NULL,
  population REAL,
  indicators TEXT NOT NULL DEFAULT '{}',
  geometry TEXT,
  PRIMARY KEY (granularity, code)
);

CREATE INDEX IF NOT EXISTS territorial_units_department_idx
  ON territorial_units (granularity, department_code);

CREATE TABLE IF NOT EXISTS variable_stats (
  granularity TEXT NOT NULL,
  label TEXT NOT NULL,
  position INTEGER NOT NULL,
  column_id TEXT NOT NULL,
  category TEXT NOT NULL,
  vulnerability_increasing INTEGER NOT NULL,
  unit_label TEXT NOT NULL DEFAULT '',
  min REAL NOT NULL,
  max REAL NOT NULL,
  p5 REAL NOT NULL,
  q1 REAL NOT NULL,
  q2 REAL NOT NULL,
  q3 REAL NOT NULL,
  p95 REAL NOT NULL,
  PRIMARY KEY (granularity, label)
);
`

// SQLiteStore keeps the data set in an embedded database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadDataset(ctx context.Context, g territory.Granularity) (*territory.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, department_code, population, indicators, geometry
		FROM territorial_units WHERE granularity = ? ORDER BY code`, string(g))
	if err != nil {
		return nil, fmt.Errorf("query %s units: %w", g, err)
	}
	defer rows.Close()

	var out []unitRow
	for rows.Next() {
		var (
			r          unitRow
			population sql.NullFloat64
			indicators string
			geometry   sql.NullString
		)
		if err := rows.Scan(&r.Code, &r.Name, &r.DepartmentCode, &population, &indicators, &geometry); err != nil {
			return nil, err
		}
		if population.Valid {
			p := population.Float64
			r.Population = &p
		}
		r.Indicators = []byte(indicators)
		if geometry.Valid {
			r.Geometry = []byte(geometry.String)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fromUnitRows(g, out)
}

func (s *SQLiteStore) LoadCatalog(ctx context.Context, g territory.Granularity, defs []refstats.Definition) (*refstats.Catalog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, label, column_id, category, vulnerability_increasing, unit_label,
			min, max, p5, q1, q2, q3, p95
		FROM variable_stats WHERE granularity = ? ORDER BY position`, string(g))
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
func (s *SQLiteStore) PutDataset(ctx context.Context, ds *territory.Dataset) error {
	rows, err := toUnitRows(ds)
	if err != nil {
		return err
	}
	g := string(ds.Granularity())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM territorial_units WHERE granularity = ?`, g); err != nil {
		return fmt.Errorf("clear %s units: %w", g, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO territorial_units (granularity, code, name, department_code, population, indicators, geometry)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		var geometry interface{}
		if r.Geometry != nil {
			geometry = string(r.Geometry)
		}
		if _, err := stmt.ExecContext(ctx, g, r.Code, r.Name, r.DepartmentCode, r.Population, string(r.Indicators), geometry); err != nil {
			return fmt.Errorf("insert %s unit %s: %w", g, r.Code, err)
		}
	}
	return tx.Commit()
}

// PutCatalog replaces the reference statistics of the catalog's granularity.
func (s *SQLiteStore) PutCatalog(ctx context.Context, cat *refstats.Catalog) error {
	g := string(cat.Granularity())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM variable_stats WHERE granularity = ?`, g); err != nil {
		return fmt.Errorf("clear %s catalog: %w", g, err)
	}
	for _, r := range toStatsRows(cat) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO variable_stats (granularity, label, position, column_id, category,
				vulnerability_increasing, unit_label, min, max, p5, q1, q2, q3, p95)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g, r.Label, r.Position, r.Column, string(r.Category),
			r.VulnerabilityIncreasing, r.Unit,
			r.Stats.Min, r.Stats.Max, r.Stats.P5, r.Stats.Q1, r.Stats.Median, r.Stats.Q3, r.Stats.P95)
		if err != nil {
			return fmt.Errorf("insert %s variable %q: %w", g, r.Label, err)
		}
	}
	return tx.Commit()
}
