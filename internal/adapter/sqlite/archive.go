// Package sqlite archives trend runs in a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	generated_at TEXT NOT NULL,
	stations INTEGER NOT NULL,
	results INTEGER NOT NULL,
	excluded INTEGER NOT NULL,
	analysis TEXT NOT NULL,
	artifacts TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trend_results (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	station_id TEXT NOT NULL,
	level TEXT NOT NULL,
	trend TEXT NOT NULL,
	sen_slope REAL,
	p_value REAL,
	payload TEXT NOT NULL,
	PRIMARY KEY (run_id, station_id, level)
);
CREATE TABLE IF NOT EXISTS exclusions (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	station_id TEXT NOT NULL,
	level TEXT NOT NULL,
	stage TEXT NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at);
CREATE INDEX IF NOT EXISTS idx_results_level ON trend_results(run_id, level);`

// Archive stores runs, their results and their exclusions. It implements
// pipeline.Sink.
type Archive struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the archive at path, creating its directory.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	logger.Debug("archive opened", "path", path)
	return &Archive{db: db, path: path, logger: logger}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) Name() string { return "archive" }

// Deliver stores the report in one transaction. Storing the same run twice
// replaces it.
func (a *Archive) Deliver(ctx context.Context, report *domain.Report) error {
	analysis, err := json.Marshal(report.Run.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	artifacts, err := json.Marshal(nonNil(report.Artifacts))
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	run := report.Run
	for _, table := range []string{"exclusions", "trend_results"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("replace run %s: %w", run.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("replace run %s: %w", run.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(id, generated_at, stations, results, excluded, analysis, artifacts) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.GeneratedAt.UTC().Format(time.RFC3339Nano), run.Stations, run.Results, run.Excluded, string(analysis), string(artifacts),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	results, err := tx.PrepareContext(ctx,
		`INSERT INTO trend_results(run_id, station_id, level, trend, sen_slope, p_value, payload) VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare results: %w", err)
	}
	defer results.Close()
	for _, r := range report.Results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result %s/%s: %w", r.StationID, r.Level, err)
		}
		if _, err := results.ExecContext(ctx, run.ID, r.StationID, r.Level.String(), r.Trend(),
			nullFloat(r.SenSlope), nullFloat(r.PValue), string(payload)); err != nil {
			return fmt.Errorf("insert result %s/%s: %w", r.StationID, r.Level, err)
		}
	}

	exclusions, err := tx.PrepareContext(ctx,
		`INSERT INTO exclusions(run_id, station_id, level, stage, kind, reason) VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare exclusions: %w", err)
	}
	defer exclusions.Close()
	for _, e := range report.Exclusions {
		if _, err := exclusions.ExecContext(ctx, run.ID, e.StationID, e.Level, e.Stage, e.Kind, e.Reason); err != nil {
			return fmt.Errorf("insert exclusion %s: %w", e.StationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	a.logger.Info("run archived", "run_id", run.ID, "results", len(report.Results), "exclusions", len(report.Exclusions))
	return nil
}

// LatestRun returns the most recently generated run and its artifact names.
func (a *Archive) LatestRun(ctx context.Context) (domain.Run, []string, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id, generated_at, stations, results, excluded, analysis, artifacts
		 FROM runs ORDER BY generated_at DESC, rowid DESC LIMIT 1`)

	var (
		run                         domain.Run
		generatedAt, analysis, arts string
	)
	err := row.Scan(&run.ID, &generatedAt, &run.Stations, &run.Results, &run.Excluded, &analysis, &arts)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, nil, domain.ErrNoRuns
	}
	if err != nil {
		return domain.Run{}, nil, fmt.Errorf("query latest run: %w", err)
	}
	if run.GeneratedAt, err = time.Parse(time.RFC3339Nano, generatedAt); err != nil {
		return domain.Run{}, nil, fmt.Errorf("run %s: generated_at: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(analysis), &run.Analysis); err != nil {
		return domain.Run{}, nil, fmt.Errorf("run %s: analysis: %w", run.ID, err)
	}
	var artifacts []string
	if err := json.Unmarshal([]byte(arts), &artifacts); err != nil {
		return domain.Run{}, nil, fmt.Errorf("run %s: artifacts: %w", run.ID, err)
	}
	return run, artifacts, nil
}

// Results returns the results of one level of a run, in the order stored.
func (a *Archive) Results(ctx context.Context, runID string, level domain.Level) ([]domain.TrendResult, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT payload FROM trend_results WHERE run_id = ? AND level = ? ORDER BY rowid`,
		runID, level.String())
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := []domain.TrendResult{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var r domain.TrendResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Exclusions returns the exclusions of a run.
func (a *Archive) Exclusions(ctx context.Context, runID string) ([]domain.Exclusion, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT station_id, level, stage, kind, reason FROM exclusions WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	out := []domain.Exclusion{}
	for rows.Next() {
		var e domain.Exclusion
		if err := rows.Scan(&e.StationID, &e.Level, &e.Stage, &e.Kind, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CheckReadiness reports the archive ready once it holds a run.
func (a *Archive) CheckReadiness(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return err
	}
	_, _, err := a.LatestRun(ctx)
	return err
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
