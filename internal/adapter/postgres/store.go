// Package postgres persists footprint runs to PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// maxParams is the PostgreSQL bind parameter limit per statement.
const maxParams = 65535

// Schema creates the tables written by Store. Every row carries the run id so
// several runs can share one database.
const Schema = `
CREATE TABLE IF NOT EXISTS footprint_runs (
	run_id       TEXT PRIMARY KEY,
	generated_at TIMESTAMPTZ NOT NULL,
	manifest     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS footprint (
	run_id           TEXT NOT NULL REFERENCES footprint_runs(run_id) ON DELETE CASCADE,
	event_id         INTEGER NOT NULL,
	areaperil_id     INTEGER NOT NULL,
	intensity_bin_id INTEGER NOT NULL,
	probability      DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, event_id, areaperil_id)
);
CREATE TABLE IF NOT EXISTS vulnerability (
	run_id           TEXT NOT NULL REFERENCES footprint_runs(run_id) ON DELETE CASCADE,
	vulnerability_id INTEGER NOT NULL,
	intensity_bin_id INTEGER NOT NULL,
	damage_bin_id    INTEGER NOT NULL,
	probability      DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, vulnerability_id, intensity_bin_id)
);
CREATE TABLE IF NOT EXISTS occurrence (
	run_id    TEXT NOT NULL REFERENCES footprint_runs(run_id) ON DELETE CASCADE,
	event_id  INTEGER NOT NULL,
	period_no INTEGER NOT NULL,
	occ_year  INTEGER NOT NULL,
	occ_month INTEGER NOT NULL,
	occ_day   INTEGER NOT NULL,
	PRIMARY KEY (run_id, event_id)
);
`

const (
	insertRun = `INSERT INTO footprint_runs (run_id, generated_at, manifest)
		VALUES (:run_id, :generated_at, :manifest)`
	insertFootprint = `INSERT INTO footprint (run_id, event_id, areaperil_id, intensity_bin_id, probability)
		VALUES (:run_id, :event_id, :areaperil_id, :intensity_bin_id, :probability)`
	insertVulnerability = `INSERT INTO vulnerability (run_id, vulnerability_id, intensity_bin_id, damage_bin_id, probability)
		VALUES (:run_id, :vulnerability_id, :intensity_bin_id, :damage_bin_id, :probability)`
	insertOccurrence = `INSERT INTO occurrence (run_id, event_id, period_no, occ_year, occ_month, occ_day)
		VALUES (:run_id, :event_id, :period_no, :occ_year, :occ_month, :occ_day)`
)

type runRow struct {
	RunID       string    `db:"run_id"`
	GeneratedAt time.Time `db:"generated_at"`
	Manifest    []byte    `db:"manifest"`
}

type footprintRow struct {
	RunID string `db:"run_id"`
	domain.FootprintRecord
}

type vulnerabilityRow struct {
	RunID string `db:"run_id"`
	domain.VulnerabilityBinRecord
}

type occurrenceRow struct {
	RunID string `db:"run_id"`
	domain.Occurrence
}

// Store writes runs to PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStore(db, logger), nil
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Name identifies the sink in logs.
func (s *Store) Name() string { return "postgres" }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Write stores the run manifest and its footprint, vulnerability, and
// occurrence tables in one transaction.
func (s *Store) Write(ctx context.Context, out *domain.RunOutput) error {
	manifest, err := json.Marshal(out.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	runID := out.Manifest.RunID

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.NamedExecContext(ctx, insertRun, runRow{
		RunID:       runID,
		GeneratedAt: out.Manifest.GeneratedAt,
		Manifest:    manifest,
	}); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if err := insertBatches(ctx, tx, "footprint", insertFootprint, footprintRows(runID, out.Footprint)); err != nil {
		return err
	}
	if err := insertBatches(ctx, tx, "vulnerability", insertVulnerability, vulnerabilityRows(runID, out.Vulnerability)); err != nil {
		return err
	}
	if err := insertBatches(ctx, tx, "occurrence", insertOccurrence, occurrenceRows(runID, out.Occurrences)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", runID, err)
	}
	s.logger.Info("run stored", "run_id", runID, "footprint_records", len(out.Footprint))
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// insertBatches bulk-inserts rows with as many rows per statement as the
// bind parameter limit allows.
func insertBatches[T any](ctx context.Context, tx *sqlx.Tx, table, query string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	for _, c := range chunks(len(rows), batchRows(query)) {
		if _, err := tx.NamedExecContext(ctx, query, rows[c[0]:c[1]]); err != nil {
			return fmt.Errorf("insert %s rows %d-%d: %w", table, c[0], c[1], err)
		}
	}
	return nil
}

// batchRows returns how many rows of a named insert fit in one statement.
func batchRows(query string) int {
	params := 0
	for i := 0; i < len(query)-1; i++ {
		if query[i] != ':' {
			continue
		}
		if query[i+1] == ':' {
			i++
			continue
		}
		params++
	}
	if params == 0 {
		return maxParams
	}
	return maxParams / params
}

// chunks splits [0, n) into half-open ranges of at most size.
func chunks(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

func footprintRows(runID string, recs []domain.FootprintRecord) []footprintRow {
	rows := make([]footprintRow, len(recs))
	for i, r := range recs {
		rows[i] = footprintRow{RunID: runID, FootprintRecord: r}
	}
	return rows
}

func vulnerabilityRows(runID string, recs []domain.VulnerabilityBinRecord) []vulnerabilityRow {
	rows := make([]vulnerabilityRow, len(recs))
	for i, r := range recs {
		rows[i] = vulnerabilityRow{RunID: runID, VulnerabilityBinRecord: r}
	}
	return rows
}

func occurrenceRows(runID string, occ []domain.Occurrence) []occurrenceRow {
	rows := make([]occurrenceRow, len(occ))
	for i, o := range occ {
		rows[i] = occurrenceRow{RunID: runID, Occurrence: o}
	}
	return rows
}
