// Package runstore persists decode runs to sqlite: one row per run plus the
// per-iteration log-likelihood trace, with schema managed by versioned
// migrations.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the run database at path. The schema is not
// touched; call MigrateUp before using the store.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (db *DB) MigrateUp(migrationsDir string) error {
	m, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}
	// Not closing m here because that would close the underlying DB
	// connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migrationsDir string) error {
	m, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (db *DB) MigrateVersion(migrationsDir string) (version uint, dirty bool, err error) {
	m, err := db.newMigrate(migrationsDir)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate(migrationsDir string) (*migrate.Migrate, error) {
	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", absPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// DecodeRun is one persisted decode: the model setup as JSON plus the
// refinement outcome.
type DecodeRun struct {
	ID                string
	CreatedAt         time.Time
	ModelParams       string // JSON description of the fitted model
	DataLogLikelihood float64
	Converged         bool
	Iterations        int
}

// InsertRun stores a run and returns its generated id.
func (db *DB) InsertRun(run DecodeRun) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.Exec(`
		INSERT INTO decode_runs (id, created_at, model_params, data_log_likelihood, converged, iterations)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, createdAt.Format(time.RFC3339Nano), run.ModelParams, run.DataLogLikelihood, run.Converged, run.Iterations)
	if err != nil {
		return "", fmt.Errorf("failed to insert decode run: %w", err)
	}
	log.Printf("runstore: recorded decode run %s", id)
	return id, nil
}

// GetRun loads one run by id.
func (db *DB) GetRun(id string) (*DecodeRun, error) {
	row := db.QueryRow(`
		SELECT id, created_at, model_params, data_log_likelihood, converged, iterations
		FROM decode_runs WHERE id = ?
	`, id)

	var run DecodeRun
	var createdAt string
	if err := row.Scan(&run.ID, &createdAt, &run.ModelParams,
		&run.DataLogLikelihood, &run.Converged, &run.Iterations); err != nil {
		return nil, fmt.Errorf("failed to load decode run %s: %w", id, err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for run %s: %w", id, err)
	}
	run.CreatedAt = t
	return &run, nil
}

// ListRuns returns up to limit runs, most recent first.
func (db *DB) ListRuns(limit int) ([]DecodeRun, error) {
	rows, err := db.Query(`
		SELECT id, created_at, model_params, data_log_likelihood, converged, iterations
		FROM decode_runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decode runs: %w", err)
	}
	defer rows.Close()

	var runs []DecodeRun
	for rows.Next() {
		var run DecodeRun
		var createdAt string
		if err := rows.Scan(&run.ID, &createdAt, &run.ModelParams,
			&run.DataLogLikelihood, &run.Converged, &run.Iterations); err != nil {
			return nil, fmt.Errorf("failed to scan decode run: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		run.CreatedAt = t
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// InsertLogLikelihoods stores a run's per-iteration log-likelihood trace.
// Iteration 0 is the decode before any refinement.
func (db *DB) InsertLogLikelihoods(runID string, trace []float64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO run_log_likelihoods (run_id, iteration, log_likelihood)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace insert: %w", err)
	}
	defer stmt.Close()

	for i, ll := range trace {
		if _, err := stmt.Exec(runID, i, ll); err != nil {
			return fmt.Errorf("failed to insert trace row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetLogLikelihoods loads a run's trace ordered by iteration.
func (db *DB) GetLogLikelihoods(runID string) ([]float64, error) {
	rows, err := db.Query(`
		SELECT log_likelihood FROM run_log_likelihoods
		WHERE run_id = ? ORDER BY iteration
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace for run %s: %w", runID, err)
	}
	defer rows.Close()

	var trace []float64
	for rows.Next() {
		var ll float64
		if err := rows.Scan(&ll); err != nil {
			return nil, fmt.Errorf("failed to scan trace row: %w", err)
		}
		trace = append(trace, ll)
	}
	return trace, rows.Err()
}
