package migration

import (
	"context"

	"glyphscore/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner applies the artifact schema. Every statement is idempotent
// and portable between SQLite and PostgreSQL.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all migrations in order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		ddl  string
	}{
		{"runs", createRunsTable},
		{"structural_vectors", createVectorsTable},
		{"cluster_assignments", createAssignmentsTable},
		{"test_results", createTestResultsTable},
		{"bootstrap_intervals", createIntervalsTable},
		{"indexes", createIndexes},
	}
	for _, step := range steps {
		if _, err := db.ExecContext(ctx, step.ddl); err != nil {
			return errors.Wrapf(err, "failed to create %s", step.name)
		}
	}
	return nil
}

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR(64) PRIMARY KEY,
		rule_set_name TEXT NOT NULL,
		corpus_name TEXT NOT NULL,
		tokens INTEGER NOT NULL,
		rule_set_hash VARCHAR(64) NOT NULL,
		corpus_hash VARCHAR(64) NOT NULL,
		fingerprint VARCHAR(64) NOT NULL,
		seed BIGINT NOT NULL,
		n_perm INTEGER NOT NULL,
		n_boot INTEGER NOT NULL,
		code_version VARCHAR(32) NOT NULL,
		manifest TEXT NOT NULL,
		created_at VARCHAR(40) NOT NULL
	)`

const createVectorsTable = `
	CREATE TABLE IF NOT EXISTS structural_vectors (
		run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		table_name VARCHAR(64) NOT NULL,
		item_key TEXT NOT NULL,
		count INTEGER NOT NULL,
		left_frac DOUBLE PRECISION NOT NULL,
		right_frac DOUBLE PRECISION NOT NULL,
		unknown_frac DOUBLE PRECISION NOT NULL,
		tie_frac DOUBLE PRECISION NOT NULL,
		mean_left_score DOUBLE PRECISION NOT NULL,
		mean_right_score DOUBLE PRECISION NOT NULL,
		mean_rule_hits DOUBLE PRECISION NOT NULL,
		mean_axis_diff DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, table_name, item_key)
	)`

const createAssignmentsTable = `
	CREATE TABLE IF NOT EXISTS cluster_assignments (
		run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		item_key TEXT NOT NULL,
		cluster_id INTEGER NOT NULL,
		distance_to_center DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, item_key)
	)`

const createTestResultsTable = `
	CREATE TABLE IF NOT EXISTS test_results (
		run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		family VARCHAR(64) NOT NULL,
		name TEXT NOT NULL,
		method VARCHAR(32) NOT NULL,
		observed_statistic DOUBLE PRECISION NOT NULL,
		null_mean DOUBLE PRECISION NOT NULL,
		null_std DOUBLE PRECISION NOT NULL,
		z_score DOUBLE PRECISION,
		effect_size DOUBLE PRECISION,
		p_value DOUBLE PRECISION NOT NULL,
		corrected_p_value DOUBLE PRECISION,
		verdict VARCHAR(16) NOT NULL,
		PRIMARY KEY (run_id, family, name, method)
	)`

const createIntervalsTable = `
	CREATE TABLE IF NOT EXISTS bootstrap_intervals (
		run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		family VARCHAR(64) NOT NULL,
		name TEXT NOT NULL,
		statistic VARCHAR(64) NOT NULL,
		n INTEGER NOT NULL,
		point_estimate DOUBLE PRECISION NOT NULL,
		ci_low DOUBLE PRECISION NOT NULL,
		ci_high DOUBLE PRECISION NOT NULL,
		std_error DOUBLE PRECISION NOT NULL,
		ci_level DOUBLE PRECISION NOT NULL,
		n_boot INTEGER NOT NULL,
		PRIMARY KEY (run_id, family, name)
	)`

const createIndexes = `
	CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint)`
