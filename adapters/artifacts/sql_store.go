package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"glyphscore/domain/core"
	"glyphscore/domain/features"
	"glyphscore/domain/run"
	"glyphscore/domain/stats"
	"glyphscore/internal"
	apperrors "glyphscore/internal/errors"
	"glyphscore/internal/migration"
	"glyphscore/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers as "sqlite"; sqlx only knows "sqlite3" by default
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLStore persists artifacts through sqlx on SQLite or PostgreSQL
type SQLStore struct {
	db     *sqlx.DB
	logger *internal.Logger
}

var _ ports.ArtifactSink = (*SQLStore)(nil)

// OpenSQLStore connects and applies the schema
func OpenSQLStore(ctx context.Context, driver, dsn string, logger *internal.Logger) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, core.NewConfigError("artifact_driver", fmt.Sprintf("unsupported driver %q (want sqlite or postgres)", driver))
	}
	if dsn == "" {
		return nil, core.NewConfigError("artifact_dsn", "dsn is required")
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, apperrors.IOError("failed to connect to artifact store", err)
	}
	if driver == DriverSQLite {
		// one writer; foreign keys are off by default in SQLite
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, apperrors.IOError("failed to enable foreign keys", err)
		}
	}

	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, logger: logger.With("sql-store")}
	s.logger.Debug("artifact store ready (%s, schema %s)", driver, runner.Version())
	return s, nil
}

// NewSQLStore wraps an already migrated connection
func NewSQLStore(db *sqlx.DB, logger *internal.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger.With("sql-store")}
}

type runRow struct {
	RunID       string `db:"run_id"`
	RuleSetName string `db:"rule_set_name"`
	CorpusName  string `db:"corpus_name"`
	Tokens      int    `db:"tokens"`
	RuleSetHash string `db:"rule_set_hash"`
	CorpusHash  string `db:"corpus_hash"`
	Fingerprint string `db:"fingerprint"`
	Seed        int64  `db:"seed"`
	NPerm       int    `db:"n_perm"`
	NBoot       int    `db:"n_boot"`
	CodeVersion string `db:"code_version"`
	Manifest    string `db:"manifest"`
	CreatedAt   string `db:"created_at"`
}

// WriteManifest records the run; it must precede the run's other tables
func (s *SQLStore) WriteManifest(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(m)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode manifest")
	}
	fp := m.Fingerprint
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO runs (
			run_id, rule_set_name, corpus_name, tokens, rule_set_hash, corpus_hash,
			fingerprint, seed, n_perm, n_boot, code_version, manifest, created_at
		) VALUES (
			:run_id, :rule_set_name, :corpus_name, :tokens, :rule_set_hash, :corpus_hash,
			:fingerprint, :seed, :n_perm, :n_boot, :code_version, :manifest, :created_at
		)`, runRow{
		RunID:       m.RunID.String(),
		RuleSetName: m.RuleSetName,
		CorpusName:  m.CorpusName,
		Tokens:      m.Tokens,
		RuleSetHash: fp.RuleSetHash.String(),
		CorpusHash:  fp.CorpusHash.String(),
		Fingerprint: fp.Fingerprint.String(),
		Seed:        fp.Seed,
		NPerm:       fp.NPerm,
		NBoot:       fp.NBoot,
		CodeVersion: fp.CodeVersion,
		Manifest:    string(doc),
		CreatedAt:   m.CreatedAt.Time().Format(time.RFC3339Nano),
	})
	if err != nil {
		return apperrors.IOError("failed to insert run manifest", err)
	}
	return nil
}

type vectorRow struct {
	RunID string `db:"run_id"`
	Table string `db:"table_name"`
	features.StructuralVector
}

// WriteVectors stores one structural-vector table in a single transaction
func (s *SQLStore) WriteVectors(ctx context.Context, runID core.RunID, table string, vectors []features.StructuralVector) error {
	return s.inTx(ctx, "structural_vectors", func(tx *sqlx.Tx) error {
		for _, v := range vectors {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO structural_vectors (
					run_id, table_name, item_key, count, left_frac, right_frac, unknown_frac, tie_frac,
					mean_left_score, mean_right_score, mean_rule_hits, mean_axis_diff
				) VALUES (
					:run_id, :table_name, :item_key, :count, :left_frac, :right_frac, :unknown_frac, :tie_frac,
					:mean_left_score, :mean_right_score, :mean_rule_hits, :mean_axis_diff
				)`, vectorRow{RunID: runID.String(), Table: table, StructuralVector: v})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

type assignmentRow struct {
	RunID string `db:"run_id"`
	features.ClusterAssignment
}

// WriteAssignments stores the cluster assignment table
func (s *SQLStore) WriteAssignments(ctx context.Context, runID core.RunID, assignments []features.ClusterAssignment) error {
	return s.inTx(ctx, "cluster_assignments", func(tx *sqlx.Tx) error {
		for _, a := range assignments {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO cluster_assignments (run_id, item_key, cluster_id, distance_to_center)
				VALUES (:run_id, :item_key, :cluster_id, :distance_to_center)`,
				assignmentRow{RunID: runID.String(), ClusterAssignment: a})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

type testRow struct {
	RunID string `db:"run_id"`
	stats.TestRecord
}

// WriteTestRecords stores statistical-test rows; an undefined z-score is NULL
func (s *SQLStore) WriteTestRecords(ctx context.Context, runID core.RunID, records []stats.TestRecord) error {
	return s.inTx(ctx, "test_results", func(tx *sqlx.Tx) error {
		for _, r := range records {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO test_results (
					run_id, family, name, method, observed_statistic, null_mean, null_std,
					z_score, effect_size, p_value, corrected_p_value, verdict
				) VALUES (
					:run_id, :family, :name, :method, :observed_statistic, :null_mean, :null_std,
					:z_score, :effect_size, :p_value, :corrected_p_value, :verdict
				)`, testRow{RunID: runID.String(), TestRecord: r})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

type intervalRow struct {
	RunID string `db:"run_id"`
	stats.IntervalRecord
}

// WriteIntervals stores bootstrap confidence intervals
func (s *SQLStore) WriteIntervals(ctx context.Context, runID core.RunID, intervals []stats.IntervalRecord) error {
	return s.inTx(ctx, "bootstrap_intervals", func(tx *sqlx.Tx) error {
		for _, r := range intervals {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO bootstrap_intervals (
					run_id, family, name, statistic, n, point_estimate, ci_low, ci_high, std_error, ci_level, n_boot
				) VALUES (
					:run_id, :family, :name, :statistic, :n, :point_estimate, :ci_low, :ci_high, :std_error, :ci_level, :n_boot
				)`, intervalRow{RunID: runID.String(), IntervalRecord: r})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Intervals reads back a run's bootstrap intervals ordered by family and name
func (s *SQLStore) Intervals(ctx context.Context, runID core.RunID) ([]stats.IntervalRecord, error) {
	var out []stats.IntervalRecord
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT family, name, statistic, n, point_estimate, ci_low, ci_high, std_error, ci_level, n_boot
		FROM bootstrap_intervals WHERE run_id = ? ORDER BY family, name`), runID.String())
	if err != nil {
		return nil, apperrors.IOError("failed to read bootstrap intervals", err)
	}
	return out, nil
}

// TestRecords reads back a run's test rows ordered by family and name
func (s *SQLStore) TestRecords(ctx context.Context, runID core.RunID) ([]stats.TestRecord, error) {
	var out []stats.TestRecord
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT family, name, method, observed_statistic, null_mean, null_std,
		       z_score, effect_size, p_value, corrected_p_value, verdict
		FROM test_results WHERE run_id = ? ORDER BY family, name`), runID.String())
	if err != nil {
		return nil, apperrors.IOError("failed to read test results", err)
	}
	return out, nil
}

// Vectors reads back one structural-vector table ordered by key
func (s *SQLStore) Vectors(ctx context.Context, runID core.RunID, table string) ([]features.StructuralVector, error) {
	var out []features.StructuralVector
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT item_key, count, left_frac, right_frac, unknown_frac, tie_frac,
		       mean_left_score, mean_right_score, mean_rule_hits, mean_axis_diff
		FROM structural_vectors WHERE run_id = ? AND table_name = ? ORDER BY item_key`), runID.String(), table)
	if err != nil {
		return nil, apperrors.IOError("failed to read structural vectors", err)
	}
	return out, nil
}

// RunsByFingerprint lists run ids that share a fingerprint, oldest first
func (s *SQLStore) RunsByFingerprint(ctx context.Context, fingerprint core.Hash) ([]core.RunID, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`
		SELECT run_id FROM runs WHERE fingerprint = ? ORDER BY created_at`), fingerprint.String())
	if err != nil {
		return nil, apperrors.IOError("failed to query runs", err)
	}
	out := make([]core.RunID, len(ids))
	for i, id := range ids {
		out[i] = core.RunID(id)
	}
	return out, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) inTx(ctx context.Context, table string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.IOError("failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return apperrors.IOError("failed to write "+table, err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.IOError("failed to commit "+table, err)
	}
	return nil
}
