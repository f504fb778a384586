// Package postgres persists analysis artifacts with sqlx over lib/pq
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gamelearn/domain/core"
	"gamelearn/domain/model"
	apperrors "gamelearn/internal/errors"
)

// ResultRepository stores fitted models, prediction tables and
// aggregate tables. It implements ports.ResultRepository.
type ResultRepository struct {
	db *sqlx.DB
}

// Connect opens a database handle and verifies the connection
func Connect(ctx context.Context, url string) (*ResultRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("connect: %v", err))
	}
	return &ResultRepository{db: db}, nil
}

// NewResultRepository wraps an existing handle
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Close releases the underlying connection pool
func (r *ResultRepository) Close() error {
	return r.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS model_fits (
	run_id      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	family      TEXT NOT NULL,
	reduced     BOOLEAN NOT NULL,
	converged   BOOLEAN NOT NULL,
	sample_size INTEGER NOT NULL,
	subjects    INTEGER NOT NULL,
	warnings    JSONB NOT NULL DEFAULT '[]',
	detail      JSONB NOT NULL,
	fitted_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, outcome)
);

CREATE TABLE IF NOT EXISTS model_predictions (
	run_id  TEXT NOT NULL,
	outcome TEXT NOT NULL,
	query   TEXT NOT NULL,
	rows    JSONB NOT NULL,
	PRIMARY KEY (run_id, outcome, query)
);

CREATE TABLE IF NOT EXISTS aggregate_cells (
	run_id    TEXT NOT NULL,
	outcome   TEXT NOT NULL,
	key_names TEXT[] NOT NULL,
	keys      TEXT[] NOT NULL,
	mean      DOUBLE PRECISION NOT NULL,
	std_err   DOUBLE PRECISION,
	n         INTEGER NOT NULL
);
`

// EnsureSchema creates the result tables if they do not exist
func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("ensure schema: %v", err))
	}
	return nil
}

// SaveModel stores one fitted model. The coefficient and variance
// tables travel as the JSON detail document; the columns queried by
// reporting are lifted out.
func (r *ResultRepository) SaveModel(ctx context.Context, runID core.RunID, m *model.FittedModel) error {
	detail, err := json.Marshal(m)
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("encode model %s: %v", m.Outcome, err))
	}
	warnings, err := json.Marshal(m.Warnings)
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("encode warnings %s: %v", m.Outcome, err))
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO model_fits (run_id, outcome, family, reduced, converged, sample_size, subjects, warnings, detail, fitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, outcome) DO UPDATE SET detail = EXCLUDED.detail`,
		runID.String(), m.Outcome.String(), string(m.Family), m.Formula.Reduced,
		m.Converged, m.SampleSize, m.Subjects, warnings, detail, m.FittedAt.Time())
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("save model %s: %v", m.Outcome, err))
	}
	return nil
}

// SavePredictions stores one counterfactual prediction table
func (r *ResultRepository) SavePredictions(ctx context.Context, runID core.RunID, t *model.PredictionTable) error {
	rows, err := json.Marshal(t.Rows)
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("encode predictions %s/%s: %v", t.Outcome, t.Query, err))
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO model_predictions (run_id, outcome, query, rows)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, outcome, query) DO UPDATE SET rows = EXCLUDED.rows`,
		runID.String(), t.Outcome.String(), t.Query, rows)
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("save predictions %s/%s: %v", t.Outcome, t.Query, err))
	}
	return nil
}

// SaveAggregates stores one descriptive table, one row per cell. An
// undefined standard error is stored as NULL.
func (r *ResultRepository) SaveAggregates(ctx context.Context, runID core.RunID, t model.AggregateTable) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("begin: %v", err))
	}
	defer tx.Rollback()

	for _, row := range t.Rows {
		var se interface{}
		if !math.IsNaN(row.StdErr) {
			se = row.StdErr
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO aggregate_cells (run_id, outcome, key_names, keys, mean, std_err, n)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID.String(), t.Outcome.String(), pq.Array(t.KeyNames), pq.Array(row.Keys), row.Mean, se, row.Count)
		if err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("save aggregate %s: %v", t.Outcome, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("commit: %v", err))
	}
	return nil
}
