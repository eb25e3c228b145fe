package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/violation-cli/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements RecordStore using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns, pgxCfg.MinConns = 5, 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS acquisitions (
	id              TEXT PRIMARY KEY,
	plate           TEXT NOT NULL,
	state           TEXT NOT NULL,
	violation_count INTEGER NOT NULL DEFAULT 0,
	amount_due      NUMERIC(12,2) NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	result          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_acquisitions_plate ON acquisitions(plate);
CREATE INDEX IF NOT EXISTS idx_acquisitions_created_at ON acquisitions(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r *model.AcquisitionResult) error {
	if err := validateResult(r); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	createdAt := r.StartedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO acquisitions (id, plate, state, violation_count, amount_due, error, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   violation_count = EXCLUDED.violation_count,
		   amount_due = EXCLUDED.amount_due,
		   error = EXCLUDED.error,
		   result = EXCLUDED.result`,
		r.ID, r.Plate, r.State, len(r.Violations), r.Summary.TotalAmountDue, r.Error, data, createdAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save result %s", r.ID)
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]StoredResult, error) {
	filter = normalizeFilter(filter)
	query := `SELECT id, plate, state, violation_count, amount_due::float8, error, result, created_at FROM acquisitions`
	args := []any{}
	if filter.Plate != "" {
		args = append(args, filter.Plate)
		query += ` WHERE plate = $1`
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var (
			sr   StoredResult
			data []byte
		)
		if err := rows.Scan(&sr.ID, &sr.Plate, &sr.State, &sr.ViolationCount, &sr.AmountDue, &sr.Error, &data, &sr.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		sr.Result = &model.AcquisitionResult{}
		if err := json.Unmarshal(data, sr.Result); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal result %s", sr.ID)
		}
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate results")
}
