package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/violation-cli/internal/model"
)

// SQLiteStore implements RecordStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS acquisitions (
	id              TEXT PRIMARY KEY,
	plate           TEXT NOT NULL,
	state           TEXT NOT NULL,
	violation_count INTEGER NOT NULL DEFAULT 0,
	amount_due      REAL NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	result          TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_acquisitions_plate ON acquisitions(plate);
CREATE INDEX IF NOT EXISTS idx_acquisitions_created_at ON acquisitions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r *model.AcquisitionResult) error {
	if err := validateResult(r); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	createdAt := r.StartedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO acquisitions (id, plate, state, violation_count, amount_due, error, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   violation_count = excluded.violation_count,
		   amount_due = excluded.amount_due,
		   error = excluded.error,
		   result = excluded.result`,
		r.ID, r.Plate, r.State, len(r.Violations), r.Summary.TotalAmountDue, r.Error, string(data), createdAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save result %s", r.ID)
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]StoredResult, error) {
	filter = normalizeFilter(filter)
	query := `SELECT id, plate, state, violation_count, amount_due, error, result, created_at FROM acquisitions`
	var args []any
	if filter.Plate != "" {
		query += ` WHERE plate = ?`
		args = append(args, filter.Plate)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close() //nolint:errcheck

	var out []StoredResult
	for rows.Next() {
		sr, err := scanResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		out = append(out, *sr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanResult(row scannable) (*StoredResult, error) {
	var (
		sr   StoredResult
		data string
	)
	if err := row.Scan(&sr.ID, &sr.Plate, &sr.State, &sr.ViolationCount, &sr.AmountDue, &sr.Error, &data, &sr.CreatedAt); err != nil {
		return nil, err
	}
	sr.Result = &model.AcquisitionResult{}
	if err := json.Unmarshal([]byte(data), sr.Result); err != nil {
		return nil, eris.Wrapf(err, "unmarshal result %s", sr.ID)
	}
	return &sr, nil
}
