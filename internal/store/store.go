// Package store persists acquisition results and downloaded artifacts.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/violation-cli/internal/model"
)

// ResultFilter narrows ListResults.
type ResultFilter struct {
	Plate  string `json:"plate,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// StoredResult is one saved acquisition with its summary columns.
type StoredResult struct {
	ID             string                   `json:"id"`
	Plate          string                   `json:"plate"`
	State          string                   `json:"state"`
	ViolationCount int                      `json:"violation_count"`
	AmountDue      float64                  `json:"amount_due"`
	Error          string                   `json:"error,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	Result         *model.AcquisitionResult `json:"result"`
}

// RecordStore persists acquisition results.
type RecordStore interface {
	SaveResult(ctx context.Context, result *model.AcquisitionResult) error
	ListResults(ctx context.Context, filter ResultFilter) ([]StoredResult, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the RecordStore for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (RecordStore, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func normalizeFilter(f ResultFilter) ResultFilter {
	f.Plate = strings.ToUpper(strings.TrimSpace(f.Plate))
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func validateResult(r *model.AcquisitionResult) error {
	if r == nil {
		return eris.New("store: nil result")
	}
	if r.ID == "" {
		return eris.New("store: result has no id")
	}
	return nil
}
