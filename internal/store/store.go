// Package store persists golden records and the processed-file log behind a
// backend-neutral interface. SQLite serves local single-user runs, Postgres
// serves shared deployments; both honor the same contract.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/markbunyevacz/lambda-extract/internal/config"
	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: record not found")

// Store is the relational persistence backend. Record must be atomic and
// idempotent so it can serve as the duplicate gate's log: recording the same
// fingerprint twice, including from concurrent tasks, is a no-op.
type Store interface {
	Migrate(ctx context.Context) error

	SaveRecord(ctx context.Context, rec *model.GoldenRecord) error
	GetRecord(ctx context.Context, taskID string) (*model.GoldenRecord, error)
	ListRecords(ctx context.Context, limit int) ([]*model.GoldenRecord, error)

	Lookup(ctx context.Context, fingerprint string) (bool, error)
	Record(ctx context.Context, fingerprint, sourceName string) error
	CountFingerprints(ctx context.Context) (int64, error)

	Close() error
}

// New opens the store selected by configuration.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
