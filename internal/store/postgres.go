package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// pgxPool is the slice of pgxpool.Pool the store uses, narrow enough to
// swap in a mock pool in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore is the shared-deployment backend.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgres connects to the given database URL and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

func newPostgresWithPool(pool pgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS golden_records (
	task_id            TEXT PRIMARY KEY,
	document           TEXT NOT NULL,
	source_name        TEXT NOT NULL,
	fingerprint        TEXT NOT NULL,
	overall_confidence DOUBLE PRECISION NOT NULL,
	completeness       DOUBLE PRECISION NOT NULL,
	consistency        DOUBLE PRECISION NOT NULL,
	requires_review    BOOLEAN NOT NULL,
	cost_usd           DOUBLE PRECISION NOT NULL,
	payload            JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_golden_records_fingerprint ON golden_records(fingerprint);
CREATE INDEX IF NOT EXISTS idx_golden_records_created_at ON golden_records(created_at);

CREATE TABLE IF NOT EXISTS processed_files (
	fingerprint TEXT PRIMARY KEY,
	source_name TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return eris.Wrap(err, "store: migrate postgres")
	}
	return nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec *model.GoldenRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "store: marshal record")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO golden_records
			(task_id, document, source_name, fingerprint, overall_confidence,
			 completeness, consistency, requires_review, cost_usd, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (task_id) DO UPDATE SET payload = EXCLUDED.payload`,
		rec.TaskID, rec.Document, rec.SourceName, rec.Fingerprint,
		rec.OverallConfidence, rec.Completeness, rec.Consistency,
		rec.RequiresReview, rec.CostUSD, payload, rec.CreatedAt.UTC())
	if err != nil {
		return eris.Wrapf(err, "store: save record %s", rec.TaskID)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, taskID string) (*model.GoldenRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM golden_records WHERE task_id = $1`, taskID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get record %s", taskID)
	}
	return unmarshalRecord(string(payload))
}

func (s *PostgresStore) ListRecords(ctx context.Context, limit int) ([]*model.GoldenRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM golden_records ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list records")
	}
	defer rows.Close()

	var out []*model.GoldenRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "store: scan record")
		}
		rec, err := unmarshalRecord(string(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Lookup(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM processed_files WHERE fingerprint = $1`, fingerprint).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "store: lookup fingerprint")
	}
	return true, nil
}

func (s *PostgresStore) Record(ctx context.Context, fingerprint, sourceName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processed_files (fingerprint, source_name)
		VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO NOTHING`,
		fingerprint, sourceName)
	if err != nil {
		return eris.Wrap(err, "store: record fingerprint")
	}
	return nil
}

func (s *PostgresStore) CountFingerprints(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed_files`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "store: count fingerprints")
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
