package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

// SQLiteStore is the embedded backend. The full record travels as a JSON
// payload; the columns exist for querying and listing without unmarshalling.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the SQLite database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open sqlite %s", path)
	}
	// The batch path writes from several goroutines; WAL plus a busy
	// timeout keeps writers from tripping over each other.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "store: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS golden_records (
	task_id            TEXT PRIMARY KEY,
	document           TEXT NOT NULL,
	source_name        TEXT NOT NULL,
	fingerprint        TEXT NOT NULL,
	overall_confidence REAL NOT NULL,
	completeness       REAL NOT NULL,
	consistency        REAL NOT NULL,
	requires_review    INTEGER NOT NULL,
	cost_usd           REAL NOT NULL,
	payload            TEXT NOT NULL,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_golden_records_fingerprint ON golden_records(fingerprint);
CREATE INDEX IF NOT EXISTS idx_golden_records_created_at ON golden_records(created_at);

CREATE TABLE IF NOT EXISTS processed_files (
	fingerprint TEXT PRIMARY KEY,
	source_name TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "store: migrate sqlite")
	}
	return nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *model.GoldenRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "store: marshal record")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO golden_records
			(task_id, document, source_name, fingerprint, overall_confidence,
			 completeness, consistency, requires_review, cost_usd, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET payload = excluded.payload`,
		rec.TaskID, rec.Document, rec.SourceName, rec.Fingerprint,
		rec.OverallConfidence, rec.Completeness, rec.Consistency,
		boolToInt(rec.RequiresReview), rec.CostUSD, string(payload),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return eris.Wrapf(err, "store: save record %s", rec.TaskID)
	}
	return nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, taskID string) (*model.GoldenRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM golden_records WHERE task_id = ?`, taskID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get record %s", taskID)
	}
	return unmarshalRecord(payload)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]*model.GoldenRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM golden_records ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list records")
	}
	defer rows.Close() //nolint:errcheck

	var out []*model.GoldenRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "store: scan record")
		}
		rec, err := unmarshalRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Lookup(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_files WHERE fingerprint = ?`, fingerprint).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "store: lookup fingerprint")
	}
	return true, nil
}

func (s *SQLiteStore) Record(ctx context.Context, fingerprint, sourceName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_files (fingerprint, source_name, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		fingerprint, sourceName, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return eris.Wrap(err, "store: record fingerprint")
	}
	return nil
}

func (s *SQLiteStore) CountFingerprints(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_files`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "store: count fingerprints")
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unmarshalRecord(payload string) (*model.GoldenRecord, error) {
	var rec model.GoldenRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal record")
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
