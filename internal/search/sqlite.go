package search

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteIndex implements the search store on SQLite FTS5.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the FTS index at path.
func NewSQLite(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "search: open index %s", path)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "search: enable WAL")
	}
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS record_index USING fts5(
			task_id UNINDEXED,
			title,
			source_name,
			body,
			confidence UNINDEXED
		)`)
	if err != nil {
		return eris.Wrap(err, "search: migrate index")
	}
	return nil
}

// Index upserts the document. FTS5 has no ON CONFLICT, so replacing means
// delete then insert inside one transaction.
func (s *SQLiteIndex) Index(ctx context.Context, doc Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "search: begin index tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_index WHERE task_id = ?`, doc.TaskID); err != nil {
		return eris.Wrap(err, "search: clear stale entry")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO record_index (task_id, title, source_name, body, confidence)
		VALUES (?, ?, ?, ?, ?)`,
		doc.TaskID, doc.Title, doc.SourceName, doc.Body, doc.Confidence); err != nil {
		return eris.Wrapf(err, "search: index %s", doc.TaskID)
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "search: commit index tx")
	}
	return nil
}

func (s *SQLiteIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, title, source_name, confidence
		FROM record_index
		WHERE record_index MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "search: query %q", query)
	}
	defer rows.Close() //nolint:errcheck

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.TaskID, &h.Title, &h.SourceName, &h.Confidence); err != nil {
			return nil, eris.Wrap(err, "search: scan hit")
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
