package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresWithPool(mock), mock
}

func TestPostgresSaveRecord(t *testing.T) {
	st, mock := testPostgres(t)
	rec := testRecord("t1")

	mock.ExpectExec("INSERT INTO golden_records").
		WithArgs(rec.TaskID, rec.Document, rec.SourceName, rec.Fingerprint,
			rec.OverallConfidence, rec.Completeness, rec.Consistency,
			rec.RequiresReview, rec.CostUSD, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRecord(t *testing.T) {
	st, mock := testPostgres(t)
	rec := testRecord("t1")
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM golden_records").
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := st.GetRecord(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, rec.TaskID, got.TaskID)
	assert.Equal(t, rec.Fingerprint, got.Fingerprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRecordNotFound(t *testing.T) {
	st, mock := testPostgres(t)

	mock.ExpectQuery("SELECT payload FROM golden_records").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFingerprintLookup(t *testing.T) {
	st, mock := testPostgres(t)

	mock.ExpectQuery("SELECT 1 FROM processed_files").
		WithArgs("fp-known").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	known, err := st.Lookup(context.Background(), "fp-known")
	require.NoError(t, err)
	assert.True(t, known)

	mock.ExpectQuery("SELECT 1 FROM processed_files").
		WithArgs("fp-new").
		WillReturnError(pgx.ErrNoRows)
	known, err = st.Lookup(context.Background(), "fp-new")
	require.NoError(t, err)
	assert.False(t, known)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordFingerprint(t *testing.T) {
	st, mock := testPostgres(t)

	mock.ExpectExec("INSERT INTO processed_files").
		WithArgs("fp-1", "unit").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, st.Record(context.Background(), "fp-1", "unit"))

	// A duplicate insert hits ON CONFLICT DO NOTHING: zero rows, no error.
	mock.ExpectExec("INSERT INTO processed_files").
		WithArgs("fp-1", "unit").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.NoError(t, st.Record(context.Background(), "fp-1", "unit"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListRecords(t *testing.T) {
	st, mock := testPostgres(t)
	a, err := json.Marshal(testRecord("a"))
	require.NoError(t, err)
	b, err := json.Marshal(testRecord("b"))
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM golden_records ORDER BY created_at").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(a).AddRow(b))

	records, err := st.ListRecords(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].TaskID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
