package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shapelet-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T, opts ...Option) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresStore(mock, nil, "postgres://test", opts...), mock
}

func expectBulkUpsert(mock pgxmock.PgxPoolIface, table string, cols []string, n int64) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_" + table}, cols).WillReturnResult(n)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO \"" + table + "\"").WillReturnResult(pgxmock.NewResult("INSERT", n))
	mock.ExpectCommit()
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS pollutants`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertShapelets(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	recs := threeRecords()

	// batch 1: one site, one pollutant, two shapelets
	expectBulkUpsert(mock, "sites", siteUpsert.Columns, 1)
	expectBulkUpsert(mock, "pollutants", pollutantUpsert.Columns, 1)
	expectBulkUpsert(mock, "shapelets", shapeletUpsert.Columns, 2)
	// batch 2: new site and pollutant
	expectBulkUpsert(mock, "sites", siteUpsert.Columns, 1)
	expectBulkUpsert(mock, "pollutants", pollutantUpsert.Columns, 1)
	expectBulkUpsert(mock, "shapelets", shapeletUpsert.Columns, 1)

	n, err := s.InsertShapelets(context.Background(), recs, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertShapelets_SkipsSeenDimensions(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	recs := []model.Record{
		testRecord("Texas", "Harris", 48, 0, 2010, "daily_42401"),
		testRecord("Texas", "Harris", 48, 1, 2010, "daily_42401"),
	}

	expectBulkUpsert(mock, "sites", siteUpsert.Columns, 1)
	expectBulkUpsert(mock, "pollutants", pollutantUpsert.Columns, 1)
	expectBulkUpsert(mock, "shapelets", shapeletUpsert.Columns, 1)
	expectBulkUpsert(mock, "shapelets", shapeletUpsert.Columns, 1)

	n, err := s.InsertShapelets(context.Background(), recs, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertShapelets_StoreError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	n, err := s.InsertShapelets(context.Background(), threeRecords(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert sites")
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertSite(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := testRecord("Texas", "Harris", 48, 0, 2010, "daily_42401")

	mock.ExpectExec(`INSERT INTO sites .* ON CONFLICT \(site_key\) DO UPDATE`).
		WithArgs("Texas_Harris_48", "Texas", "Harris", int64(48), 29.7, -95.3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	key, err := s.UpsertSite(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "Texas_Harris_48", key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPollutant(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO pollutants .* DO NOTHING`).
		WithArgs("42401").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertPollutant(context.Background(), "42401"))
	require.NoError(t, s.UpsertPollutant(context.Background(), ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StartAndFinishRun(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	s, mock := newMockPostgresStore(t, WithClock(clock))
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO ingestion_runs \(started_at, status\) VALUES \(\$1, \$2\) RETURNING id`).
		WithArgs(testEpoch, "running").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.StartRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	clock.Advance(time.Minute)
	mock.ExpectExec(`UPDATE ingestion_runs`).
		WithArgs(testEpoch.Add(time.Minute), "completed_with_errors", 3, 40, 1, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = s.FinishRun(ctx, id, model.RunSummary{
		Status:     model.RunStatusCompletedWithErrors,
		TotalFiles: 3,
		TotalRows:  40,
		ErrorCount: 1,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE ingestion_runs`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), 42, model.RunSummary{Status: model.RunStatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM ingestion_runs WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	finished := testEpoch.Add(time.Minute)

	mock.ExpectQuery(`FROM ingestion_runs WHERE status = \$1 ORDER BY id DESC LIMIT 5`).
		WithArgs("completed").
		WillReturnRows(pgxmock.NewRows([]string{"id", "started_at", "finished_at", "status", "total_files", "total_rows", "error_count"}).
			AddRow(int64(2), testEpoch, &finished, "completed", 4, 100, 0))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusCompleted, Limit: 5})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(2), runs[0].ID)
	assert.Equal(t, time.Minute, runs[0].Duration())
	assert.Equal(t, 100, runs[0].TotalRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Years(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT year FROM shapelets`).
		WillReturnRows(pgxmock.NewRows([]string{"year"}).AddRow(2010).AddRow(2011))

	years, err := s.Years(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2010, 2011}, years)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountShapelets(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM shapelets s WHERE s.year IN \(\$1\)`).
		WithArgs(2010).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := s.CountShapelets(context.Background(), ExportFilter{Years: []int{2010}})
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ForEachShapelet(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	state, county, code, pt, dt := "Texas", "Harris", "42401", "daily_42401", "zscore"
	siteNum := int64(48)
	lat, lon, q := 29.7, -95.3, 0.8
	start := time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{
		"id", "dataset_key", "shapelet_id", "site_key", "state", "county", "site_num", "latitude", "longitude",
		"parameter_code", "year", "start_date", "end_date", "length_days", "pattern_type", "data_type",
		"quality", "shapelet_values", "source_file",
	}
	mock.ExpectQuery(`SELECT s.id`).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			int64(1), "key", int64(0), "Texas_Harris_48", &state, &county, &siteNum, &lat, &lon,
			&code, 2010, start, start.AddDate(0, 0, 6), 7, &pt, &dt, &q, "[1.5, null]", (*string)(nil),
		))

	var got []*model.ShapeletRow
	err := s.ForEachShapelet(context.Background(), ExportFilter{}, func(r *model.ShapeletRow) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Texas_Harris_48", got[0].SiteKey)
	assert.Equal(t, 1.5, got[0].ShapeletValues[0])
	assert.Nil(t, got[0].SourceFile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ShapeletValues_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT shapelet_values::text FROM shapelets WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.ShapeletValues(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := newPostgresStore(nil, func() { closed = true }, "")
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
