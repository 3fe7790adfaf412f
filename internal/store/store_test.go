package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shapelet-cli/internal/model"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSQLite(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRecord(state, county string, siteNum, shapeletID int64, year int, patternType string) model.Record {
	src := state + "_" + county + ".pkl"
	start := time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(shapeletID))
	return model.Record{
		DatasetKey:     model.SiteKey(state, county, siteNum) + "_daily_42401_7d_2010_daily_zscore",
		ShapeletID:     shapeletID,
		State:          state,
		County:         county,
		SiteNum:        siteNum,
		Latitude:       29.7,
		Longitude:      -95.3,
		Year:           year,
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, 6),
		LengthDays:     7,
		PatternType:    patternType,
		DataType:       "zscore",
		Quality:        0.5 + float64(shapeletID)/10,
		ShapeletValues: []float64{0.1, -1.25, 2},
		SourceFile:     &src,
		Present:        model.AllFields,
	}
}

func threeRecords() []model.Record {
	return []model.Record{
		testRecord("Texas", "Harris", 48, 0, 2010, "daily_42401"),
		testRecord("Texas", "Harris", 48, 1, 2010, "daily_42401"),
		testRecord("Ohio", "Franklin", 3, 0, 2011, "daily_44201"),
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Migrate(context.Background()))
		require.NoError(t, s.Migrate(context.Background()))
	})

	t.Run("InsertShapelets", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.InsertShapelets(ctx, threeRecords(), 2)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		count, err := s.CountShapelets(ctx, ExportFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		sites, err := s.Sites(ctx)
		require.NoError(t, err)
		require.Len(t, sites, 2)
		assert.Equal(t, "Ohio_Franklin_3", sites[0].SiteKey)
		assert.Equal(t, "Texas_Harris_48", sites[1].SiteKey)

		pollutants, err := s.Pollutants(ctx)
		require.NoError(t, err)
		require.Len(t, pollutants, 2)
		assert.Equal(t, "42401", pollutants[0].ParameterCode)
		assert.Equal(t, "44201", pollutants[1].DisplayName())
	})

	t.Run("ReinsertCountsAttemptsButSkipsDuplicates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.InsertShapelets(ctx, threeRecords(), DefaultBatchSize)
		require.NoError(t, err)
		n, err := s.InsertShapelets(ctx, threeRecords(), DefaultBatchSize)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		count, err := s.CountShapelets(ctx, ExportFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("SameKeyDifferentSourceIsDistinct", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := testRecord("Texas", "Harris", 48, 0, 2010, "daily_42401")
		b := a
		other := "other.pkl"
		b.SourceFile = &other
		_, err := s.InsertShapelets(ctx, []model.Record{a, b}, 10)
		require.NoError(t, err)

		count, err := s.CountShapelets(ctx, ExportFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("UpsertSiteOverwritesCoordinates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := testRecord("Texas", "Harris", 48, 0, 2010, "daily_42401")
		key, err := s.UpsertSite(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, "Texas_Harris_48", key)

		r.Latitude, r.Longitude = 30.1, -94.9
		_, err = s.UpsertSite(ctx, r)
		require.NoError(t, err)

		sites, err := s.Sites(ctx)
		require.NoError(t, err)
		require.Len(t, sites, 1)
		assert.InDelta(t, 30.1, *sites[0].Latitude, 1e-9)
		assert.InDelta(t, -94.9, *sites[0].Longitude, 1e-9)
	})

	t.Run("UpsertPollutant", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.UpsertPollutant(ctx, "42401"))
		require.NoError(t, s.UpsertPollutant(ctx, "42401"))
		require.NoError(t, s.UpsertPollutant(ctx, ""))

		pollutants, err := s.Pollutants(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.Pollutant{{ParameterCode: "42401"}}, pollutants)
	})

	t.Run("PatternWithoutCodeHasNullPollutant", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.InsertShapelets(ctx, []model.Record{testRecord("Texas", "Harris", 48, 0, 2010, "daily_zscore")}, 10)
		require.NoError(t, err)

		var rows []*model.ShapeletRow
		require.NoError(t, s.ForEachShapelet(ctx, ExportFilter{}, func(r *model.ShapeletRow) error {
			rows = append(rows, r)
			return nil
		}))
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].ParameterCode)

		pollutants, err := s.Pollutants(ctx)
		require.NoError(t, err)
		assert.Empty(t, pollutants)
	})

	t.Run("ForEachShapeletOrderAndJoin", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.InsertShapelets(ctx, threeRecords(), DefaultBatchSize)
		require.NoError(t, err)

		var keys []string
		err = s.ForEachShapelet(ctx, ExportFilter{}, func(r *model.ShapeletRow) error {
			keys = append(keys, r.SiteKey)
			require.NotNil(t, r.State)
			assert.Equal(t, 7, r.LengthDays)
			assert.Equal(t, []float64{0.1, -1.25, 2}, r.ShapeletValues)
			assert.Equal(t, r.StartDate.AddDate(0, 0, 6), r.EndDate)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Texas_Harris_48", "Texas_Harris_48", "Ohio_Franklin_3"}, keys)
	})

	t.Run("ForEachShapeletStopsOnCallbackError", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.InsertShapelets(ctx, threeRecords(), DefaultBatchSize)
		require.NoError(t, err)

		stop := errors.New("stop")
		calls := 0
		err = s.ForEachShapelet(ctx, ExportFilter{}, func(*model.ShapeletRow) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("Filters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.InsertShapelets(ctx, threeRecords(), DefaultBatchSize)
		require.NoError(t, err)

		tests := []struct {
			name   string
			filter ExportFilter
			want   int64
		}{
			{"years", ExportFilter{Years: []int{2011}}, 1},
			{"sites", ExportFilter{Sites: []string{"Texas_Harris_48"}}, 2},
			{"pollutants", ExportFilter{Pollutants: []string{"42401", "44201"}}, 3},
			{"pattern types", ExportFilter{PatternTypes: []string{"daily_44201"}}, 1},
			{"from", ExportFilter{From: "2010-06-02"}, 2},
			{"to", ExportFilter{To: "2010-06-07"}, 1},
			{"combined", ExportFilter{Years: []int{2010}, Sites: []string{"Ohio_Franklin_3"}}, 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				n, err := s.CountShapelets(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, tt.want, n)
			})
		}
	})

	t.Run("Inventory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		dr, err := s.DateRange(ctx)
		require.NoError(t, err)
		assert.Nil(t, dr.Min)
		assert.Nil(t, dr.Max)

		_, err = s.InsertShapelets(ctx, threeRecords(), DefaultBatchSize)
		require.NoError(t, err)

		years, err := s.Years(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{2010, 2011}, years)

		pts, err := s.PatternTypes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"daily_42401", "daily_44201"}, pts)

		dr, err = s.DateRange(ctx)
		require.NoError(t, err)
		require.NotNil(t, dr.Min)
		require.NotNil(t, dr.Max)
		assert.Equal(t, "2010-06-01", dr.Min.Format(model.DateLayout))
		assert.Equal(t, "2011-06-07", dr.Max.Format(model.DateLayout))
	})

	t.Run("SiteSummaries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		recs := append(threeRecords(), testRecord("Texas", "Harris", 48, 2, 2011, "daily_44201"))
		_, err := s.InsertShapelets(ctx, recs, DefaultBatchSize)
		require.NoError(t, err)

		sums, err := s.SiteSummaries(ctx, ExportFilter{})
		require.NoError(t, err)
		require.Len(t, sums, 2)

		ohio, texas := sums[0], sums[1]
		assert.Equal(t, "Ohio_Franklin_3", ohio.SiteKey)
		assert.Equal(t, int64(1), ohio.ShapeletCount)

		assert.Equal(t, "Texas", texas.State)
		assert.Equal(t, int64(48), texas.SiteNum)
		assert.Equal(t, int64(3), texas.ShapeletCount)
		assert.InDelta(t, 0.6, *texas.AvgQuality, 1e-9)
		assert.InDelta(t, 0.5, *texas.MinQuality, 1e-9)
		assert.InDelta(t, 0.7, *texas.MaxQuality, 1e-9)
		assert.Equal(t, "2010-06-01", texas.EarliestDate)
		assert.Equal(t, "2011-06-09", texas.LatestDate)
		assert.Equal(t, "42401,44201", texas.Pollutants)
		assert.Equal(t, "2010,2011", texas.Years)
		assert.True(t, texas.HasLocation())

		sums, err = s.SiteSummaries(ctx, ExportFilter{Years: []int{2010}})
		require.NoError(t, err)
		require.Len(t, sums, 1)
		assert.Equal(t, int64(2), sums[0].ShapeletCount)
	})

	t.Run("ShapeletValues", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := testRecord("Texas", "Harris", 48, 0, 2010, "daily_42401")
		r.ShapeletValues = []float64{1, math.NaN(), 1e-7, -3.5}
		_, err := s.InsertShapelets(ctx, []model.Record{r}, 1)
		require.NoError(t, err)

		var id int64
		require.NoError(t, s.ForEachShapelet(ctx, ExportFilter{}, func(row *model.ShapeletRow) error {
			id = row.ID
			return nil
		}))

		vals, err := s.ShapeletValues(ctx, id)
		require.NoError(t, err)
		require.Len(t, vals, 4)
		assert.Equal(t, 1.0, vals[0])
		assert.True(t, math.IsNaN(vals[1]))
		assert.Equal(t, 1e-7, vals[2])
		assert.Equal(t, -3.5, vals[3])

		_, err = s.ShapeletValues(ctx, id+100)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RunLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.StartRun(ctx)
		require.NoError(t, err)
		assert.Positive(t, id)

		run, err := s.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusRunning, run.Status)
		assert.Nil(t, run.FinishedAt)

		err = s.FinishRun(ctx, id, model.RunSummary{
			Status:     model.RunStatusCompletedWithErrors,
			TotalFiles: 4,
			TotalRows:  120,
			ErrorCount: 2,
		})
		require.NoError(t, err)

		run, err = s.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompletedWithErrors, run.Status)
		assert.Equal(t, 4, run.TotalFiles)
		assert.Equal(t, 120, run.TotalRows)
		assert.Equal(t, 2, run.ErrorCount)
		require.NotNil(t, run.FinishedAt)
	})

	t.Run("RunNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetRun(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.FinishRun(ctx, 999, model.RunSummary{Status: model.RunStatusFailed})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []int64
		for range 3 {
			id, err := s.StartRun(ctx)
			require.NoError(t, err)
			ids = append(ids, id)
		}
		require.NoError(t, s.FinishRun(ctx, ids[0], model.RunSummary{Status: model.RunStatusCompleted}))
		require.NoError(t, s.FinishRun(ctx, ids[2], model.RunSummary{Status: model.RunStatusFailed}))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, ids[2], all[0].ID)

		failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, ids[2], failed[0].ID)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, func(t *testing.T) Store { return newTestSQLite(t) })
}

func TestSQLiteStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestSQLite(t)
	var on int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)

	_, err := s.db.Exec(`INSERT INTO shapelets (dataset_key, shapelet_id, site_key, year, start_date, end_date, length_days, shapelet_values)
		VALUES ('k', 0, 'missing', 2010, '2010-01-01', '2010-01-07', 7, '[]')`)
	assert.Error(t, err)
}

func TestSQLiteStore_RunTimestampsUseClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	s := newTestSQLite(t, WithClock(clock))
	ctx := context.Background()

	id, err := s.StartRun(ctx)
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	require.NoError(t, s.FinishRun(ctx, id, model.RunSummary{Status: model.RunStatusCompleted}))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.True(t, testEpoch.Equal(run.StartedAt))
	assert.Equal(t, 90*time.Second, run.Duration())

	since, err := s.ListRuns(ctx, RunFilter{Since: testEpoch.Add(time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, since)
}

func TestSQLiteStore_Location(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "shapelets.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, dbPath, s.Location())
}
