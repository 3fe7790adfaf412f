package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/shapelet-cli/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts options
}

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "sqlite: ping %s", path)
	}
	return &SQLiteStore{db: db, path: path, opts: buildOptions(opts)}, nil
}

func sqliteDSN(path string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	for i, p := range sqlitePragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pollutants (
	parameter_code TEXT PRIMARY KEY,
	name           TEXT,
	unit           TEXT
);

CREATE TABLE IF NOT EXISTS sites (
	site_key  TEXT PRIMARY KEY,
	state     TEXT NOT NULL,
	county    TEXT NOT NULL,
	site_num  INTEGER NOT NULL,
	latitude  REAL,
	longitude REAL
);

CREATE TABLE IF NOT EXISTS shapelets (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset_key     TEXT    NOT NULL,
	shapelet_id     INTEGER NOT NULL,
	site_key        TEXT    NOT NULL REFERENCES sites(site_key),
	parameter_code  TEXT    REFERENCES pollutants(parameter_code),
	year            INTEGER NOT NULL,
	start_date      TEXT    NOT NULL,
	end_date        TEXT    NOT NULL,
	length_days     INTEGER NOT NULL,
	pattern_type    TEXT,
	data_type       TEXT,
	quality         REAL,
	shapelet_values TEXT    NOT NULL,
	source_file     TEXT,
	UNIQUE(dataset_key, shapelet_id, source_file)
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT    NOT NULL,
	finished_at TEXT,
	status      TEXT    DEFAULT 'running',
	total_files INTEGER DEFAULT 0,
	total_rows  INTEGER DEFAULT 0,
	error_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_shapelets_site ON shapelets(site_key);
CREATE INDEX IF NOT EXISTS idx_shapelets_year ON shapelets(year);
CREATE INDEX IF NOT EXISTS idx_shapelets_dates ON shapelets(start_date, end_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Location returns the database file path.
func (s *SQLiteStore) Location() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const sqliteUpsertSite = `INSERT INTO sites (site_key, state, county, site_num, latitude, longitude)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(site_key) DO UPDATE SET
	latitude  = excluded.latitude,
	longitude = excluded.longitude`

func upsertSite(ctx context.Context, ex execer, r *model.Record) (string, error) {
	key := r.SiteKey()
	_, err := ex.ExecContext(ctx, sqliteUpsertSite, key, r.State, r.County, r.SiteNum, r.Latitude, r.Longitude)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: upsert site %s", key)
	}
	return key, nil
}

func upsertPollutant(ctx context.Context, ex execer, code string) error {
	if code == "" {
		return nil
	}
	_, err := ex.ExecContext(ctx, `INSERT OR IGNORE INTO pollutants (parameter_code) VALUES (?)`, code)
	return eris.Wrapf(err, "sqlite: upsert pollutant %s", code)
}

func (s *SQLiteStore) UpsertSite(ctx context.Context, r model.Record) (string, error) {
	return upsertSite(ctx, s.db, &r)
}

func (s *SQLiteStore) UpsertPollutant(ctx context.Context, code string) error {
	return upsertPollutant(ctx, s.db, code)
}

const sqliteInsertShapelet = `INSERT OR IGNORE INTO shapelets (
	dataset_key, shapelet_id, site_key, parameter_code,
	year, start_date, end_date, length_days,
	pattern_type, data_type, quality, shapelet_values,
	source_file
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertShapelets writes records in batches of batchSize, one transaction per
// batch. Duplicate natural keys are skipped. The returned count is the number
// of rows attempted, which overstates new rows when re-ingesting.
func (s *SQLiteStore) InsertShapelets(ctx context.Context, records []model.Record, batchSize int) (int, error) {
	p := newPlanner()
	attempted := 0
	for _, chunk := range chunks(records, batchSize) {
		if err := s.writeBatch(ctx, p.plan(chunk)); err != nil {
			return attempted, err
		}
		attempted += len(chunk)
	}
	return attempted, nil
}

func (s *SQLiteStore) writeBatch(ctx context.Context, bp batchPlan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range bp.Sites {
		if _, err := upsertSite(ctx, tx, &bp.Sites[i]); err != nil {
			return err
		}
	}
	for _, code := range bp.Pollutants {
		if err := upsertPollutant(ctx, tx, code); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, sqliteInsertShapelet)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare shapelet insert")
	}
	defer stmt.Close()

	for _, row := range bp.Rows {
		_, err := stmt.ExecContext(ctx,
			row.DatasetKey, row.ShapeletID, row.SiteKey, row.ParameterCode,
			row.Year, row.StartDate.Format(model.DateLayout), row.EndDate.Format(model.DateLayout), row.LengthDays,
			row.PatternType, row.DataType, row.Quality, encodeValues(row.Values, false),
			row.SourceFile,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert shapelet %s/%d", row.DatasetKey, row.ShapeletID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit batch")
}

// StartRun records a new run in the running state.
func (s *SQLiteStore) StartRun(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs (started_at, status) VALUES (?, ?)`,
		formatTimestamp(s.opts.clock.Now()), string(model.RunStatusRunning),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: start run")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: start run id")
}

// FinishRun sets the finish time and final counters of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID int64, sum model.RunSummary) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_runs
		 SET finished_at = ?, status = ?, total_files = ?, total_rows = ?, error_count = ?
		 WHERE id = ?`,
		formatTimestamp(s.opts.clock.Now()), string(sum.Status),
		sum.TotalFiles, sum.TotalRows, sum.ErrorCount, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %d", runID)
	}
	return checkRowsAffected(res, "run", strconv.FormatInt(runID, 10))
}

const sqliteRunColumns = `id, started_at, finished_at, COALESCE(status, 'running'),
	COALESCE(total_files, 0), COALESCE(total_rows, 0), COALESCE(error_count, 0)`

func (s *SQLiteStore) GetRun(ctx context.Context, runID int64) (*model.IngestionRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM ingestion_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %d", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %d", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error) {
	w := &where{d: dialectSQLite}
	if filter.Status != "" {
		w.cmp("status", "=", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		w.cmp("started_at", ">=", formatTimestamp(filter.Since))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + sqliteRunColumns + ` FROM ingestion_runs` + w.String() +
		` ORDER BY id DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.IngestionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) Years(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT year FROM shapelets ORDER BY year`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: years")
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan year")
		}
		out = append(out, y)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: years iterate")
}

func (s *SQLiteStore) Pollutants(ctx context.Context) ([]model.Pollutant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parameter_code, COALESCE(name, ''), COALESCE(unit, '') FROM pollutants ORDER BY parameter_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pollutants")
	}
	defer rows.Close()
	var out []model.Pollutant
	for rows.Next() {
		var p model.Pollutant
		if err := rows.Scan(&p.ParameterCode, &p.Name, &p.Unit); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pollutant")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: pollutants iterate")
}

func (s *SQLiteStore) Sites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_key, state, county, site_num, latitude, longitude FROM sites ORDER BY state, county, site_num`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sites")
	}
	defer rows.Close()
	var out []model.Site
	for rows.Next() {
		var st model.Site
		if err := rows.Scan(&st.SiteKey, &st.State, &st.County, &st.SiteNum, &st.Latitude, &st.Longitude); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan site")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: sites iterate")
}

func (s *SQLiteStore) PatternTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT pattern_type FROM shapelets WHERE pattern_type IS NOT NULL ORDER BY pattern_type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pattern types")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var pt string
		if err := rows.Scan(&pt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pattern type")
		}
		out = append(out, pt)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: pattern types iterate")
}

func (s *SQLiteStore) CountShapelets(ctx context.Context, filter ExportFilter) (int64, error) {
	query, args := countQuery(dialectSQLite, filter)
	var n int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count shapelets")
}

func (s *SQLiteStore) DateRange(ctx context.Context) (DateRange, error) {
	var lo, hi *string
	err := s.db.QueryRowContext(ctx, `SELECT MIN(start_date), MAX(end_date) FROM shapelets`).Scan(&lo, &hi)
	if err != nil {
		return DateRange{}, eris.Wrap(err, "sqlite: date range")
	}
	var dr DateRange
	if dr.Min, err = parseOptionalDate(lo); err != nil {
		return DateRange{}, err
	}
	if dr.Max, err = parseOptionalDate(hi); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// ForEachShapelet streams matching rows ordered by year, state, county and
// start date. fn must not call back into the store.
func (s *SQLiteStore) ForEachShapelet(ctx context.Context, filter ExportFilter, fn func(*model.ShapeletRow) error) error {
	query, args := shapeletQuery(dialectSQLite, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: query shapelets")
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanSQLiteShapelet(rows)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: shapelets iterate")
}

func (s *SQLiteStore) SiteSummaries(ctx context.Context, filter ExportFilter) ([]model.SiteSummary, error) {
	query, args := summaryQuery(dialectSQLite, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: site summaries")
	}
	defer rows.Close()

	var out []model.SiteSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan site summary")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: site summaries iterate")
}

func (s *SQLiteStore) ShapeletValues(ctx context.Context, id int64) ([]float64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT shapelet_values FROM shapelets WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: shapelet %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: shapelet values %d", id)
	}
	return decodeValues(raw)
}

// scannable is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.IngestionRun, error) {
	var r model.IngestionRun
	var started string
	var finished *string
	var status string
	if err := row.Scan(&r.ID, &started, &finished, &status, &r.TotalFiles, &r.TotalRows, &r.ErrorCount); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	t, err := parseTimestamp(started)
	if err != nil {
		return nil, err
	}
	r.StartedAt = t
	if finished != nil {
		ft, err := parseTimestamp(*finished)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &ft
	}
	return &r, nil
}

func scanSQLiteShapelet(row scannable) (*model.ShapeletRow, error) {
	var r model.ShapeletRow
	var start, end, values string
	err := row.Scan(
		&r.ID, &r.DatasetKey, &r.ShapeletID, &r.SiteKey,
		&r.State, &r.County, &r.SiteNum, &r.Latitude, &r.Longitude,
		&r.ParameterCode, &r.Year, &start, &end, &r.LengthDays,
		&r.PatternType, &r.DataType, &r.Quality, &values, &r.SourceFile,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan shapelet")
	}
	if r.StartDate, err = time.Parse(model.DateLayout, start); err != nil {
		return nil, eris.Wrapf(err, "sqlite: shapelet %d start_date", r.ID)
	}
	if r.EndDate, err = time.Parse(model.DateLayout, end); err != nil {
		return nil, eris.Wrapf(err, "sqlite: shapelet %d end_date", r.ID)
	}
	if r.ShapeletValues, err = decodeValues(values); err != nil {
		return nil, eris.Wrapf(err, "sqlite: shapelet %d", r.ID)
	}
	return &r, nil
}

func scanSummary(row scannable) (model.SiteSummary, error) {
	var s model.SiteSummary
	var earliest, latest, pollutants, years *string
	err := row.Scan(
		&s.SiteKey, &s.State, &s.County, &s.SiteNum, &s.Latitude, &s.Longitude,
		&s.ShapeletCount, &s.AvgQuality, &s.MinQuality, &s.MaxQuality,
		&earliest, &latest, &pollutants, &years,
	)
	if err != nil {
		return s, err
	}
	s.EarliestDate = deref(earliest)
	s.LatestDate = deref(latest)
	s.Pollutants = sortedList(deref(pollutants))
	s.Years = sortedList(deref(years))
	return s, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// timestampLayout has fixed-width fractions so stored values sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, eris.Wrapf(err, "store: parse timestamp %q", s)
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DateLayout, *s)
	if err != nil {
		return nil, eris.Wrapf(err, "store: parse date %q", *s)
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// sortedList normalizes a comma-separated aggregate into sorted, distinct order.
func sortedList(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, ",")
	slices.Sort(parts)
	return strings.Join(slices.Compact(parts), ",")
}
