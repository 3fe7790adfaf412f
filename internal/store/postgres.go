package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shapelet-cli/internal/db"
	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/resilience"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool     db.Pool
	closeFn  func()
	location string
	opts     options
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	// A server that is still starting refuses connections for a few seconds.
	if err := resilience.DefaultPolicy("postgres.connect").Do(ctx, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	loc := fmt.Sprintf("postgres://%s:%d/%s", pgxCfg.ConnConfig.Host, pgxCfg.ConnConfig.Port, pgxCfg.ConnConfig.Database)
	return newPostgresStore(pool, pool.Close, loc, opts...), nil
}

func newPostgresStore(pool db.Pool, closeFn func(), location string, opts ...Option) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn, location: location, opts: buildOptions(opts)}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Natural-key uniqueness treats a NULL source_file as a value (PostgreSQL 15+).
const postgresMigration = `
CREATE TABLE IF NOT EXISTS pollutants (
	parameter_code TEXT PRIMARY KEY,
	name           TEXT,
	unit           TEXT
);

CREATE TABLE IF NOT EXISTS sites (
	site_key  TEXT PRIMARY KEY,
	state     TEXT NOT NULL,
	county    TEXT NOT NULL,
	site_num  BIGINT NOT NULL,
	latitude  DOUBLE PRECISION,
	longitude DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS shapelets (
	id              BIGSERIAL PRIMARY KEY,
	dataset_key     TEXT    NOT NULL,
	shapelet_id     BIGINT  NOT NULL,
	site_key        TEXT    NOT NULL REFERENCES sites(site_key),
	parameter_code  TEXT    REFERENCES pollutants(parameter_code),
	year            INTEGER NOT NULL,
	start_date      DATE    NOT NULL,
	end_date        DATE    NOT NULL,
	length_days     INTEGER NOT NULL,
	pattern_type    TEXT,
	data_type       TEXT,
	quality         DOUBLE PRECISION,
	shapelet_values JSONB   NOT NULL,
	source_file     TEXT,
	CONSTRAINT shapelets_natural_key UNIQUE NULLS NOT DISTINCT (dataset_key, shapelet_id, source_file)
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id          BIGSERIAL PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status      TEXT    DEFAULT 'running',
	total_files INTEGER DEFAULT 0,
	total_rows  INTEGER DEFAULT 0,
	error_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_shapelets_site ON shapelets(site_key);
CREATE INDEX IF NOT EXISTS idx_shapelets_year ON shapelets(year);
CREATE INDEX IF NOT EXISTS idx_shapelets_dates ON shapelets(start_date, end_date);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Location returns the connection target without credentials.
func (s *PostgresStore) Location() string {
	return s.location
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var (
	siteUpsert = db.UpsertConfig{
		Table:        "sites",
		Columns:      []string{"site_key", "state", "county", "site_num", "latitude", "longitude"},
		ConflictKeys: []string{"site_key"},
		UpdateCols:   []string{"latitude", "longitude"},
	}
	pollutantUpsert = db.UpsertConfig{
		Table:        "pollutants",
		Columns:      []string{"parameter_code"},
		ConflictKeys: []string{"parameter_code"},
		DoNothing:    true,
	}
	shapeletUpsert = db.UpsertConfig{
		Table: "shapelets",
		Columns: []string{
			"dataset_key", "shapelet_id", "site_key", "parameter_code",
			"year", "start_date", "end_date", "length_days",
			"pattern_type", "data_type", "quality", "shapelet_values",
			"source_file",
		},
		ConflictKeys: []string{"dataset_key", "shapelet_id", "source_file"},
		DoNothing:    true,
	}
)

func siteValues(r *model.Record) []any {
	return []any{r.SiteKey(), r.State, r.County, r.SiteNum, r.Latitude, r.Longitude}
}

func (s *PostgresStore) UpsertSite(ctx context.Context, r model.Record) (string, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sites (site_key, state, county, site_num, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (site_key) DO UPDATE SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude`,
		siteValues(&r)...,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert site %s", r.SiteKey())
	}
	return r.SiteKey(), nil
}

func (s *PostgresStore) UpsertPollutant(ctx context.Context, code string) error {
	if code == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pollutants (parameter_code) VALUES ($1) ON CONFLICT (parameter_code) DO NOTHING`, code)
	return eris.Wrapf(err, "postgres: upsert pollutant %s", code)
}

// InsertShapelets bulk-loads records batch by batch: sites, then pollutants,
// then shapelets, each through a COPY-backed upsert. The returned count is the
// number of rows attempted.
func (s *PostgresStore) InsertShapelets(ctx context.Context, records []model.Record, batchSize int) (int, error) {
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

func (s *PostgresStore) writeBatch(ctx context.Context, bp batchPlan) error {
	if len(bp.Sites) > 0 {
		rows := make([][]any, len(bp.Sites))
		for i := range bp.Sites {
			rows[i] = siteValues(&bp.Sites[i])
		}
		if _, err := db.BulkUpsert(ctx, s.pool, siteUpsert, rows); err != nil {
			return eris.Wrap(err, "postgres: upsert sites")
		}
	}
	if len(bp.Pollutants) > 0 {
		rows := make([][]any, len(bp.Pollutants))
		for i, code := range bp.Pollutants {
			rows[i] = []any{code}
		}
		if _, err := db.BulkUpsert(ctx, s.pool, pollutantUpsert, rows); err != nil {
			return eris.Wrap(err, "postgres: upsert pollutants")
		}
	}
	rows := make([][]any, len(bp.Rows))
	for i, r := range bp.Rows {
		rows[i] = []any{
			r.DatasetKey, r.ShapeletID, r.SiteKey, r.ParameterCode,
			r.Year, r.StartDate, r.EndDate, r.LengthDays,
			r.PatternType, r.DataType, r.Quality, encodeValues(r.Values, true),
			r.SourceFile,
		}
	}
	_, err := db.BulkUpsert(ctx, s.pool, shapeletUpsert, rows)
	return eris.Wrap(err, "postgres: insert shapelets")
}

func (s *PostgresStore) StartRun(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ingestion_runs (started_at, status) VALUES ($1, $2) RETURNING id`,
		s.opts.clock.Now().UTC(), string(model.RunStatusRunning),
	).Scan(&id)
	return id, eris.Wrap(err, "postgres: start run")
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID int64, sum model.RunSummary) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_runs
		 SET finished_at = $1, status = $2, total_files = $3, total_rows = $4, error_count = $5
		 WHERE id = $6`,
		s.opts.clock.Now().UTC(), string(sum.Status), sum.TotalFiles, sum.TotalRows, sum.ErrorCount, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %d", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %d", runID)
	}
	return nil
}

const postgresRunColumns = `id, started_at, finished_at, COALESCE(status, 'running'),
	COALESCE(total_files, 0), COALESCE(total_rows, 0), COALESCE(error_count, 0)`

func scanPostgresRun(row scannable) (*model.IngestionRun, error) {
	var r model.IngestionRun
	var status string
	if err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &status, &r.TotalFiles, &r.TotalRows, &r.ErrorCount); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID int64) (*model.IngestionRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM ingestion_runs WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %d", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %d", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error) {
	w := &where{d: dialectPostgres}
	if filter.Status != "" {
		w.cmp("status", "=", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		w.cmp("started_at", ">=", filter.Since)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + postgresRunColumns + ` FROM ingestion_runs` + w.String() +
		` ORDER BY id DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.IngestionRun
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) Years(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT year FROM shapelets ORDER BY year`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: years")
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[int])
	return out, eris.Wrap(err, "postgres: collect years")
}

func (s *PostgresStore) Pollutants(ctx context.Context) ([]model.Pollutant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT parameter_code, COALESCE(name, ''), COALESCE(unit, '') FROM pollutants ORDER BY parameter_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pollutants")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Pollutant, error) {
		var p model.Pollutant
		err := row.Scan(&p.ParameterCode, &p.Name, &p.Unit)
		return p, err
	})
	return out, eris.Wrap(err, "postgres: collect pollutants")
}

func (s *PostgresStore) Sites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT site_key, state, county, site_num, latitude, longitude FROM sites ORDER BY state, county, site_num`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: sites")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Site, error) {
		var st model.Site
		err := row.Scan(&st.SiteKey, &st.State, &st.County, &st.SiteNum, &st.Latitude, &st.Longitude)
		return st, err
	})
	return out, eris.Wrap(err, "postgres: collect sites")
}

func (s *PostgresStore) PatternTypes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT pattern_type FROM shapelets WHERE pattern_type IS NOT NULL ORDER BY pattern_type`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pattern types")
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return out, eris.Wrap(err, "postgres: collect pattern types")
}

func (s *PostgresStore) CountShapelets(ctx context.Context, filter ExportFilter) (int64, error) {
	query, args := countQuery(dialectPostgres, filter)
	var n int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count shapelets")
}

func (s *PostgresStore) DateRange(ctx context.Context) (DateRange, error) {
	var dr DateRange
	err := s.pool.QueryRow(ctx, `SELECT MIN(start_date), MAX(end_date) FROM shapelets`).Scan(&dr.Min, &dr.Max)
	return dr, eris.Wrap(err, "postgres: date range")
}

// ForEachShapelet streams matching rows ordered by year, state, county and
// start date.
func (s *PostgresStore) ForEachShapelet(ctx context.Context, filter ExportFilter, fn func(*model.ShapeletRow) error) error {
	query, args := shapeletQuery(dialectPostgres, filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "postgres: query shapelets")
	}
	defer rows.Close()

	for rows.Next() {
		var r model.ShapeletRow
		var values string
		err := rows.Scan(
			&r.ID, &r.DatasetKey, &r.ShapeletID, &r.SiteKey,
			&r.State, &r.County, &r.SiteNum, &r.Latitude, &r.Longitude,
			&r.ParameterCode, &r.Year, &r.StartDate, &r.EndDate, &r.LengthDays,
			&r.PatternType, &r.DataType, &r.Quality, &values, &r.SourceFile,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: scan shapelet")
		}
		if r.ShapeletValues, err = decodeValues(values); err != nil {
			return eris.Wrapf(err, "postgres: shapelet %d", r.ID)
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "postgres: shapelets iterate")
}

func (s *PostgresStore) SiteSummaries(ctx context.Context, filter ExportFilter) ([]model.SiteSummary, error) {
	query, args := summaryQuery(dialectPostgres, filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: site summaries")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.SiteSummary, error) {
		return scanSummary(row)
	})
	return out, eris.Wrap(err, "postgres: collect site summaries")
}

func (s *PostgresStore) ShapeletValues(ctx context.Context, id int64) ([]float64, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT shapelet_values::text FROM shapelets WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: shapelet %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: shapelet values %d", id)
	}
	return decodeValues(raw)
}
