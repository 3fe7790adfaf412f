package store

import (
	"strconv"
	"strings"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// where accumulates AND-ed conditions with dialect-specific placeholders.
type where struct {
	d       dialect
	clauses []string
	args    []any
}

func (w *where) next(v any) string {
	w.args = append(w.args, v)
	if w.d == dialectPostgres {
		return "$" + strconv.Itoa(len(w.args))
	}
	return "?"
}

func (w *where) in(col string, vals []any) {
	if len(vals) == 0 {
		return
	}
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = w.next(v)
	}
	w.clauses = append(w.clauses, col+" IN ("+strings.Join(ph, ",")+")")
}

func (w *where) cmp(col, op string, v any) {
	w.clauses = append(w.clauses, col+" "+op+" "+w.next(v))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func anys[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// filterWhere renders f against the shapelets table aliased as s.
func filterWhere(d dialect, f ExportFilter) *where {
	w := &where{d: d}
	w.in("s.year", anys(f.Years))
	w.in("s.site_key", anys(f.Sites))
	w.in("s.parameter_code", anys(f.Pollutants))
	w.in("s.pattern_type", anys(f.PatternTypes))
	if f.From != "" {
		w.cmp("s.start_date", ">=", f.From)
	}
	if f.To != "" {
		w.cmp("s.end_date", "<=", f.To)
	}
	return w
}

const shapeletColumns = `s.id, s.dataset_key, s.shapelet_id, s.site_key,
	si.state, si.county, si.site_num, si.latitude, si.longitude,
	s.parameter_code, s.year, s.start_date, s.end_date, s.length_days,
	s.pattern_type, s.data_type, s.quality, s.shapelet_values, s.source_file`

const shapeletFrom = ` FROM shapelets s LEFT JOIN sites si ON s.site_key = si.site_key`

const shapeletOrder = ` ORDER BY s.year, si.state, si.county, s.start_date, s.id`

func shapeletQuery(d dialect, f ExportFilter) (string, []any) {
	w := filterWhere(d, f)
	cols := shapeletColumns
	if d == dialectPostgres {
		cols = strings.Replace(cols, "s.shapelet_values", "s.shapelet_values::text", 1)
	}
	return "SELECT " + cols + shapeletFrom + w.String() + shapeletOrder, w.args
}

func countQuery(d dialect, f ExportFilter) (string, []any) {
	w := filterWhere(d, f)
	return "SELECT COUNT(*) FROM shapelets s" + w.String(), w.args
}

func summaryQuery(d dialect, f ExportFilter) (string, []any) {
	w := filterWhere(d, f)
	var aggs string
	switch d {
	case dialectPostgres:
		aggs = `to_char(MIN(s.start_date), 'YYYY-MM-DD'), to_char(MAX(s.end_date), 'YYYY-MM-DD'),
	string_agg(DISTINCT s.parameter_code, ','), string_agg(DISTINCT s.year::text, ',')`
	default:
		aggs = `MIN(s.start_date), MAX(s.end_date),
	GROUP_CONCAT(DISTINCT s.parameter_code), GROUP_CONCAT(DISTINCT s.year)`
	}
	return `SELECT si.site_key, si.state, si.county, si.site_num, si.latitude, si.longitude,
	COUNT(*), AVG(s.quality), MIN(s.quality), MAX(s.quality), ` + aggs +
		shapeletFrom + w.String() +
		` GROUP BY si.site_key, si.state, si.county, si.site_num, si.latitude, si.longitude ORDER BY si.state, si.county, si.site_num`, w.args
}
