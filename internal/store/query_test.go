package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterWhere_Placeholders(t *testing.T) {
	f := ExportFilter{Years: []int{2010, 2011}, Sites: []string{"a"}, From: "2010-01-01"}

	w := filterWhere(dialectSQLite, f)
	assert.Equal(t, " WHERE s.year IN (?,?) AND s.site_key IN (?) AND s.start_date >= ?", w.String())
	assert.Equal(t, []any{2010, 2011, "a", "2010-01-01"}, w.args)

	w = filterWhere(dialectPostgres, f)
	assert.Equal(t, " WHERE s.year IN ($1,$2) AND s.site_key IN ($3) AND s.start_date >= $4", w.String())
}

func TestFilterWhere_Empty(t *testing.T) {
	w := filterWhere(dialectPostgres, ExportFilter{})
	assert.Empty(t, w.String())
	assert.Empty(t, w.args)
}

func TestShapeletQuery(t *testing.T) {
	q, args := shapeletQuery(dialectPostgres, ExportFilter{PatternTypes: []string{"daily_42401"}})
	assert.Contains(t, q, "s.shapelet_values::text")
	assert.Contains(t, q, "WHERE s.pattern_type IN ($1)")
	assert.Contains(t, q, "ORDER BY s.year, si.state, si.county, s.start_date")
	assert.Equal(t, []any{"daily_42401"}, args)

	q, _ = shapeletQuery(dialectSQLite, ExportFilter{})
	assert.NotContains(t, q, "::text")
}

func TestSummaryQuery_Dialects(t *testing.T) {
	q, _ := summaryQuery(dialectSQLite, ExportFilter{})
	assert.Contains(t, q, "GROUP_CONCAT(DISTINCT s.parameter_code)")
	q, _ = summaryQuery(dialectPostgres, ExportFilter{})
	assert.Contains(t, q, "string_agg(DISTINCT s.parameter_code, ',')")
	assert.Contains(t, q, "to_char(MIN(s.start_date), 'YYYY-MM-DD')")
}

func TestSortedList(t *testing.T) {
	assert.Equal(t, "", sortedList(""))
	assert.Equal(t, "2010,2011", sortedList("2011,2010,2011"))
}
