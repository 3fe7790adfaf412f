package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParamCode(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
		ok      bool
	}{
		{"daily_42401", "42401", true},
		{"42101_hourly", "42101", true},
		{"daily_7d_88101_44201", "88101", true},
		{"daily_zscore", "", false},
		{"", "", false},
		{"4240a_daily", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, ok := ParamCode(tt.pattern)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSiteKey(t *testing.T) {
	assert.Equal(t, "Texas_Harris_48", SiteKey("Texas", "Harris", 48))
	assert.Equal(t, "North Carolina_Beaufort_6", SiteKey("North Carolina", "Beaufort", 6))

	r := Record{State: "Ohio", County: "Franklin", SiteNum: 3}
	assert.Equal(t, "Ohio_Franklin_3", r.SiteKey())
}

func TestFieldSet(t *testing.T) {
	var s FieldSet
	assert.False(t, s.Has(FieldYear))

	s.Add(FieldYear)
	s.Add(FieldQuality)
	assert.True(t, s.Has(FieldYear))
	assert.True(t, s.Has(FieldQuality))
	assert.False(t, s.Has(FieldState))

	s.Remove(FieldYear)
	assert.False(t, s.Has(FieldYear))

	for _, f := range Fields() {
		assert.True(t, AllFields.Has(f), f.String())
	}
	assert.Len(t, Fields(), 17)
}

func TestFieldString(t *testing.T) {
	assert.Equal(t, "dataset_key", FieldDatasetKey.String())
	assert.Equal(t, "shapelet_values", FieldShapeletValues.String())
	assert.Equal(t, "source_file", FieldSourceFile.String())
	assert.Equal(t, "unknown", Field(200).String())
}

func TestDate(t *testing.T) {
	in := time.Date(2010, 6, 15, 13, 45, 0, 0, time.FixedZone("x", 3600))
	got := Date(in)
	assert.Equal(t, time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestRecordSourceName(t *testing.T) {
	r := Record{}
	assert.Equal(t, "", r.SourceName())
	name := "a.pkl"
	r.SourceFile = &name
	assert.Equal(t, "a.pkl", r.SourceName())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, RunStatusCompleted, StatusFor(0))
	assert.Equal(t, RunStatusCompletedWithErrors, StatusFor(2))
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
}

func TestIngestionRunDuration(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := IngestionRun{StartedAt: start}
	assert.Zero(t, r.Duration())

	end := start.Add(90 * time.Second)
	r.FinishedAt = &end
	assert.Equal(t, 90*time.Second, r.Duration())
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{0, "0.0"},
		{-1.25, "-1.25"},
		{29.76, "29.76"},
		{1e-7, "1e-07"},
		{0.0001, "0.0001"},
		{1e16, "1e+16"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFloat(tt.in), tt.want)
	}
}
