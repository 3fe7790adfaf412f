package model

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date layout used for persisted dates.
const DateLayout = "2006-01-02"

// Field identifies one attribute of a flattened shapelet record.
type Field uint8

// Record fields, in declaration order.
const (
	FieldDatasetKey Field = iota
	FieldShapeletID
	FieldState
	FieldCounty
	FieldSiteNum
	FieldLatitude
	FieldLongitude
	FieldLocation
	FieldYear
	FieldStartDate
	FieldEndDate
	FieldLengthDays
	FieldPatternType
	FieldDataType
	FieldQuality
	FieldShapeletValues
	FieldSourceFile

	numFields
)

var fieldNames = [numFields]string{
	FieldDatasetKey:     "dataset_key",
	FieldShapeletID:     "shapelet_id",
	FieldState:          "state",
	FieldCounty:         "county",
	FieldSiteNum:        "site_num",
	FieldLatitude:       "latitude",
	FieldLongitude:      "longitude",
	FieldLocation:       "location",
	FieldYear:           "year",
	FieldStartDate:      "start_date",
	FieldEndDate:        "end_date",
	FieldLengthDays:     "length_days",
	FieldPatternType:    "pattern_type",
	FieldDataType:       "data_type",
	FieldQuality:        "quality",
	FieldShapeletValues: "shapelet_values",
	FieldSourceFile:     "source_file",
}

// String returns the snake_case column name of the field.
func (f Field) String() string {
	if f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// Fields returns every record field in declaration order.
func Fields() []Field {
	out := make([]Field, 0, numFields)
	for f := Field(0); f < numFields; f++ {
		out = append(out, f)
	}
	return out
}

// FieldSet is a bitset of record fields.
type FieldSet uint32

// AllFields is the set containing every record field.
const AllFields FieldSet = 1<<numFields - 1

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool { return s&(1<<f) != 0 }

// Add puts f in the set.
func (s *FieldSet) Add(f Field) { *s |= 1 << f }

// Remove takes f out of the set.
func (s *FieldSet) Remove(f Field) { *s &^= 1 << f }

// Record is one flattened shapelet ready for validation and storage.
// Present tracks which fields the normalizer actually populated.
type Record struct {
	DatasetKey string `json:"dataset_key"`
	ShapeletID int64  `json:"shapelet_id"`

	State     string  `json:"state"`
	County    string  `json:"county"`
	SiteNum   int64   `json:"site_num"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Location  *string `json:"location,omitempty"`

	Year       int       `json:"year"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	LengthDays int       `json:"length_days"`

	PatternType string `json:"pattern_type"`
	DataType    string `json:"data_type"`

	Quality        float64   `json:"quality"`
	ShapeletValues []float64 `json:"shapelet_values"`
	SourceFile     *string   `json:"source_file,omitempty"`

	Present FieldSet `json:"-"`
}

// SiteKey returns the composite site identifier for the record.
func (r *Record) SiteKey() string {
	return SiteKey(r.State, r.County, r.SiteNum)
}

// ParamCode returns the pollutant parameter code embedded in the pattern type.
func (r *Record) ParamCode() (string, bool) {
	return ParamCode(r.PatternType)
}

// SourceName returns the provenance file name, or "" when unknown.
func (r *Record) SourceName() string {
	if r.SourceFile == nil {
		return ""
	}
	return *r.SourceFile
}

// SiteKey builds the composite "{state}_{county}_{site_num}" key.
func SiteKey(state, county string, siteNum int64) string {
	var b strings.Builder
	b.WriteString(state)
	b.WriteByte('_')
	b.WriteString(county)
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(siteNum, 10))
	return b.String()
}

// ParamCode extracts the first purely-numeric underscore-delimited token from
// a pattern type label, e.g. "daily_42401" -> "42401".
func ParamCode(patternType string) (string, bool) {
	for _, part := range strings.Split(patternType, "_") {
		if isDigits(part) {
			return part, true
		}
	}
	return "", false
}

// Date truncates t to its calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
