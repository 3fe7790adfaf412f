// Package export writes filtered shapelet data out of the store in formats
// GIS tools import directly: CSV, XLSX, point shapefiles and GeoJSON.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/store"
)

// DefaultMaxExpand is the number of Day_N columns written when expanding values.
const DefaultMaxExpand = 31

// shapeletColumns are the detailed CSV headers in SELECT order.
var shapeletColumns = []string{
	"ID", "DatasetKey", "ShapeletID", "SiteKey",
	"State", "County", "SiteNum", "Latitude", "Longitude",
	"ParameterCode", "Year", "StartDate", "EndDate",
	"LengthDays", "PatternType", "DataType", "Quality",
	"ShapeletValues", "SourceFile",
}

// valuesColumn is the index of ShapeletValues in shapeletColumns.
const valuesColumn = 17

var summaryColumns = []string{
	"SiteKey", "State", "County", "SiteNum",
	"Latitude", "Longitude",
	"ShapeletCount", "AvgQuality", "MinQuality", "MaxQuality",
	"EarliestDate", "LatestDate", "Pollutants", "Years",
}

// CSVOptions controls the detailed shapelet CSV layout.
type CSVOptions struct {
	// ExpandValues replaces the ShapeletValues column with Day_1..Day_N.
	ExpandValues bool
	// MaxExpand is N; rows are padded with blanks or truncated to fit.
	MaxExpand int
}

func (o CSVOptions) maxExpand() int {
	if o.MaxExpand <= 0 {
		return DefaultMaxExpand
	}
	return o.MaxExpand
}

// ShapeletHeader returns the detailed CSV header for opts.
func ShapeletHeader(opts CSVOptions) []string {
	if !opts.ExpandValues {
		return append([]string(nil), shapeletColumns...)
	}
	n := opts.maxExpand()
	out := make([]string, 0, len(shapeletColumns)-1+n)
	out = append(out, shapeletColumns[:valuesColumn]...)
	out = append(out, shapeletColumns[valuesColumn+1:]...)
	for i := 1; i <= n; i++ {
		out = append(out, "Day_"+strconv.Itoa(i))
	}
	return out
}

// ShapeletRecord formats one row for the detailed CSV. Missing values are blank.
func ShapeletRecord(r *model.ShapeletRow, opts CSVOptions) []string {
	rec := []string{
		strconv.FormatInt(r.ID, 10),
		r.DatasetKey,
		strconv.FormatInt(r.ShapeletID, 10),
		r.SiteKey,
		optString(r.State),
		optString(r.County),
		optInt(r.SiteNum),
		optFloat(r.Latitude),
		optFloat(r.Longitude),
		optString(r.ParameterCode),
		strconv.Itoa(r.Year),
		r.StartDate.Format(model.DateLayout),
		r.EndDate.Format(model.DateLayout),
		strconv.Itoa(r.LengthDays),
		optString(r.PatternType),
		optString(r.DataType),
		optFloat(r.Quality),
		store.EncodeValues(r.ShapeletValues),
		optString(r.SourceFile),
	}
	if !opts.ExpandValues {
		return rec
	}

	n := opts.maxExpand()
	out := make([]string, 0, len(rec)-1+n)
	out = append(out, rec[:valuesColumn]...)
	out = append(out, rec[valuesColumn+1:]...)
	for i := range n {
		if i < len(r.ShapeletValues) {
			out = append(out, model.FormatFloat(r.ShapeletValues[i]))
		} else {
			out = append(out, "")
		}
	}
	return out
}

// ShapeletWriter streams shapelet rows to CSV.
type ShapeletWriter struct {
	w    *csv.Writer
	opts CSVOptions
	rows int
}

// NewShapeletWriter writes the header and returns a writer for the rows.
func NewShapeletWriter(w io.Writer, opts CSVOptions) (*ShapeletWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ShapeletHeader(opts)); err != nil {
		return nil, eris.Wrap(err, "export: write csv header")
	}
	return &ShapeletWriter{w: cw, opts: opts}, nil
}

// Write appends one row.
func (sw *ShapeletWriter) Write(r *model.ShapeletRow) error {
	if err := sw.w.Write(ShapeletRecord(r, sw.opts)); err != nil {
		return eris.Wrapf(err, "export: write csv row %d", r.ID)
	}
	sw.rows++
	return nil
}

// Flush flushes buffered rows and reports any write error.
func (sw *ShapeletWriter) Flush() error {
	sw.w.Flush()
	return eris.Wrap(sw.w.Error(), "export: flush csv")
}

// Rows returns the number of data rows written.
func (sw *ShapeletWriter) Rows() int {
	return sw.rows
}

// WriteShapeletsCSV writes rows as a detailed CSV and returns the row count.
func WriteShapeletsCSV(w io.Writer, rows []*model.ShapeletRow, opts CSVOptions) (int, error) {
	sw, err := NewShapeletWriter(w, opts)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := sw.Write(r); err != nil {
			return sw.Rows(), err
		}
	}
	return sw.Rows(), sw.Flush()
}

// SummaryRecord formats one site summary row.
func SummaryRecord(s model.SiteSummary) []string {
	return []string{
		s.SiteKey,
		s.State,
		s.County,
		strconv.FormatInt(s.SiteNum, 10),
		optFloat(s.Latitude),
		optFloat(s.Longitude),
		strconv.FormatInt(s.ShapeletCount, 10),
		optFloat(s.AvgQuality),
		optFloat(s.MinQuality),
		optFloat(s.MaxQuality),
		s.EarliestDate,
		s.LatestDate,
		s.Pollutants,
		s.Years,
	}
}

// WriteSiteSummaryCSV writes one row per site and returns the row count.
func WriteSiteSummaryCSV(w io.Writer, sums []model.SiteSummary) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryColumns); err != nil {
		return 0, eris.Wrap(err, "export: write summary header")
	}
	for i, s := range sums {
		if err := cw.Write(SummaryRecord(s)); err != nil {
			return i, eris.Wrapf(err, "export: write summary row %s", s.SiteKey)
		}
	}
	cw.Flush()
	return len(sums), eris.Wrap(cw.Error(), "export: flush summary csv")
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optInt(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func optFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return model.FormatFloat(*f)
}
