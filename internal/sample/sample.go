// Package sample writes synthetic shapelet containers in the pickle layout the
// ingest pipeline consumes. It backs the `sample` command and test fixtures.
package sample

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	ogrek "github.com/kisielk/og-rek"
	"github.com/rotisserie/eris"
)

// Protocol is the pickle protocol used for generated files.
const Protocol = 3

// Site identifies the monitoring station a container belongs to.
type Site struct {
	State     string
	County    string
	SiteNum   int64
	Latitude  float64
	Longitude float64
	Location  string
}

// Shapelet is one raw shapelet before pickling.
type Shapelet struct {
	ID          int64
	Site        Site
	Year        int
	StartDate   time.Time
	EndDate     time.Time
	PatternType string
	DataType    string
	Quality     float64
	Values      []float64
}

// Dict returns the shapelet as the dictionary stored in a container. Numeric
// scalars are emitted as numpy scalars and dates as datetime.date.
func (s Shapelet) Dict() map[any]any {
	values := make([]any, len(s.Values))
	for i, v := range s.Values {
		values[i] = v
	}
	d := map[any]any{
		"shapelet_id":  Int64(s.ID),
		"state":        s.Site.State,
		"county":       s.Site.County,
		"site_num":     Int64(s.Site.SiteNum),
		"latitude":     Float64(s.Site.Latitude),
		"longitude":    Float64(s.Site.Longitude),
		"year":         s.Year,
		"start_date":   Date(s.StartDate),
		"end_date":     Date(s.EndDate),
		"length_days":  int(s.EndDate.Sub(s.StartDate)/(24*time.Hour)) + 1,
		"pattern_type": s.PatternType,
		"data_type":    s.DataType,
		"quality":      Float64(s.Quality),
		"shapelet":     values,
	}
	if s.Site.Location != "" {
		d["location"] = s.Site.Location
	}
	return d
}

// Container builds the single-key mapping for a dataset.
func Container(key string, shapelets ...map[any]any) map[any]any {
	list := make([]any, len(shapelets))
	for i, s := range shapelets {
		list[i] = s
	}
	return map[any]any{key: list}
}

// Encode pickles v.
func Encode(w io.Writer, v any) error {
	enc := ogrek.NewEncoderWithConfig(w, &ogrek.EncoderConfig{Protocol: Protocol})
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "sample: encode pickle")
	}
	return nil
}

// Date encodes t as a datetime.date reduce call.
func Date(t time.Time) ogrek.Call {
	y := t.Year()
	state := []byte{byte(y >> 8), byte(y), byte(t.Month()), byte(t.Day())}
	return ogrek.Call{
		Callable: ogrek.Class{Module: "datetime", Name: "date"},
		Args:     ogrek.Tuple{ogrek.Bytes(state)},
	}
}

// Datetime encodes t as a datetime.datetime reduce call.
func Datetime(t time.Time) ogrek.Call {
	y := t.Year()
	us := t.Nanosecond() / 1000
	state := []byte{
		byte(y >> 8), byte(y), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
		byte(us >> 16), byte(us >> 8), byte(us),
	}
	return ogrek.Call{
		Callable: ogrek.Class{Module: "datetime", Name: "datetime"},
		Args:     ogrek.Tuple{ogrek.Bytes(state)},
	}
}

// Float64 encodes f as a numpy float64 scalar.
func Float64(f float64) ogrek.Call {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	return scalar("f8", b[:])
}

// Int64 encodes i as a numpy int64 scalar.
func Int64(i int64) ogrek.Call {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(i))
	return scalar("i8", b[:])
}

func scalar(dtype string, raw []byte) ogrek.Call {
	return ogrek.Call{
		Callable: ogrek.Class{Module: "numpy.core.multiarray", Name: "scalar"},
		Args: ogrek.Tuple{
			ogrek.Call{
				Callable: ogrek.Class{Module: "numpy", Name: "dtype"},
				Args:     ogrek.Tuple{dtype, false, true},
			},
			ogrek.Bytes(raw),
		},
	}
}

// FileName returns the canonical input file name for a site chunk.
func FileName(site Site, year, chunk int) string {
	return fmt.Sprintf("%s_%s_%d_shapelets.pkl_%d_%03d.pkl", site.State, site.County, site.SiteNum, year, chunk)
}

// DatasetKey returns a dataset key for the site, parameter code and year.
func DatasetKey(site Site, paramCode string, year int) string {
	return fmt.Sprintf("%s_%s_%d_daily_%s_7d_%d_daily_zscore", site.State, site.County, site.SiteNum, paramCode, year)
}

// Options controls Generate.
type Options struct {
	Site      Site
	Year      int
	ParamCode string
	Count     int
	Length    int // days per shapelet
	Seed      uint64
}

// Generate returns count deterministic shapelets for one site and year.
func Generate(opts Options) []Shapelet {
	if opts.Length < 1 {
		opts.Length = 7
	}
	if opts.ParamCode == "" {
		opts.ParamCode = "42401"
	}
	rng := rand.New(rand.NewPCG(opts.Seed, uint64(opts.Year)))
	start := time.Date(opts.Year, 1, 1, 0, 0, 0, 0, time.UTC)

	span := 365 - opts.Length
	if span < 1 {
		span = 1
	}

	out := make([]Shapelet, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		begin := start.AddDate(0, 0, rng.IntN(span))
		values := make([]float64, opts.Length)
		for j := range values {
			values[j] = math.Round(rng.NormFloat64()*1000) / 1000
		}
		out = append(out, Shapelet{
			ID:          int64(i),
			Site:        opts.Site,
			Year:        opts.Year,
			StartDate:   begin,
			EndDate:     begin.AddDate(0, 0, opts.Length-1),
			PatternType: "daily_" + opts.ParamCode,
			DataType:    "daily_zscore",
			Quality:     math.Round(rng.Float64()*1e4) / 1e4,
			Values:      values,
		})
	}
	return out
}

// Dicts converts shapelets to container dictionaries.
func Dicts(shapelets []Shapelet) []map[any]any {
	out := make([]map[any]any, len(shapelets))
	for i, s := range shapelets {
		out[i] = s.Dict()
	}
	return out
}

// WriteFile pickles a container into dir under name and returns the path.
func WriteFile(dir, name string, container map[any]any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "sample: create dir")
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "sample: create file")
	}
	if err := Encode(f, container); err != nil {
		f.Close() //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "sample: close file")
	}
	return path, nil
}

// WriteZip writes a zip archive at path holding each container under its member name.
func WriteZip(path string, members map[string]map[any]any, order ...string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "sample: create zip")
	}
	defer f.Close() //nolint:errcheck

	zw := zip.NewWriter(f)
	if len(order) == 0 {
		for name := range members {
			order = append(order, name)
		}
	}
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			return eris.Wrapf(err, "sample: create zip member %s", name)
		}
		if err := Encode(w, members[name]); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return eris.Wrap(err, "sample: finalize zip")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "sample: close zip")
	}
	return nil
}
