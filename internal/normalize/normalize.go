// Package normalize flattens decoded shapelet containers into model.Record
// values with native Go types.
package normalize

import (
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/pyobj"
)

var (
	// ErrMissingField means a required key is absent from a shapelet dictionary.
	ErrMissingField = eris.New("normalize: missing field")
	// ErrTypeCoercion means a value could not be converted to its declared type.
	ErrTypeCoercion = eris.New("normalize: type coercion")
	// ErrMalformedContainer means the container itself has the wrong shape.
	// It aborts the whole file.
	ErrMalformedContainer = eris.New("normalize: malformed container")
)

// RawValuesKey is the container key holding the pattern array.
const RawValuesKey = "shapelet"

// rawName maps a record field to its key inside a shapelet dictionary.
func rawName(f model.Field) string {
	if f == model.FieldShapeletValues {
		return RawValuesKey
	}
	return f.String()
}

type dataset struct {
	key   string
	items []pyobj.Mapping
}

// DatasetKey returns the first dataset key of a container.
func DatasetKey(data any) (string, error) {
	m, ok := pyobj.AsMapping(data)
	if !ok {
		return "", eris.Wrapf(ErrMalformedContainer, "unsupported shapelet container type: %s", pyobj.TypeName(data))
	}
	keys := m.Keys()
	if len(keys) == 0 {
		return "", eris.Wrap(ErrMalformedContainer, "container has no dataset key")
	}
	return keyString(keys[0]), nil
}

// Records checks the container structure and returns a lazy sequence with one
// entry per shapelet. A shapelet that cannot be flattened yields its partial
// record together with an ErrMissingField or ErrTypeCoercion error; the
// sequence continues with the next shapelet.
func Records(data any, sourceFile *string) (iter.Seq2[model.Record, error], error) {
	sets, err := datasets(data)
	if err != nil {
		return nil, err
	}
	return func(yield func(model.Record, error) bool) {
		for _, ds := range sets {
			for i, raw := range ds.items {
				if !yield(flatten(ds.key, i, raw, sourceFile)) {
					return
				}
			}
		}
	}, nil
}

// Collect drains a record sequence into flattened records and per-shapelet errors.
func Collect(seq iter.Seq2[model.Record, error]) ([]model.Record, []error) {
	var recs []model.Record
	var errs []error
	for r, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, r)
	}
	return recs, errs
}

func datasets(data any) ([]dataset, error) {
	m, ok := pyobj.AsMapping(data)
	if !ok {
		return nil, eris.Wrapf(ErrMalformedContainer, "unsupported shapelet container type: %s", pyobj.TypeName(data))
	}
	keys := m.Keys()
	if len(keys) == 0 {
		return nil, eris.Wrap(ErrMalformedContainer, "container has no dataset key")
	}

	out := make([]dataset, 0, len(keys))
	for _, k := range keys {
		key := keyString(k)
		v, _ := m.Get(k)
		seq, ok := pyobj.AsSequence(v)
		if !ok {
			return nil, eris.Wrapf(ErrMalformedContainer, "dataset %s: expected a list of shapelets, got %s", key, pyobj.TypeName(v))
		}
		ds := dataset{key: key, items: make([]pyobj.Mapping, 0, len(seq))}
		for i, item := range seq {
			sm, ok := pyobj.AsMapping(item)
			if !ok {
				return nil, eris.Wrapf(ErrMalformedContainer, "dataset %s: shapelet %d is %s, not a dict", key, i, pyobj.TypeName(item))
			}
			ds.items = append(ds.items, sm)
		}
		out = append(out, ds)
	}
	return out, nil
}

func keyString(k any) string {
	switch s := k.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(k)
}

// reader fills one record and remembers the first failure.
type reader struct {
	raw pyobj.Mapping
	idx int
	rec *model.Record
	err error
}

func (rd *reader) fail(sentinel error, format string, args ...any) {
	if rd.err == nil {
		rd.err = eris.Wrapf(sentinel, "shapelet %d: "+format, append([]any{rd.idx}, args...)...)
	}
}

func read[T any](rd *reader, f model.Field, kind string, conv func(any) (T, bool), dst *T) {
	name := rawName(f)
	v, ok := rd.raw.Get(name)
	if !ok {
		rd.fail(ErrMissingField, "%s", name)
		return
	}
	out, ok := conv(v)
	if !ok {
		rd.fail(ErrTypeCoercion, "%s: cannot convert %s to %s", name, pyobj.TypeName(v), kind)
		return
	}
	*dst = out
	rd.rec.Present.Add(f)
}

func flatten(key string, idx int, raw pyobj.Mapping, sourceFile *string) (model.Record, error) {
	r := model.Record{DatasetKey: key, SourceFile: sourceFile}
	r.Present.Add(model.FieldDatasetKey)
	r.Present.Add(model.FieldSourceFile)

	rd := &reader{raw: raw, idx: idx, rec: &r}
	read(rd, model.FieldShapeletID, "int", toInt, &r.ShapeletID)

	read(rd, model.FieldState, "str", toString, &r.State)
	read(rd, model.FieldCounty, "str", toString, &r.County)
	read(rd, model.FieldSiteNum, "int", toInt, &r.SiteNum)
	read(rd, model.FieldLatitude, "float", toFloat, &r.Latitude)
	read(rd, model.FieldLongitude, "float", toFloat, &r.Longitude)
	if v, ok := raw.Get(model.FieldLocation.String()); ok {
		if v != nil {
			if s, ok := toString(v); ok {
				r.Location = &s
			} else {
				rd.fail(ErrTypeCoercion, "location: cannot convert %s to str", pyobj.TypeName(v))
			}
		}
		r.Present.Add(model.FieldLocation)
	}

	var year, length int64
	read(rd, model.FieldYear, "int", toInt, &year)
	r.Year = int(year)
	read(rd, model.FieldStartDate, "date", toDate, &r.StartDate)
	read(rd, model.FieldEndDate, "date", toDate, &r.EndDate)
	read(rd, model.FieldLengthDays, "int", toInt, &length)
	r.LengthDays = int(length)

	read(rd, model.FieldPatternType, "str", toString, &r.PatternType)
	read(rd, model.FieldDataType, "str", toString, &r.DataType)

	read(rd, model.FieldQuality, "float", toFloat, &r.Quality)
	read(rd, model.FieldShapeletValues, "list[float]", toFloats, &r.ShapeletValues)

	return r, rd.err
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case bool, float32, float64:
		return "", false
	}
	if n, ok := pyobj.AsInt(v); ok {
		return strconv.FormatInt(n, 10), true
	}
	return "", false
}

func toInt(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return n, err == nil
	}
	if n, ok := pyobj.AsInt(v); ok {
		return n, true
	}
	f, ok := pyobj.AsFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1<<63 {
		return 0, false
	}
	return int64(math.Trunc(f)), true
}

func toFloat(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return pyobj.AsFloat(v)
}

func toDate(v any) (time.Time, bool) {
	t, ok := pyobj.AsTime(v)
	if !ok {
		return time.Time{}, false
	}
	return model.Date(t), true
}

func toFloats(v any) ([]float64, bool) {
	if a, ok := v.(*pyobj.NDArray); ok {
		out, err := a.Float64s()
		return out, err == nil
	}
	seq, ok := pyobj.AsSequence(v)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(seq))
	for i, x := range seq {
		f, ok := pyobj.AsFloat(x)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
