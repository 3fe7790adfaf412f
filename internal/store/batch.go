package store

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shapelet-cli/internal/model"
)

// shapeletRow is one shapelets table row prepared from a record.
type shapeletRow struct {
	DatasetKey    string
	ShapeletID    int64
	SiteKey       string
	ParameterCode *string
	Year          int
	StartDate     time.Time
	EndDate       time.Time
	LengthDays    int
	PatternType   string
	DataType      string
	Quality       float64
	Values        []float64
	SourceFile    *string
}

// batchPlan holds the writes for one batch in dependency order.
type batchPlan struct {
	Sites      []model.Record
	Pollutants []string
	Rows       []shapeletRow
}

// planner tracks dimension keys already written during one InsertShapelets call.
type planner struct {
	sites      map[string]struct{}
	pollutants map[string]struct{}
}

func newPlanner() *planner {
	return &planner{
		sites:      make(map[string]struct{}),
		pollutants: make(map[string]struct{}),
	}
}

func (p *planner) plan(chunk []model.Record) batchPlan {
	var bp batchPlan
	bp.Rows = make([]shapeletRow, 0, len(chunk))
	for i := range chunk {
		r := &chunk[i]
		key := r.SiteKey()
		if _, ok := p.sites[key]; !ok {
			p.sites[key] = struct{}{}
			bp.Sites = append(bp.Sites, *r)
		}
	}
	for i := range chunk {
		r := &chunk[i]
		var code *string
		if c, ok := r.ParamCode(); ok {
			code = &c
			if _, seen := p.pollutants[c]; !seen {
				p.pollutants[c] = struct{}{}
				bp.Pollutants = append(bp.Pollutants, c)
			}
		}
		bp.Rows = append(bp.Rows, shapeletRow{
			DatasetKey:    r.DatasetKey,
			ShapeletID:    r.ShapeletID,
			SiteKey:       r.SiteKey(),
			ParameterCode: code,
			Year:          r.Year,
			StartDate:     r.StartDate,
			EndDate:       r.EndDate,
			LengthDays:    r.LengthDays,
			PatternType:   r.PatternType,
			DataType:      r.DataType,
			Quality:       r.Quality,
			Values:        r.ShapeletValues,
			SourceFile:    r.SourceFile,
		})
	}
	return bp
}

// chunks splits records into consecutive slices of at most size elements.
func chunks(records []model.Record, size int) [][]model.Record {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]model.Record
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}

// encodeValues renders values as a JSON array. Non-finite values become the
// NaN/Infinity tokens, or null when strict is set.
func encodeValues(values []float64, strict bool) string {
	var b strings.Builder
	b.Grow(len(values)*8 + 2)
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatValue(v, strict))
	}
	b.WriteByte(']')
	return b.String()
}

func formatValue(v float64, strict bool) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		switch {
		case strict:
			return "null"
		case math.IsNaN(v):
			return "NaN"
		case v > 0:
			return "Infinity"
		default:
			return "-Infinity"
		}
	}
	return model.FormatFloat(v)
}

// EncodeValues renders values as the JSON-like array text stored in SQLite.
func EncodeValues(values []float64) string {
	return encodeValues(values, false)
}

// decodeValues parses an array written by encodeValues. null reads back as NaN.
func decodeValues(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, eris.Errorf("store: decode values: not an array: %.40q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float64{}, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "null" {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "store: decode values: element %d", i)
		}
		out[i] = v
	}
	return out, nil
}
