// Package naming parses the location and time metadata encoded in shapelet
// file names and in the dataset keys stored inside each container.
package naming

import (
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rotisserie/eris"
)

// ErrPatternMismatch is returned when a name does not follow the expected grammar.
// Callers treat it as a skippable-file condition.
var ErrPatternMismatch = eris.New("naming: pattern mismatch")

// State names are captured non-greedily up to the first county-shaped token, so a
// state containing a "_Letters_Digits" run can mis-split. See IsKnownState.
var (
	filenameRE = regexp.MustCompile(
		`^(?P<state>.+?)_(?P<county>[A-Za-z ]+?)_(?P<site_num>\d+)` +
			`_shapelets\.pkl` +
			`_(?P<year>\d{4})` +
			`_(?P<chunk>\d{3})` +
			`\.pkl$`)

	datasetKeyRE = regexp.MustCompile(
		`^(?P<state>.+?)_(?P<county>[A-Za-z ]+?)_(?P<site_num>\d+)` +
			`_(?P<frequency>[a-z]+)` +
			`_(?P<parameter_code>\d+)` +
			`_(?P<duration>\w+)` +
			`_(?P<year>\d{4})` +
			`_(?P<agg_method>.+)$`)
)

// FileMeta is the metadata encoded in a shapelet file name, e.g.
// "North Carolina_Beaufort_6_shapelets.pkl_2004_000.pkl".
type FileMeta struct {
	State   string `json:"state"`
	County  string `json:"county"`
	SiteNum int64  `json:"site_num"`
	Year    int    `json:"year"`
	Chunk   int    `json:"chunk"`
}

// KeyMeta is the metadata encoded in a dataset key, e.g.
// "North Carolina_Beaufort_6_daily_42401_7d_2004_daily_zscore".
type KeyMeta struct {
	State         string `json:"state"`
	County        string `json:"county"`
	SiteNum       int64  `json:"site_num"`
	Frequency     string `json:"frequency"`
	ParameterCode string `json:"parameter_code"`
	Duration      string `json:"duration"`
	Year          int    `json:"year"`
	AggMethod     string `json:"agg_method"`
	RawKey        string `json:"raw_key,omitempty"`
}

// Parsed reports whether the key matched the grammar. A fallback KeyMeta built by
// RawKeyMeta carries only RawKey.
func (k KeyMeta) Parsed() bool {
	return k.RawKey == ""
}

// RawKeyMeta wraps an unparseable dataset key so callers can keep going with the
// opaque key.
func RawKeyMeta(key string) KeyMeta {
	return KeyMeta{RawKey: key}
}

// ParseFilename extracts metadata from a shapelet file name. Only the base name of
// the given path is considered.
func ParseFilename(name string) (FileMeta, error) {
	base := filepath.Base(name)
	m := match(filenameRE, base)
	if m == nil {
		return FileMeta{}, eris.Wrapf(ErrPatternMismatch, "filename does not match expected pattern: %s", base)
	}

	siteNum, err := strconv.ParseInt(m["site_num"], 10, 64)
	if err != nil {
		return FileMeta{}, eris.Wrapf(ErrPatternMismatch, "site number out of range: %s", base)
	}

	// year and chunk are fixed-width digit runs; Atoi cannot fail on them.
	year, _ := strconv.Atoi(m["year"])
	chunk, _ := strconv.Atoi(m["chunk"])

	return FileMeta{
		State:   m["state"],
		County:  m["county"],
		SiteNum: siteNum,
		Year:    year,
		Chunk:   chunk,
	}, nil
}

// ParseDatasetKey extracts metadata from the single top-level key of a container.
// AggMethod captures everything after the year token, underscores included.
func ParseDatasetKey(key string) (KeyMeta, error) {
	m := match(datasetKeyRE, key)
	if m == nil {
		return KeyMeta{}, eris.Wrapf(ErrPatternMismatch, "dataset key does not match expected pattern: %s", key)
	}

	siteNum, err := strconv.ParseInt(m["site_num"], 10, 64)
	if err != nil {
		return KeyMeta{}, eris.Wrapf(ErrPatternMismatch, "site number out of range: %s", key)
	}
	year, _ := strconv.Atoi(m["year"])

	return KeyMeta{
		State:         m["state"],
		County:        m["county"],
		SiteNum:       siteNum,
		Frequency:     m["frequency"],
		ParameterCode: m["parameter_code"],
		Duration:      m["duration"],
		Year:          year,
		AggMethod:     m["agg_method"],
	}, nil
}

func match(re *regexp.Regexp, s string) map[string]string {
	sub := re.FindStringSubmatch(s)
	if sub == nil {
		return nil
	}
	out := make(map[string]string, len(sub))
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = sub[i]
		}
	}
	return out
}
