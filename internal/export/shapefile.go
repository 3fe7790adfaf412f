package export

import (
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/shapelet-cli/internal/model"
)

// wgs84PRJ is the ESRI WKT for GCS_WGS_1984.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// DBF attribute layout. Names are capped at 10 characters by the format.
const (
	fieldSiteKey = iota
	fieldState
	fieldCounty
	fieldSiteNum
	fieldCount
	fieldAvgQuality
	fieldMinQuality
	fieldMaxQuality
	fieldEarliest
	fieldLatest
	fieldPollutants
	fieldYears
)

var siteFields = []shp.Field{
	fieldSiteKey:    shp.StringField("SITE_KEY", 80),
	fieldState:      shp.StringField("STATE", 40),
	fieldCounty:     shp.StringField("COUNTY", 40),
	fieldSiteNum:    shp.NumberField("SITE_NUM", 10),
	fieldCount:      shp.NumberField("SHAPELETS", 10),
	fieldAvgQuality: shp.FloatField("AVG_QUAL", 19, 6),
	fieldMinQuality: shp.FloatField("MIN_QUAL", 19, 6),
	fieldMaxQuality: shp.FloatField("MAX_QUAL", 19, 6),
	fieldEarliest:   shp.StringField("EARLIEST", 10),
	fieldLatest:     shp.StringField("LATEST", 10),
	fieldPollutants: shp.StringField("POLLUTANTS", 254),
	fieldYears:      shp.StringField("YEARS", 254),
}

// asciiFold strips diacritics so names survive the DBF's single-byte text.
var asciiFold = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Map(func(r rune) rune {
		if r >= utf8.RuneSelf {
			return '?'
		}
		return r
	}),
	norm.NFC,
)

// dbfText folds s to ASCII and truncates it to the field width.
func dbfText(s string, size uint8) string {
	out, _, err := transform.String(asciiFold, s)
	if err != nil {
		out = s
	}
	if len(out) > int(size) {
		out = out[:size]
	}
	return out
}

// WriteSitesShapefile writes site summaries as a POINT shapefile at path
// (.shp, .shx, .dbf and a WGS84 .prj). Sites without coordinates are skipped.
// It returns the number of points written.
func WriteSitesShapefile(path string, sums []model.SiteSummary) (int, error) {
	base := strings.TrimSuffix(path, ".shp")

	w, err := shp.Create(base+".shp", shp.POINT)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create shapefile %s", path)
	}
	if err := w.SetFields(siteFields); err != nil {
		w.Close()
		return 0, eris.Wrap(err, "export: set shapefile fields")
	}

	n := 0
	for _, s := range sums {
		if !s.HasLocation() {
			continue
		}
		row := int(w.Write(&shp.Point{X: *s.Longitude, Y: *s.Latitude}))
		if err := writeSiteAttributes(w, row, s); err != nil {
			w.Close()
			return n, eris.Wrapf(err, "export: write attributes for %s", s.SiteKey)
		}
		n++
	}
	w.Close()

	// go-shp writes the table as <base>dbf
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil && !os.IsNotExist(err) {
		return n, eris.Wrap(err, "export: rename dbf")
	}
	if err := os.WriteFile(base+".prj", []byte(wgs84PRJ), 0o644); err != nil {
		return n, eris.Wrap(err, "export: write prj")
	}
	return n, nil
}

func writeSiteAttributes(w *shp.Writer, row int, s model.SiteSummary) error {
	values := make([]string, len(siteFields))
	values[fieldSiteKey] = s.SiteKey
	values[fieldState] = s.State
	values[fieldCounty] = s.County
	values[fieldSiteNum] = strconv.FormatInt(s.SiteNum, 10)
	values[fieldCount] = strconv.FormatInt(s.ShapeletCount, 10)
	values[fieldAvgQuality] = dbfFloat(s.AvgQuality, siteFields[fieldAvgQuality].Precision)
	values[fieldMinQuality] = dbfFloat(s.MinQuality, siteFields[fieldMinQuality].Precision)
	values[fieldMaxQuality] = dbfFloat(s.MaxQuality, siteFields[fieldMaxQuality].Precision)
	values[fieldEarliest] = s.EarliestDate
	values[fieldLatest] = s.LatestDate
	values[fieldPollutants] = s.Pollutants
	values[fieldYears] = s.Years

	for i, v := range values {
		if err := w.WriteAttribute(row, i, dbfPad(siteFields[i], v)); err != nil {
			return err
		}
	}
	return nil
}

func dbfFloat(f *float64, precision uint8) string {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', int(precision), 64)
}

// dbfPad fills v to the field width: text left-aligned, numbers right-aligned.
func dbfPad(f shp.Field, v string) string {
	size := int(f.Size)
	if f.Fieldtype == 'C' {
		v = dbfText(v, f.Size)
		return v + strings.Repeat(" ", size-len(v))
	}
	if len(v) > size {
		v = v[:size]
	}
	return strings.Repeat(" ", size-len(v)) + v
}
