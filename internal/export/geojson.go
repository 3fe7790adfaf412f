package export

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/shapelet-cli/internal/model"
)

// SitesFeatureCollection builds one point feature per located site.
func SitesFeatureCollection(sums []model.SiteSummary) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(sums))}
	for _, s := range sums {
		if !s.HasLocation() {
			continue
		}
		props := map[string]any{
			"site_key":       s.SiteKey,
			"state":          s.State,
			"county":         s.County,
			"site_num":       s.SiteNum,
			"shapelet_count": s.ShapeletCount,
			"earliest_date":  s.EarliestDate,
			"latest_date":    s.LatestDate,
			"pollutants":     splitList(s.Pollutants),
			"years":          splitList(s.Years),
		}
		for name, v := range map[string]*float64{
			"avg_quality": s.AvgQuality,
			"min_quality": s.MinQuality,
			"max_quality": s.MaxQuality,
		} {
			if v != nil {
				props[name] = *v
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         s.SiteKey,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{*s.Longitude, *s.Latitude}),
			Properties: props,
		})
	}
	return fc
}

// WriteSitesGeoJSON writes located sites as a GeoJSON FeatureCollection and
// returns the feature count.
func WriteSitesGeoJSON(w io.Writer, sums []model.SiteSummary) (int, error) {
	fc := SitesFeatureCollection(sums)
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return 0, eris.Wrap(err, "export: encode geojson")
	}
	return len(fc.Features), nil
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
