package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

func TestWriteSitesGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteSitesGeoJSON(&buf, testSummaries())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "FeatureCollection", raw["type"])

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, "New Mexico_Doña Ana_12", f.ID)
	pt, ok := f.Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{-106.8, 32.3}, pt.FlatCoords())
	assert.Equal(t, "Doña Ana", f.Properties["county"])
	assert.Equal(t, []any{"42401", "44201"}, f.Properties["pollutants"])
	assert.InDelta(t, 0.25, f.Properties["avg_quality"], 1e-12)
}

func TestSitesFeatureCollection_Empty(t *testing.T) {
	fc := SitesFeatureCollection(nil)
	assert.Empty(t, fc.Features)
}
