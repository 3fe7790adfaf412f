package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/pipeline"
	"github.com/sells-group/shapelet-cli/internal/sample"
	"github.com/sells-group/shapelet-cli/internal/store"
)

func TestLoadInventory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	_, err := writeSamples(sampleOptions{
		Dir:    dir,
		Site:   sample.Site{State: "Texas", County: "Harris", SiteNum: 48, Latitude: 29.76, Longitude: -95.37},
		Years:  []int{2010, 2011},
		Count:  4,
		Chunks: 1,
		Seed:   3,
	})
	require.NoError(t, err)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "shapelets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	sum, err := pipeline.New(st, pipeline.Options{}).Run(ctx, pipeline.Request{InputDir: dir})
	require.NoError(t, err)
	require.Equal(t, 8, sum.Inserted)

	inv, err := loadInventory(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, int64(8), inv.Shapelets)
	assert.Equal(t, []int{2010, 2011}, inv.Years)
	require.Len(t, inv.Pollutants, 1)
	assert.Equal(t, "42401", inv.Pollutants[0].ParameterCode)
	require.Len(t, inv.Sites, 1)
	assert.Equal(t, "Texas_Harris_48", inv.Sites[0].SiteKey)
	assert.Equal(t, []string{"daily_42401"}, inv.PatternTypes)
	assert.NotEmpty(t, inv.Earliest)
	assert.NotEmpty(t, inv.Latest)
	assert.Equal(t, st.Location(), inv.Store)
}

func TestFormatInventory(t *testing.T) {
	lat, lon := 29.76, -95.37
	inv := &inventory{
		Shapelets:    1500,
		Years:        []int{2010, 2011},
		Pollutants:   []model.Pollutant{{ParameterCode: "42401", Name: "Sulfur dioxide", Unit: "ppb"}, {ParameterCode: "88101"}},
		Sites:        []model.Site{{SiteKey: "Texas_Harris_48", State: "Texas", County: "Harris", SiteNum: 48, Latitude: &lat, Longitude: &lon}},
		PatternTypes: []string{"daily_42401", "daily_88101"},
		Earliest:     "2010-01-03",
		Latest:       "2011-12-30",
		Store:        "data/shapelets.db",
	}

	var buf bytes.Buffer
	formatInventory(&buf, inv)

	output := buf.String()
	assert.Contains(t, output, "1,500")
	assert.Contains(t, output, "2010, 2011")
	assert.Contains(t, output, "2010-01-03 -> 2011-12-30")
	assert.Contains(t, output, "daily_42401, daily_88101")
	assert.Contains(t, output, "Sulfur dioxide")
	assert.Contains(t, output, "parameter_code")
	assert.Contains(t, output, "Texas_Harris_48")
	assert.Contains(t, output, "29.760000")
}

func TestFormatInventory_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatInventory(&buf, &inventory{Store: "x.db"})

	output := buf.String()
	assert.Contains(t, output, "Date range")
	assert.NotContains(t, output, "parameter_code")
	assert.NotContains(t, output, "site_key")
}
