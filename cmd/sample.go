package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shapelet-cli/internal/sample"
)

// sampleOptions controls writeSamples.
type sampleOptions struct {
	Dir       string
	Site      sample.Site
	Years     []int
	ParamCode string
	Count     int
	Chunks    int
	Length    int
	Seed      uint64
	Zip       bool
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write synthetic shapelet pickle files",
	Long: `Generates deterministic shapelet containers for one site, one file per
year and chunk, named the way the ingest command expects. Useful for smoke
tests and demos without real monitoring data.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		var opts sampleOptions
		opts.Dir, _ = f.GetString("out")
		opts.Site.State, _ = f.GetString("state")
		opts.Site.County, _ = f.GetString("county")
		opts.Site.SiteNum, _ = f.GetInt64("site-num")
		opts.Site.Latitude, _ = f.GetFloat64("lat")
		opts.Site.Longitude, _ = f.GetFloat64("lon")
		opts.Site.Location, _ = f.GetString("location")
		opts.Years, _ = f.GetIntSlice("years")
		opts.ParamCode, _ = f.GetString("param")
		opts.Count, _ = f.GetInt("count")
		opts.Chunks, _ = f.GetInt("chunks")
		opts.Length, _ = f.GetInt("length")
		opts.Seed, _ = f.GetUint64("seed")
		opts.Zip, _ = f.GetBool("zip")

		paths, err := writeSamples(opts)
		if err != nil {
			return err
		}
		for _, p := range paths {
			_, _ = fmt.Fprintln(os.Stdout, p)
		}
		return nil
	},
}

// writeSamples writes one container per year and chunk and returns the
// written paths. With Zip set, each year's chunks go into a single archive.
func writeSamples(opts sampleOptions) ([]string, error) {
	if opts.Count < 1 {
		return nil, eris.New("sample: count must be >= 1")
	}
	if opts.Chunks < 1 {
		opts.Chunks = 1
	}
	if opts.ParamCode == "" {
		opts.ParamCode = "42401"
	}
	if strings.Contains(opts.Site.County, "_") {
		return nil, eris.Errorf("sample: county %q must not contain '_'", opts.Site.County)
	}

	var paths []string
	for _, year := range opts.Years {
		key := sample.DatasetKey(opts.Site, opts.ParamCode, year)
		members := make(map[string]map[any]any, opts.Chunks)
		var order []string

		for chunk := range opts.Chunks {
			shapelets := sample.Generate(sample.Options{
				Site:      opts.Site,
				Year:      year,
				ParamCode: opts.ParamCode,
				Count:     opts.Count,
				Length:    opts.Length,
				Seed:      opts.Seed + uint64(chunk),
			})
			for i := range shapelets {
				shapelets[i].ID += int64(chunk * opts.Count)
			}

			name := sample.FileName(opts.Site, year, chunk)
			container := sample.Container(key, sample.Dicts(shapelets)...)
			if opts.Zip {
				members[name] = container
				order = append(order, name)
				continue
			}
			path, err := sample.WriteFile(opts.Dir, name, container)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}

		if opts.Zip {
			if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
				return nil, eris.Wrap(err, "sample: create dir")
			}
			path := filepath.Join(opts.Dir, strings.TrimSuffix(order[0], ".pkl")+".zip")
			if err := sample.WriteZip(path, members, order...); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func init() {
	sampleCmd.Flags().String("out", "data/sample", "output directory")
	sampleCmd.Flags().String("state", "Texas", "site state")
	sampleCmd.Flags().String("county", "Harris", "site county (letters and spaces)")
	sampleCmd.Flags().Int64("site-num", 48, "site number")
	sampleCmd.Flags().Float64("lat", 29.76, "site latitude")
	sampleCmd.Flags().Float64("lon", -95.37, "site longitude")
	sampleCmd.Flags().String("location", "", "optional free-text site location")
	sampleCmd.Flags().IntSlice("years", []int{2010}, "years to generate")
	sampleCmd.Flags().String("param", "42401", "pollutant parameter code")
	sampleCmd.Flags().Int("count", 25, "shapelets per file")
	sampleCmd.Flags().Int("chunks", 1, "files per year")
	sampleCmd.Flags().Int("length", 7, "days per shapelet")
	sampleCmd.Flags().Uint64("seed", 1, "random seed")
	sampleCmd.Flags().Bool("zip", false, "bundle each year's files into a zip archive")
	rootCmd.AddCommand(sampleCmd)
}
