package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/shapelet-cli/internal/export"
	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a filtered subset of shapelets for GIS tools",
	Long: `Writes shapelets matching the filters as CSV (ArcGIS column layout) and,
optionally, a per-site summary CSV, an XLSX workbook, a point shapefile and
GeoJSON. A YAML manifest describing the export is written alongside.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("out") {
			cfg.Export.OutputDir, _ = cmd.Flags().GetString("out")
		}
		if cmd.Flags().Changed("max-expand") {
			cfg.Export.MaxExpand, _ = cmd.Flags().GetInt("max-expand")
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		filter, err := exportFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		names := cfg.Export.Formats
		if cmd.Flags().Changed("format") {
			names, _ = cmd.Flags().GetStringSlice("format")
		}
		if summary, _ := cmd.Flags().GetBool("site-summary"); summary {
			names = append(names, string(export.FormatSiteSummary))
		}
		formats, err := export.ParseFormats(names)
		if err != nil {
			return err
		}
		expand, _ := cmd.Flags().GetBool("expand-values")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, err := export.New(st, cfg.Export, nil).Run(ctx, export.Request{
			Filter:       filter,
			Formats:      formats,
			ExpandValues: expand,
		})
		if errors.Is(err, export.ErrNoRows) {
			fmt.Fprintln(os.Stderr, "No shapelets match the selected filters.")
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "export")
		}

		formatManifest(os.Stdout, m)
		return nil
	},
}

// exportFilterFromFlags builds the store filter and checks the date bounds.
func exportFilterFromFlags(cmd *cobra.Command) (store.ExportFilter, error) {
	var f store.ExportFilter
	f.Years, _ = cmd.Flags().GetIntSlice("years")
	f.Sites, _ = cmd.Flags().GetStringSlice("sites")
	f.Pollutants, _ = cmd.Flags().GetStringSlice("pollutants")
	f.PatternTypes, _ = cmd.Flags().GetStringSlice("pattern-types")
	f.From, _ = cmd.Flags().GetString("from")
	f.To, _ = cmd.Flags().GetString("to")

	var from, to time.Time
	var err error
	if f.From != "" {
		if from, err = time.Parse(model.DateLayout, f.From); err != nil {
			return f, eris.Wrapf(err, "invalid --from date %q (want YYYY-MM-DD)", f.From)
		}
	}
	if f.To != "" {
		if to, err = time.Parse(model.DateLayout, f.To); err != nil {
			return f, eris.Wrapf(err, "invalid --to date %q (want YYYY-MM-DD)", f.To)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return f, eris.Errorf("--to %s is before --from %s", f.To, f.From)
	}
	return f, nil
}

// formatManifest writes the files produced by an export to w.
func formatManifest(out io.Writer, m *export.Manifest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Export:\t%s\n", m.ExportID)
	_, _ = fmt.Fprintf(w, "Matched rows:\t%s\n", humanize.Comma(m.MatchedRows))
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "FORMAT\tROWS\tSIZE\tPATH")
	_, _ = fmt.Fprintln(w, "------\t----\t----\t----")
	for _, f := range m.Files {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Format, humanize.Comma(int64(f.Rows)), humanize.IBytes(uint64(f.Bytes)), f.Path)
	}
	_, _ = fmt.Fprintf(w, "manifest\t\t\t%s\n", m.Path)
	_ = w.Flush()
}

// addExportFlags registers the export flags on fs.
func addExportFlags(fs *pflag.FlagSet) {
	fs.String("out", "", "output directory (overrides export.output_dir)")
	fs.StringSlice("format", nil, "formats to write: csv, summary, xlsx, shp, geojson or all")
	fs.IntSlice("years", nil, "only these years")
	fs.StringSlice("sites", nil, "only these site keys (State_County_SiteNum)")
	fs.StringSlice("pollutants", nil, "only these parameter codes")
	fs.StringSlice("pattern-types", nil, "only these pattern types")
	fs.String("from", "", "earliest start date (YYYY-MM-DD)")
	fs.String("to", "", "latest end date (YYYY-MM-DD)")
	fs.Bool("expand-values", false, "expand shapelet values into Day_N columns")
	fs.Int("max-expand", 0, "number of Day_N columns when expanding (overrides export.max_expand)")
	fs.Bool("site-summary", false, "also write the per-site summary CSV")
}

func init() {
	addExportFlags(exportCmd.Flags())
	rootCmd.AddCommand(exportCmd)
}
