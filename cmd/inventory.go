package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/store"
)

// inventory is what the store holds, for choosing export filters.
type inventory struct {
	Shapelets    int64             `json:"shapelets"`
	Years        []int             `json:"years"`
	Pollutants   []model.Pollutant `json:"pollutants"`
	Sites        []model.Site      `json:"sites"`
	PatternTypes []string          `json:"pattern_types"`
	Earliest     string            `json:"earliest,omitempty"`
	Latest       string            `json:"latest,omitempty"`
	Store        string            `json:"store"`
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Show the years, pollutants, sites and pattern types in the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("query"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		inv, err := loadInventory(ctx, st)
		if err != nil {
			return eris.Wrap(err, "inventory")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(inv)
		}
		formatInventory(os.Stdout, inv)
		return nil
	},
}

// loadInventory runs the independent inventory queries concurrently.
func loadInventory(ctx context.Context, st store.Store) (*inventory, error) {
	inv := &inventory{Store: st.Location()}
	var dates store.DateRange

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		inv.Shapelets, err = st.CountShapelets(gctx, store.ExportFilter{})
		return err
	})
	g.Go(func() (err error) {
		inv.Years, err = st.Years(gctx)
		return err
	})
	g.Go(func() (err error) {
		inv.Pollutants, err = st.Pollutants(gctx)
		return err
	})
	g.Go(func() (err error) {
		inv.Sites, err = st.Sites(gctx)
		return err
	})
	g.Go(func() (err error) {
		inv.PatternTypes, err = st.PatternTypes(gctx)
		return err
	})
	g.Go(func() (err error) {
		dates, err = st.DateRange(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if dates.Min != nil {
		inv.Earliest = dates.Min.Format(model.DateLayout)
	}
	if dates.Max != nil {
		inv.Latest = dates.Max.Format(model.DateLayout)
	}
	return inv, nil
}

// formatInventory renders the inventory as tables.
func formatInventory(out io.Writer, inv *inventory) {
	summary := newTable(out)
	summary.AppendRows([]table.Row{
		{"Store", inv.Store},
		{"Shapelets", humanize.Comma(inv.Shapelets)},
		{"Date range", dateRange(inv.Earliest, inv.Latest)},
		{"Years", joinInts(inv.Years)},
		{"Pattern types", strings.Join(inv.PatternTypes, ", ")},
	})
	summary.Render()

	if len(inv.Pollutants) > 0 {
		_, _ = fmt.Fprintln(out)
		t := newTable(out)
		t.AppendHeader(table.Row{"parameter_code", "name", "unit"})
		for _, p := range inv.Pollutants {
			t.AppendRow(table.Row{p.ParameterCode, p.DisplayName(), p.Unit})
		}
		t.Render()
	}

	if len(inv.Sites) > 0 {
		_, _ = fmt.Fprintln(out)
		t := newTable(out)
		t.AppendHeader(table.Row{"site_key", "state", "county", "site_num", "latitude", "longitude"})
		for _, s := range inv.Sites {
			t.AppendRow(table.Row{s.SiteKey, s.State, s.County, s.SiteNum, optCoord(s.Latitude), optCoord(s.Longitude)})
		}
		t.Render()
	}
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	// Keep header values as written.
	t.Style().Format.Header = text.FormatDefault
	return t
}

func dateRange(earliest, latest string) string {
	if earliest == "" && latest == "" {
		return "-"
	}
	return earliest + " -> " + latest
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func optCoord(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 6, 64)
}

func init() {
	inventoryCmd.Flags().Bool("json", false, "print the inventory as JSON")
	rootCmd.AddCommand(inventoryCmd)
}
