package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/shapelet-cli/internal/config"
	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/store"
)

// Format is an export output kind.
type Format string

// Supported formats.
const (
	FormatCSV         Format = "csv"
	FormatSiteSummary Format = "summary"
	FormatXLSX        Format = "xlsx"
	FormatShapefile   Format = "shp"
	FormatGeoJSON     Format = "geojson"
)

// AllFormats lists every supported format in output order.
var AllFormats = []Format{FormatCSV, FormatSiteSummary, FormatXLSX, FormatShapefile, FormatGeoJSON}

// ErrNoRows is returned when the filter matches no shapelets.
var ErrNoRows = eris.New("export: no shapelets match the filter")

// ParseFormats validates format names. Empty input yields the CSV default.
func ParseFormats(names []string) ([]Format, error) {
	var out []Format
	for _, name := range names {
		f := Format(strings.ToLower(strings.TrimSpace(name)))
		if f == "" {
			continue
		}
		if f == "all" {
			return slices.Clone(AllFormats), nil
		}
		if !slices.Contains(AllFormats, f) {
			return nil, eris.Errorf("export: unknown format %q", name)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		out = []Format{FormatCSV}
	}
	return out, nil
}

// Request selects what to export.
type Request struct {
	Filter       store.ExportFilter
	Formats      []Format
	ExpandValues bool
	MaxExpand    int // 0 uses the configured default
}

// File is one written output file.
type File struct {
	Format Format `yaml:"format"`
	Path   string `yaml:"path"`
	Rows   int    `yaml:"rows"`
	Bytes  int64  `yaml:"bytes"`
}

// Manifest describes one export and is written next to its files.
type Manifest struct {
	ExportID     string             `yaml:"export_id"`
	CreatedAt    time.Time          `yaml:"created_at"`
	Store        string             `yaml:"store"`
	Filter       store.ExportFilter `yaml:"filter"`
	MatchedRows  int64              `yaml:"matched_rows"`
	ExpandValues bool               `yaml:"expand_values"`
	MaxExpand    int                `yaml:"max_expand,omitempty"`
	Files        []File             `yaml:"files"`
	Path         string             `yaml:"-"`
}

// Exporter writes filtered store contents to an output directory.
type Exporter struct {
	store store.Store
	cfg   config.ExportConfig
	clock clockwork.Clock
	log   *zap.Logger
}

// New creates an Exporter. A nil clock uses real time.
func New(st store.Store, cfg config.ExportConfig, clock clockwork.Clock) *Exporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Exporter{
		store: st,
		cfg:   cfg,
		clock: clock,
		log:   zap.L().With(zap.String("component", "export")),
	}
}

// Run writes each requested format concurrently, then the manifest. Files
// already written are removed if any format fails.
func (e *Exporter) Run(ctx context.Context, req Request) (*Manifest, error) {
	formats := req.Formats
	if len(formats) == 0 {
		formats = []Format{FormatCSV}
	}
	opts := CSVOptions{ExpandValues: req.ExpandValues, MaxExpand: req.MaxExpand}
	if opts.MaxExpand <= 0 {
		opts.MaxExpand = e.cfg.MaxExpand
	}

	matched, err := e.store.CountShapelets(ctx, req.Filter)
	if err != nil {
		return nil, eris.Wrap(err, "export: count shapelets")
	}
	if matched == 0 {
		return nil, ErrNoRows
	}

	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create output dir")
	}

	var sums []model.SiteSummary
	if slices.ContainsFunc(formats, needsSummaries) {
		if sums, err = e.store.SiteSummaries(ctx, req.Filter); err != nil {
			return nil, eris.Wrap(err, "export: site summaries")
		}
	}

	now := e.clock.Now()
	name := func(prefix, ext string) string {
		return filepath.Join(e.cfg.OutputDir, prefix+"_"+Tag(req.Filter)+"_"+now.Format("20060102_150405")+ext)
	}

	files := make([]File, len(formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range formats {
		g.Go(func() error {
			var (
				out File
				err error
			)
			switch f {
			case FormatCSV:
				out, err = e.writeShapeletsCSV(gctx, name("shapelets", ".csv"), req.Filter, opts)
			case FormatSiteSummary:
				out, err = writeFile(name("site_summary", ".csv"), func(w io.Writer) (int, error) {
					return WriteSiteSummaryCSV(w, sums)
				})
			case FormatXLSX:
				out, err = e.writeXLSX(gctx, name("shapelets", ".xlsx"), req.Filter, sums, opts)
			case FormatShapefile:
				path := name("sites", ".shp")
				out.Path = path
				var n int
				if n, err = WriteSitesShapefile(path, sums); err == nil {
					out, err = stat(path, n)
				}
			case FormatGeoJSON:
				out, err = writeFile(name("sites", ".geojson"), func(w io.Writer) (int, error) {
					return WriteSitesGeoJSON(w, sums)
				})
			default:
				err = eris.Errorf("export: unknown format %q", f)
			}
			out.Format = f
			files[i] = out
			if err != nil {
				return eris.Wrapf(err, "export: %s", f)
			}
			e.log.Info("export: file written",
				zap.String("format", string(f)),
				zap.String("path", out.Path),
				zap.Int("rows", out.Rows),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		removeOutputs(files)
		return nil, err
	}

	m := &Manifest{
		ExportID:     uuid.NewString(),
		CreatedAt:    now.UTC(),
		Store:        e.store.Location(),
		Filter:       req.Filter,
		MatchedRows:  matched,
		ExpandValues: opts.ExpandValues,
		Files:        files,
		Path:         name("manifest", ".yaml"),
	}
	if opts.ExpandValues {
		m.MaxExpand = opts.maxExpand()
	}
	if err := writeManifest(m); err != nil {
		return nil, err
	}
	return m, nil
}

func needsSummaries(f Format) bool {
	return f != FormatCSV
}

func (e *Exporter) writeShapeletsCSV(ctx context.Context, path string, filter store.ExportFilter, opts CSVOptions) (File, error) {
	return writeFile(path, func(w io.Writer) (int, error) {
		sw, err := NewShapeletWriter(w, opts)
		if err != nil {
			return 0, err
		}
		if err := e.store.ForEachShapelet(ctx, filter, sw.Write); err != nil {
			return sw.Rows(), err
		}
		return sw.Rows(), sw.Flush()
	})
}

func (e *Exporter) writeXLSX(ctx context.Context, path string, filter store.ExportFilter, sums []model.SiteSummary, opts CSVOptions) (File, error) {
	wb, err := NewWorkbook(opts)
	if err != nil {
		return File{}, err
	}
	if err := e.store.ForEachShapelet(ctx, filter, wb.AddShapelet); err != nil {
		return File{}, err
	}
	wb.AddSites(sums)
	if err := wb.Save(path); err != nil {
		return File{Path: path}, err
	}
	return stat(path, wb.Rows())
}

// writeFile creates path, hands it to fn and reports the result.
func writeFile(path string, fn func(io.Writer) (int, error)) (File, error) {
	f, err := os.Create(path)
	if err != nil {
		return File{}, eris.Wrapf(err, "export: create %s", path)
	}
	n, err := fn(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "export: close %s", path)
	}
	if err != nil {
		return File{Path: path}, err
	}
	return stat(path, n)
}

func stat(path string, rows int) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{Path: path}, eris.Wrapf(err, "export: stat %s", path)
	}
	return File{Path: path, Rows: rows, Bytes: info.Size()}, nil
}

func writeManifest(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "export: marshal manifest")
	}
	if err := os.WriteFile(m.Path, data, 0o644); err != nil {
		return eris.Wrap(err, "export: write manifest")
	}
	return nil
}

// ReadManifest loads a manifest written by Run.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: read manifest")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "export: parse manifest")
	}
	m.Path = path
	return &m, nil
}

func removeOutputs(files []File) {
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		if f.Format == FormatShapefile {
			base := strings.TrimSuffix(f.Path, ".shp")
			for _, ext := range []string{".shx", ".dbf", ".prj"} {
				_ = os.Remove(base + ext)
			}
		}
		_ = os.Remove(f.Path)
	}
}

// Tag summarizes a filter for use in file names, e.g. "y2010_2011_p42401".
func Tag(f store.ExportFilter) string {
	var parts []string
	if len(f.Years) > 0 {
		ys := make([]string, len(f.Years))
		for i, y := range f.Years {
			ys[i] = strconv.Itoa(y)
		}
		parts = append(parts, "y"+strings.Join(ys, "_"))
	}
	if len(f.Pollutants) > 0 {
		parts = append(parts, "p"+strings.Join(f.Pollutants, "_"))
	}
	if len(f.Sites) > 0 {
		parts = append(parts, "s"+strconv.Itoa(len(f.Sites))+"sites")
	}
	if len(f.PatternTypes) > 0 {
		parts = append(parts, "t"+strconv.Itoa(len(f.PatternTypes))+"types")
	}
	if f.From != "" || f.To != "" {
		parts = append(parts, "datefilter")
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, "_")
}
