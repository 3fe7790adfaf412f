// Package pipeline drives one ingest run: discover input files, then per file
// parse the name, load the container, normalize and validate its shapelets and
// write the valid ones, then close out the audit row.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shapelet-cli/internal/loader"
	"github.com/sells-group/shapelet-cli/internal/metrics"
	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/monitoring"
	"github.com/sells-group/shapelet-cli/internal/naming"
	"github.com/sells-group/shapelet-cli/internal/normalize"
	"github.com/sells-group/shapelet-cli/internal/store"
	"github.com/sells-group/shapelet-cli/internal/validate"
)

// ErrInputDir is the only fatal pre-flight failure: the input root is missing
// or not a directory.
var ErrInputDir = eris.New("pipeline: input directory does not exist")

// Options configures a Pipeline.
type Options struct {
	BatchSize    int
	Extensions   []string
	NonRecursive bool
	MetricsFile  string

	Metrics *metrics.Ingest     // nil disables metrics
	Monitor *monitoring.Checker // nil disables post-run alerting
	Clock   clockwork.Clock
	Out     io.Writer // human-readable reports; nil discards
}

// Request is one ingest invocation.
type Request struct {
	InputDir string
	Limit    int
	DryRun   bool
	Verbose  bool
}

// Invalid is one rejected shapelet with its reasons.
type Invalid struct {
	ShapeletID int64    `json:"shapelet_id"`
	Messages   []string `json:"messages"`
}

// FileReport summarizes one input file.
type FileReport struct {
	Path       string          `json:"path"`
	File       naming.FileMeta `json:"file"`
	Key        naming.KeyMeta  `json:"key"`
	Valid      int             `json:"valid"`
	Invalid    []Invalid       `json:"invalid,omitempty"`
	Inserted   int             `json:"inserted"`
	SkipReason string          `json:"skip_reason,omitempty"`
	Err        string          `json:"error,omitempty"`
	FirstDate  time.Time       `json:"first_date"`
	LastDate   time.Time       `json:"last_date"`
}

// Name returns the base file name.
func (r FileReport) Name() string {
	return filepath.Base(r.Path)
}

// Skipped reports whether the whole file was skipped.
func (r FileReport) Skipped() bool {
	return r.SkipReason != ""
}

// Errors returns the number of errors this file contributed to the run.
func (r FileReport) Errors() int {
	if r.Skipped() {
		return 1
	}
	return len(r.Invalid)
}

// Summary is the outcome of a run.
type Summary struct {
	RunID    int64              `json:"run_id,omitempty"`
	InputDir string             `json:"input_dir"`
	Files    int                `json:"files"`
	Valid    int                `json:"valid"`
	Errors   int                `json:"errors"`
	Inserted int                `json:"inserted"`
	Status   model.RunStatus    `json:"status,omitempty"`
	Store    string             `json:"store,omitempty"`
	DryRun   bool               `json:"dry_run"`
	Duration time.Duration      `json:"duration"`
	Reports  []FileReport       `json:"files_detail,omitempty"`
	Alerts   []monitoring.Alert `json:"alerts,omitempty"`
}

// Pipeline orchestrates the ingest of a directory of shapelet containers.
type Pipeline struct {
	store store.Store
	opts  Options
	log   *zap.Logger
}

// New creates a Pipeline. st may be nil when only dry runs are requested.
func New(st store.Store, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = store.DefaultBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Pipeline{
		store: st,
		opts:  opts,
		log:   zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run executes one pass over req.InputDir. File and record problems are
// counted and reported; only an unusable input directory or a store error
// returns an error. After a store error the audit row is closed as failed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Summary, error) {
	start := p.opts.Clock.Now()
	sum := &Summary{InputDir: req.InputDir, DryRun: req.DryRun}

	if st, err := os.Stat(req.InputDir); err != nil || !st.IsDir() {
		return nil, eris.Wrapf(ErrInputDir, "%s", req.InputDir)
	}
	if !req.DryRun && p.store == nil {
		return nil, eris.New("pipeline: store is required unless dry run")
	}

	files, err := loader.Discover(req.InputDir, loader.DiscoverOptions{
		Extensions:   p.opts.Extensions,
		NonRecursive: p.opts.NonRecursive,
	})
	if err != nil {
		return nil, eris.Wrapf(ErrInputDir, "%s: %v", req.InputDir, err)
	}
	if req.Limit > 0 && len(files) > req.Limit {
		files = files[:req.Limit]
	}
	if len(files) == 0 {
		writeNoFiles(p.opts.Out, req.InputDir)
		return sum, nil
	}
	writeFound(p.opts.Out, len(files), req.InputDir)
	p.log.Info("pipeline: discovered files", zap.String("input_dir", req.InputDir), zap.Int("files", len(files)))

	if !req.DryRun {
		sum.Store = p.store.Location()
		sum.RunID, err = p.store.StartRun(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: start run")
		}
		if req.Verbose {
			writeRunStarted(p.opts.Out, sum.Store, sum.RunID)
		}
	}
	sum.Files = len(files)

	for _, path := range files {
		rep, valid := p.processFile(path)
		sum.Valid += rep.Valid
		sum.Errors += rep.Errors()

		switch {
		case rep.Skipped():
			writeSkip(p.opts.Out, rep)
		case req.Verbose || req.DryRun:
			writeFileReport(p.opts.Out, rep)
		}

		if !req.DryRun && len(valid) > 0 {
			n, werr := p.store.InsertShapelets(ctx, valid, p.opts.BatchSize)
			rep.Inserted = n
			sum.Inserted += n
			p.countRows(n)
			if werr != nil {
				sum.Reports = append(sum.Reports, rep)
				return sum, p.abort(ctx, sum, start, eris.Wrapf(werr, "pipeline: write %s", rep.Name()))
			}
			if req.Verbose {
				writeInserted(p.opts.Out, n)
			}
		}
		sum.Reports = append(sum.Reports, rep)
	}

	if err := p.finalize(ctx, sum, start); err != nil {
		return sum, err
	}
	writeSummary(p.opts.Out, sum)
	return sum, nil
}

// processFile runs parse, load, normalize and validate for one file.
func (p *Pipeline) processFile(path string) (FileReport, []model.Record) {
	rep := FileReport{Path: path}
	log := p.log.With(zap.String("file", filepath.Base(path)))
	if p.opts.Metrics != nil {
		p.opts.Metrics.FilesProcessed.Inc()
	}

	meta, nameErr := naming.ParseFilename(path)
	isZip := strings.EqualFold(filepath.Ext(path), loader.ExtZip)
	if nameErr != nil && !isZip {
		return p.skip(rep, metrics.ReasonPattern, nameErr), nil
	}

	c, err := loader.Load(path)
	if err != nil {
		return p.skip(rep, metrics.ReasonLoad, err), nil
	}
	if nameErr != nil {
		// archive names are free-form; fall back to the member's name
		if meta, err = naming.ParseFilename(c.Member); err != nil {
			return p.skip(rep, metrics.ReasonPattern, nameErr), nil
		}
	}
	rep.File = meta

	source := filepath.Base(path)
	seq, err := normalize.Records(c.Data, &source)
	if err != nil {
		return p.skip(rep, metrics.ReasonMalformed, err), nil
	}

	if key, err := normalize.DatasetKey(c.Data); err == nil {
		km, kerr := naming.ParseDatasetKey(key)
		switch {
		case kerr != nil:
			km = naming.RawKeyMeta(key)
			log.Debug("pipeline: dataset key fallback", zap.String("key", key))
		case !naming.IsKnownState(km.State):
			log.Warn("pipeline: dataset key state is not a known state", zap.String("state", km.State), zap.String("key", key))
		}
		rep.Key = km
	}

	var valid []model.Record
	for rec, rerr := range seq {
		if rerr != nil {
			rep.Invalid = append(rep.Invalid, Invalid{ShapeletID: rec.ShapeletID, Messages: []string{rerr.Error()}})
			continue
		}
		res := validate.Validate(rec)
		if !res.Valid {
			rep.Invalid = append(rep.Invalid, Invalid{ShapeletID: rec.ShapeletID, Messages: res.Violations})
			continue
		}
		valid = append(valid, rec)
		if rep.FirstDate.IsZero() || rec.StartDate.Before(rep.FirstDate) {
			rep.FirstDate = rec.StartDate
		}
		if rec.StartDate.After(rep.LastDate) {
			rep.LastDate = rec.StartDate
		}
	}
	rep.Valid = len(valid)

	if m := p.opts.Metrics; m != nil {
		m.RecordsValid.Add(float64(rep.Valid))
		m.RecordsInvalid.Add(float64(len(rep.Invalid)))
	}
	log.Debug("pipeline: file processed", zap.Int("valid", rep.Valid), zap.Int("invalid", len(rep.Invalid)))
	return rep, valid
}

func (p *Pipeline) skip(rep FileReport, reason string, err error) FileReport {
	rep.SkipReason = reason
	rep.Err = err.Error()
	if p.opts.Metrics != nil {
		p.opts.Metrics.FileError(reason)
	}
	p.log.Warn("pipeline: skipping file",
		zap.String("file", rep.Name()),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return rep
}

func (p *Pipeline) countRows(n int) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.RowsWritten.Add(float64(n))
	}
}

func (p *Pipeline) finalize(ctx context.Context, sum *Summary, start time.Time) error {
	sum.Duration = p.opts.Clock.Since(start)
	if sum.DryRun {
		p.flushMetrics(sum, true)
		return nil
	}

	sum.Status = model.StatusFor(sum.Errors)
	if err := p.store.FinishRun(ctx, sum.RunID, p.runSummary(sum)); err != nil {
		return eris.Wrap(err, "pipeline: finish run")
	}
	p.log.Info("pipeline: run finished",
		zap.Int64("run_id", sum.RunID),
		zap.String("status", string(sum.Status)),
		zap.Int("files", sum.Files),
		zap.Int("valid", sum.Valid),
		zap.Int("errors", sum.Errors),
		zap.Duration("duration", sum.Duration),
	)
	p.flushMetrics(sum, true)
	if p.opts.Monitor != nil {
		sum.Alerts = p.opts.Monitor.Check(ctx)
	}
	return nil
}

// abort closes the audit row as failed and returns cause.
func (p *Pipeline) abort(ctx context.Context, sum *Summary, start time.Time, cause error) error {
	sum.Duration = p.opts.Clock.Since(start)
	sum.Status = model.RunStatusFailed
	if err := p.store.FinishRun(ctx, sum.RunID, p.runSummary(sum)); err != nil {
		p.log.Error("pipeline: failed to close run after store error", zap.Int64("run_id", sum.RunID), zap.Error(err))
	}
	p.log.Error("pipeline: run failed", zap.Int64("run_id", sum.RunID), zap.Error(cause))
	p.flushMetrics(sum, false)
	return cause
}

func (p *Pipeline) runSummary(sum *Summary) model.RunSummary {
	return model.RunSummary{
		Status:     sum.Status,
		TotalFiles: sum.Files,
		TotalRows:  sum.Valid,
		ErrorCount: sum.Errors,
	}
}

func (p *Pipeline) flushMetrics(sum *Summary, ok bool) {
	m := p.opts.Metrics
	if m == nil {
		return
	}
	m.Finish(sum.Duration, p.opts.Clock.Now(), ok)
	if p.opts.MetricsFile == "" {
		return
	}
	if err := m.WriteTextfile(p.opts.MetricsFile); err != nil {
		p.log.Warn("pipeline: failed to write metrics", zap.Error(err))
	}
}
