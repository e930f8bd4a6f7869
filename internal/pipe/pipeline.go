// Package pipe runs conversions: open inputs, load the model, decode the
// trace, synthesize events and write them out. A run is strictly
// sequential; the parser calls the converter, which calls the writer.
package pipe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/uppaal2octopus/internal/model"
	"github.com/logflow/uppaal2octopus/pkg/converter"
	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
	"github.com/logflow/uppaal2octopus/pkg/parser"
	"github.com/logflow/uppaal2octopus/pkg/storage/s3"
	"github.com/logflow/uppaal2octopus/pkg/telemetry"
	"github.com/logflow/uppaal2octopus/pkg/uppaal"
	"github.com/logflow/uppaal2octopus/pkg/util"
	"github.com/logflow/uppaal2octopus/pkg/writer"
)

// ObjectStore opens and creates remote objects. *s3.Client implements it.
type ObjectStore interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
	Create(ctx context.Context, url, contentType string, metadata map[string]string) (io.WriteCloser, error)
}

// ProgressFunc wraps the trace reader, e.g. with a progress bar. size is
// -1 when unknown.
type ProgressFunc func(r io.Reader, size int64, description string) io.Reader

// Config holds pipeline configuration.
type Config struct {
	ParserConfig parser.Config
	WriterConfig writer.Config

	// TraceFormat selects the trace decoder.
	TraceFormat parser.Format

	// OutputFormat selects the event writer. When OutputAuto is set the
	// format is derived from the output path instead.
	OutputFormat writer.Format
	OutputAuto   bool

	// LocationIDFloor overrides converter.DefaultLocationIDFloor.
	LocationIDFloor uint32

	// Store serves s3:// paths. Nil rejects them.
	Store ObjectStore

	// Progress optionally wraps the trace reader.
	Progress ProgressFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ParserConfig: parser.DefaultConfig(),
		WriterConfig: writer.DefaultConfig(),
		TraceFormat:  parser.FormatXTR,
		OutputAuto:   true,
	}
}

// Pipeline orchestrates model loading, trace decoding and event writing.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// NewPipeline creates a new pipeline with the given configuration.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.ParserConfig.Logger = cfg.Logger
	return &Pipeline{cfg: cfg, logger: cfg.Logger}
}

// Job names the inputs and output of one conversion. Model may carry an
// already loaded model, in which case ModelPath is informational.
type Job struct {
	ModelPath  string
	TracePath  string
	OutputPath string
	Model      *uppaal.Model
}

// Result describes a finished conversion.
type Result struct {
	RunID      string
	ModelPath  string
	TracePath  string
	OutputPath string
	Format     writer.Format
	Stats      converter.Stats
	Duration   time.Duration
}

// LoadModel reads and parses the model at path.
func (p *Pipeline) LoadModel(ctx context.Context, path string) (*uppaal.Model, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "load_model",
		trace.WithAttributes(attribute.String("model.path", path)))

	m, err := p.loadModel(ctx, path)
	telemetry.EndSpan(span, err)
	return m, err
}

func (p *Pipeline) loadModel(ctx context.Context, path string) (*uppaal.Model, error) {
	r, cleanup, err := p.openInput(ctx, path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	m, err := uppaal.LoadModel(r)
	if err != nil {
		var cErr *cerrors.ConvertError
		if errors.As(err, &cErr) {
			cErr.WithContext("path", path)
		}
		return nil, err
	}

	p.logger.Debug("model loaded",
		slog.String("path", path),
		slog.Int("processes", len(m.Processes)),
		slog.Int("edges", len(m.Edges)),
		slog.Int("clocks", len(m.Clocks)),
		slog.Int("variables", len(m.Variables)))
	return m, nil
}

// Run executes one conversion job.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Result, error) {
	res := &Result{
		RunID:      uuid.New().String(),
		ModelPath:  job.ModelPath,
		TracePath:  job.TracePath,
		OutputPath: job.OutputPath,
		Format:     p.outputFormat(job.OutputPath),
	}
	logger := p.logger.With(slog.String("run_id", res.RunID))

	ctx, span := telemetry.Tracer().Start(ctx, "convert", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("trace.path", job.TracePath),
		attribute.String("trace.format", p.cfg.TraceFormat.String()),
		attribute.String("output.path", job.OutputPath),
		attribute.String("output.format", res.Format.String()),
	))

	start := time.Now()
	err := p.run(ctx, logger, job, res)
	res.Duration = time.Since(start)

	if err == nil {
		span.SetAttributes(
			attribute.Int64("events", res.Stats.Events),
			attribute.Int64("intervals", res.Stats.Intervals),
		)
	}
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	logger.Info("conversion finished",
		slog.Int64("events", res.Stats.Events),
		slog.Int64("suppressed", res.Stats.Suppressed),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, job Job, res *Result) error {
	m := job.Model
	if m == nil && p.cfg.TraceFormat.NeedsModel() {
		logger.Info("Model:", slog.String("path", job.ModelPath))
		var err error
		if m, err = p.LoadModel(ctx, job.ModelPath); err != nil {
			return err
		}
	}

	logger.Info("Trace:", slog.String("path", job.TracePath))
	tr, closeTrace, err := p.openInput(ctx, job.TracePath)
	if err != nil {
		return err
	}
	defer closeTrace()
	if p.cfg.Progress != nil {
		tr = p.cfg.Progress(tr, localSize(job.TracePath), "decoding "+job.TracePath)
	}

	wcfg := p.cfg.WriterConfig
	wcfg.Metadata = map[string]string{
		"run_id": res.RunID,
		"model":  job.ModelPath,
		"trace":  job.TracePath,
	}

	out, commit, abort, err := p.openOutput(ctx, job.OutputPath, res.Format, wcfg.Metadata)
	if err != nil {
		return err
	}

	w, err := writer.New(res.Format, out, wcfg)
	if err != nil {
		abort()
		return cerrors.Wrapf(err, cerrors.CodeWriteFailed, "failed to create writer %s", job.OutputPath)
	}

	stats, err := p.Convert(ctx, m, tr, w)
	if err != nil {
		w.Close()
		abort()
		return err
	}
	if err := w.Close(); err != nil {
		abort()
		return cerrors.Wrapf(err, cerrors.CodeWriteFailed, "failed to finish output %s", job.OutputPath)
	}
	if err := commit(); err != nil {
		return cerrors.Wrapf(err, cerrors.CodeWriteFailed, "failed to close output %s", job.OutputPath)
	}

	res.Stats = stats
	return nil
}

// Convert decodes trace, synthesizes events and passes them to w. It does
// not close w. m may be nil for formats that do not need a model.
func (p *Pipeline) Convert(ctx context.Context, m *uppaal.Model, trace io.Reader, w writer.Writer) (converter.Stats, error) {
	prs, err := parser.NewParser(p.cfg.TraceFormat, p.cfg.ParserConfig, m)
	if err != nil {
		return converter.Stats{}, err
	}

	conv := converter.New(func(ev model.Event) error {
		if err := w.WriteEvent(ctx, ev); err != nil {
			return cerrors.Wrap(err, cerrors.CodeWriteFailed, "failed to write event").
				WithContext("event_id", ev.EventID)
		}
		return nil
	}, converter.Options{
		LocationIDFloor: p.cfg.LocationIDFloor,
		Logger:          p.logger,
	})

	if err := prs.Parse(ctx, trace, conv.Add); err != nil {
		return conv.Stats(), err
	}
	if err := conv.Flush(); err != nil {
		return conv.Stats(), err
	}
	if err := w.Flush(); err != nil {
		return conv.Stats(), cerrors.Wrap(err, cerrors.CodeWriteFailed, "failed to flush output")
	}
	return conv.Stats(), nil
}

// RunAll converts several traces against one model, at most limit at a
// time. The model is loaded once and shared read-only. A failed trace does
// not stop the others: results of failed jobs are nil and their errors are
// returned together, in job order, as a *cerrors.MultiError.
func (p *Pipeline) RunAll(ctx context.Context, modelPath string, jobs []Job, limit int) ([]*Result, error) {
	var m *uppaal.Model
	if p.cfg.TraceFormat.NeedsModel() {
		var err error
		p.logger.Info("Model:", slog.String("path", modelPath))
		if m, err = p.LoadModel(ctx, modelPath); err != nil {
			return nil, err
		}
	}

	results := make([]*Result, len(jobs))
	failures := make([]error, len(jobs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, job := range jobs {
		i, job := i, job
		job.ModelPath = modelPath
		job.Model = m
		g.Go(func() error {
			res, err := p.Run(ctx, job)
			if err != nil {
				failures[i] = cerrors.Wrapf(err, cerrors.GetCode(err), "trace %s", job.TracePath)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	// Jobs interrupted by cancellation are not reported one by one.
	var errs cerrors.MultiError
	for _, err := range failures {
		if cerrors.IsFatal(err) {
			errs.Add(err)
		}
	}
	if !errs.HasErrors() && ctx.Err() != nil {
		return results, cerrors.ContextCanceled("batch")
	}
	return results, errs.Combined()
}

func (p *Pipeline) outputFormat(path string) writer.Format {
	if p.cfg.OutputAuto {
		return writer.FormatFromPath(path)
	}
	return p.cfg.OutputFormat
}

// openInput opens a local file, stdin or an s3:// object, decompressing
// .gz transparently.
func (p *Pipeline) openInput(ctx context.Context, path string) (io.Reader, func() error, error) {
	if s3.IsURL(path) {
		if p.cfg.Store == nil {
			return nil, nil, cerrors.New(cerrors.CodeIO, "no object store configured").WithContext("path", path)
		}
		rc, err := p.cfg.Store.Open(ctx, path)
		if err != nil {
			return nil, nil, cerrors.Wrapf(err, cerrors.CodeIO, "failed to open input %s", path)
		}
		r, cleanup, err := util.Decompress(rc, path)
		if err != nil {
			return nil, nil, cerrors.Wrapf(err, cerrors.CodeIO, "failed to open input %s", path)
		}
		return r, cleanup, nil
	}

	r, cleanup, err := util.OpenFile(path)
	if err != nil {
		return nil, nil, cerrors.Wrapf(err, cerrors.CodeIO, "failed to open input %s", path)
	}
	return r, cleanup, nil
}

// openOutput creates the output. commit finishes it; abort releases it
// after a failure without publishing a remote object.
func (p *Pipeline) openOutput(ctx context.Context, path string, format writer.Format, md map[string]string) (io.Writer, func() error, func(), error) {
	if s3.IsURL(path) {
		if p.cfg.Store == nil {
			return nil, nil, nil, cerrors.New(cerrors.CodeIO, "no object store configured").WithContext("path", path)
		}
		wc, err := p.cfg.Store.Create(ctx, path, contentType(format), md)
		if err != nil {
			return nil, nil, nil, cerrors.Wrapf(err, cerrors.CodeIO, "failed to create output %s", path)
		}
		w, commit, err := util.Compress(wc, path)
		if err != nil {
			return nil, nil, nil, cerrors.Wrapf(err, cerrors.CodeIO, "failed to create output %s", path)
		}
		return w, commit, func() {}, nil
	}

	w, commit, err := util.CreateFile(path)
	if err != nil {
		return nil, nil, nil, cerrors.Wrapf(err, cerrors.CodeIO, "failed to create output %s", path)
	}
	return w, commit, func() { commit() }, nil
}

func contentType(f writer.Format) string {
	switch f {
	case writer.FormatParquet:
		return "application/vnd.apache.parquet"
	case writer.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/tab-separated-values"
	}
}

func localSize(path string) int64 {
	if path == util.Stdio || s3.IsURL(path) {
		return -1
	}
	fi, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return fi.Size()
}
