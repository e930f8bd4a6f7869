// uppaal2octopus converts UPPAAL traces into Octopus event logs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logflow/uppaal2octopus/internal/pipe"
	"github.com/logflow/uppaal2octopus/pkg/config"
	"github.com/logflow/uppaal2octopus/pkg/parser"
	"github.com/logflow/uppaal2octopus/pkg/storage/s3"
	"github.com/logflow/uppaal2octopus/pkg/telemetry"
	"github.com/logflow/uppaal2octopus/pkg/tui"
	"github.com/logflow/uppaal2octopus/pkg/writer"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configFile      string
	verbose         bool
	quiet           bool
	showProgress    bool
	traceFormat     string
	originClock     string
	activeClock     string
	outputFile      string
	outputFormat    string
	compressionFlag string
	batchSize       int
)

// Loaded in PersistentPreRunE.
var (
	cfgManager        *config.Manager
	telemetryShutdown telemetry.ShutdownFunc
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		tui.PrintError(os.Stderr, err, verbose)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "uppaal2octopus [flags] <model> <trace>",
	Short: "Convert UPPAAL traces to Octopus event logs",
	Long: `uppaal2octopus converts a UPPAAL symbolic trace into the event format
read by the Octopus visualizer: one start and one end event for every
interval a process spends in a location.

XTR traces are decoded against the model in intermediate format; human
readable traces (--format hr) need no model.

Examples:
  uppaal2octopus train-gate.if train-gate.xtr > events.tsv
  uppaal2octopus --format hr trace.txt -o events.tsv
  uppaal2octopus model.if trace.xtr -o s3://bucket/run/events.parquet`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	Args:              cobra.RangeArgs(1, 2),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown != nil {
			return telemetryShutdown(context.Background())
		}
		return nil
	},
	RunE: runConvert,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: standard locations)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Only log errors and skip the run report")
	pf.StringVarP(&traceFormat, "format", "f", "", "Trace format: xtr, hr")
	pf.StringVar(&originClock, "origin-clock", "", "Reference clock of XTR zones")
	pf.StringVar(&activeClock, "clock", "", "Clock whose value timestamps events")
	pf.StringVar(&outputFormat, "output-format", "", "Output format: tsv, parquet, xlsx (default: by extension)")
	pf.StringVarP(&compressionFlag, "compression", "c", "", "Parquet compression: snappy, zstd, gzip, lz4, none")
	pf.IntVar(&batchSize, "batch-size", 0, "Events per Parquet record batch")
	pf.BoolVar(&showProgress, "progress", false, "Show a progress bar while decoding")

	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "-", "Output path, '-' for stdout")
}

// setup loads configuration, applies flag overrides and installs the
// logger and tracer provider.
func setup(cmd *cobra.Command, args []string) error {
	cfgManager = config.NewManager()
	if err := cfgManager.Load(configFile); err != nil {
		return err
	}
	cfg := cfgManager.Get()

	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("format", &cfg.Trace.Format, traceFormat)
	override("origin-clock", &cfg.Trace.OriginClock, originClock)
	override("clock", &cfg.Trace.ActiveClock, activeClock)
	override("output-format", &cfg.Output.Format, outputFormat)
	override("compression", &cfg.Output.Compression, compressionFlag)
	if flags.Changed("batch-size") {
		cfg.Output.BatchSize = batchSize
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if quiet {
		cfg.Log.Level = "error"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	})))
	if paths := cfgManager.GetPaths(); len(paths) > 0 {
		slog.Debug("configuration loaded", slog.Any("paths", paths))
	}

	tcfg := telemetry.DefaultConfig(cfg.Telemetry.ServiceName)
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.ServiceVersion = version
	tcfg.SamplingRatio = cfg.Telemetry.SamplingRatio

	shutdown, err := telemetry.Setup(cmd.Context(), tcfg)
	if err != nil {
		return err
	}
	telemetryShutdown = shutdown
	return nil
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newPipeline builds a pipeline from the loaded configuration. An S3
// client is created only when one of paths is an s3:// URL.
func newPipeline(ctx context.Context, paths ...string) (*pipe.Pipeline, error) {
	cfg := cfgManager.Get()

	pcfg := pipe.DefaultConfig()
	pcfg.TraceFormat = parser.ParseFormat(cfg.Trace.Format)
	if pcfg.TraceFormat == parser.FormatUnknown {
		return nil, fmt.Errorf("%w: %s", parser.ErrUnsupportedFormat, cfg.Trace.Format)
	}
	pcfg.ParserConfig.OriginClock = cfg.Trace.OriginClock
	pcfg.ParserConfig.ActiveClock = cfg.Trace.ActiveClock

	if cfg.Output.Format != "" {
		f, err := writer.ParseFormat(cfg.Output.Format)
		if err != nil {
			return nil, err
		}
		pcfg.OutputFormat = f
		pcfg.OutputAuto = false
	}
	pcfg.WriterConfig.Compression = writer.ParseCompression(cfg.Output.Compression)
	pcfg.WriterConfig.BatchSize = cfg.Output.BatchSize

	if showProgress && !quiet {
		pcfg.Progress = tui.ProgressReader
	}

	for _, p := range paths {
		if !s3.IsURL(p) {
			continue
		}
		scfg := s3.DefaultConfig(cfg.Storage.S3.Region)
		scfg.Endpoint = cfg.Storage.S3.Endpoint
		scfg.UsePathStyle = cfg.Storage.S3.UsePathStyle
		client, err := s3.NewClient(ctx, scfg)
		if err != nil {
			return nil, err
		}
		pcfg.Store = client
		break
	}

	return pipe.NewPipeline(pcfg), nil
}

// report prints a run summary on stderr unless --quiet is set.
func report(res *pipe.Result) {
	if quiet {
		return
	}
	tui.PrintReport(os.Stderr, tui.RunReport{
		RunID:      res.RunID,
		Model:      res.ModelPath,
		Trace:      res.TracePath,
		Output:     res.OutputPath,
		Format:     res.Format.String(),
		Events:     res.Stats.Events,
		Intervals:  res.Stats.Intervals,
		Suppressed: res.Stats.Suppressed,
		Flushed:    res.Stats.Flushed,
		Locations:  res.Stats.Locations,
		LastClock:  res.Stats.LastClock,
		Duration:   res.Duration,
	})
}
