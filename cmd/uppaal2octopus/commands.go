package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/uppaal2octopus/internal/pipe"
	"github.com/logflow/uppaal2octopus/pkg/parser"
	"github.com/logflow/uppaal2octopus/pkg/tui"
	"github.com/logflow/uppaal2octopus/pkg/uppaal"
	"github.com/logflow/uppaal2octopus/pkg/util"
	"github.com/logflow/uppaal2octopus/pkg/watch"
)

// Additional CLI flags
var (
	// Batch flags
	parallelWorkers int
	batchOutputDir  string
	batchExt        string

	// Watch flags
	watchOutput   string
	watchDebounce time.Duration
)

var convertCmd = &cobra.Command{
	Use:   "convert <model> <trace>",
	Short: "Convert one trace",
	Long: `Convert one trace into Octopus events.

Inputs and outputs may be local paths (optionally .gz), '-' for stdio, or
s3://bucket/key URLs.

Examples:
  uppaal2octopus convert model.if trace.xtr -o events.tsv
  uppaal2octopus convert model.if trace.xtr.gz -o events.parquet -c zstd
  uppaal2octopus convert --format hr trace.txt -o events.xlsx`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConvert,
}

var batchCmd = &cobra.Command{
	Use:   "batch <model> <trace>...",
	Short: "Convert many traces of one model in parallel",
	Long: `Convert several traces against one model. The model is loaded once;
traces are converted concurrently. A failed trace does not stop the
others; every failure is listed at the end.

Each output is written to --out-dir, named after its trace with the
extension given by --ext.

Examples:
  uppaal2octopus batch model.if runs/*.xtr --out-dir events/
  uppaal2octopus batch model.if runs/*.xtr --out-dir events/ --ext .parquet -j 8`,
	Args: cobra.MinimumNArgs(2),
	RunE: runBatch,
}

var watchCmd = &cobra.Command{
	Use:   "watch <model> <trace>",
	Short: "Re-convert a trace whenever it or the model changes",
	Long: `Watch the model and the trace and re-run the conversion on every change.
Runs are serialized; a failed run is logged and watching continues.

Examples:
  uppaal2octopus watch model.if trace.xtr -o events.tsv`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWatch,
}

var modelCmd = &cobra.Command{
	Use:   "model <model>",
	Short: "Summarize a model in intermediate format",
	Args:  cobra.ExactArgs(1),
	RunE:  runModel,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "-", "Output path, '-' for stdout")

	batchCmd.Flags().IntVarP(&parallelWorkers, "jobs", "j", 4, "Number of concurrent conversions")
	batchCmd.Flags().StringVar(&batchOutputDir, "out-dir", ".", "Output directory")
	batchCmd.Flags().StringVar(&batchExt, "ext", ".tsv", "Output extension, selects the format")

	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "Output path (required)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before re-running")
	watchCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(configCmd)
}

// modelAndTrace splits positional arguments. A single argument is a trace
// and is only accepted for formats that need no model.
func modelAndTrace(args []string) (string, string, error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	if parser.ParseFormat(cfgManager.Get().Trace.Format).NeedsModel() {
		return "", "", errors.New("please specify both a model and a trace, see --help")
	}
	return "", args[0], nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	modelPath, tracePath, err := modelAndTrace(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := newPipeline(ctx, modelPath, tracePath, outputFile)
	if err != nil {
		return err
	}

	res, err := p.Run(ctx, pipe.Job{
		ModelPath:  modelPath,
		TracePath:  tracePath,
		OutputPath: outputFile,
	})
	if err != nil {
		return err
	}
	report(res)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	modelPath := args[0]

	var traces []string
	for _, pattern := range args[1:] {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			// Literal path or remote URL
			traces = append(traces, pattern)
			continue
		}
		traces = append(traces, matches...)
	}

	if err := os.MkdirAll(batchOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	jobs := make([]pipe.Job, len(traces))
	paths := []string{modelPath}
	for i, t := range traces {
		jobs[i] = pipe.Job{TracePath: t, OutputPath: batchOutput(t)}
		paths = append(paths, t)
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := newPipeline(ctx, paths...)
	if err != nil {
		return err
	}

	slog.Info("batch started", slog.Int("traces", len(jobs)), slog.Int("workers", parallelWorkers))
	results, err := p.RunAll(ctx, modelPath, jobs, parallelWorkers)
	for _, res := range results {
		if res != nil {
			report(res)
		}
	}
	return err
}

// batchOutput maps a trace path to its output path in batchOutputDir.
func batchOutput(trace string) string {
	base := filepath.Base(util.StripCompression(trace))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(batchOutputDir, base+batchExt)
}

func runWatch(cmd *cobra.Command, args []string) error {
	modelPath, tracePath, err := modelAndTrace(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := newPipeline(ctx, modelPath, tracePath, watchOutput)
	if err != nil {
		return err
	}

	w, err := watch.NewWatcher(watchDebounce, slog.Default())
	if err != nil {
		return err
	}
	defer w.Close()

	watched := []string{tracePath}
	if modelPath != "" {
		watched = append(watched, modelPath)
	}
	for _, path := range watched {
		if err := w.Add(path); err != nil {
			return err
		}
	}

	convert := func(ctx context.Context, changed string) error {
		res, err := p.Run(ctx, pipe.Job{
			ModelPath:  modelPath,
			TracePath:  tracePath,
			OutputPath: watchOutput,
		})
		if err != nil {
			return err
		}
		report(res)
		return nil
	}

	// Convert once so the output reflects the current trace.
	if err := convert(ctx, tracePath); err != nil {
		slog.Error("conversion failed", slog.Any("error", err))
	}

	slog.Info("watching", slog.Any("paths", watched))
	if err := w.Run(ctx, convert); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runModel(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, err := newPipeline(ctx, args[0])
	if err != nil {
		return err
	}
	m, err := p.LoadModel(ctx, args[0])
	if err != nil {
		return err
	}

	tui.PrintModelSummary(cmd.OutOrStdout(), summarize(args[0], m))
	return nil
}

func summarize(path string, m *uppaal.Model) tui.ModelSummary {
	s := tui.ModelSummary{
		Path:        path,
		Clocks:      m.Clocks,
		Variables:   m.Variables,
		Expressions: len(m.Expressions),
	}
	for pi, proc := range m.Processes {
		ps := tui.ProcessSummary{Name: proc.Name, Edges: len(proc.Edges)}
		if initial, err := m.Location(proc.Initial); err == nil {
			ps.Initial = initial.Name
		}
		for local := range proc.Locations {
			if loc, err := m.LocalLocation(pi, local); err == nil {
				ps.Locations = append(ps.Locations, loc.Name)
			}
		}
		s.Processes = append(s.Processes, ps)
	}
	return s
}

func runConfig(cmd *cobra.Command, args []string) error {
	data, err := cfgManager.Marshal()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range cfgManager.GetPaths() {
		fmt.Fprintf(out, "# loaded %s\n", p)
	}
	_, err = out.Write(data)
	return err
}
