package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/bigsmall/internal/app"
	"github.com/efebarandurmaz/bigsmall/internal/config"
	"github.com/efebarandurmaz/bigsmall/internal/pipeline"
	"github.com/efebarandurmaz/bigsmall/internal/score"
)

// runFlags are the scoring flags shared by run and submit. Flags that are
// set on the command line override the config file and environment.
type runFlags struct {
	configPath    string
	name          string
	iterations    int
	mode          string
	minScore      float64
	minDegree     int
	workers       int
	seed          uint64
	reference     string
	output        string
	skipUnchanged bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Config file path")
	fs.StringVar(&f.name, "name", "", "Graph name used for output files")
	fs.IntVar(&f.iterations, "iters", 1, "Simulation iterations (1 disables the simulation)")
	fs.StringVar(&f.mode, "mode", string(score.ModeCombinedLog), "Scoring mode: combined_log or directional_sqrt")
	fs.Float64Var(&f.minScore, "min", 0, "Minimum directional score")
	fs.IntVar(&f.minDegree, "degree", 0, "Minimum directional degree")
	fs.IntVar(&f.workers, "workers", 0, "Simulation workers (0 uses every CPU)")
	fs.Uint64Var(&f.seed, "seed", 0, "Simulation seed (0 picks one at random)")
	fs.StringVar(&f.reference, "reference", "", "Reference tables: directory, SQLite file or s3://bucket/key")
	fs.StringVar(&f.output, "output", "", "Parent directory of the run directory")
	fs.BoolVar(&f.skipUnchanged, "skip-unchanged", false, "Reuse an earlier run whose inputs and settings match")
}

// load reads the configuration, applies flag overrides and validates the
// result.
func (f *runFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}

	fs := cmd.Flags()
	if fs.Changed("name") {
		cfg.Run.Name = f.name
	}
	if fs.Changed("iters") {
		cfg.Run.Iterations = f.iterations
	}
	if fs.Changed("mode") {
		cfg.Run.Mode = f.mode
	}
	if fs.Changed("min") {
		cfg.Run.MinScore = f.minScore
	}
	if fs.Changed("degree") {
		cfg.Run.MinDegree = f.minDegree
	}
	if fs.Changed("workers") {
		cfg.Run.Workers = f.workers
	}
	if fs.Changed("seed") {
		cfg.Run.Seed = f.seed
	}
	if fs.Changed("reference") {
		cfg.Reference.URI = f.reference
	}
	if fs.Changed("output") {
		cfg.Run.OutputDir = f.output
	}
	if fs.Changed("skip-unchanged") {
		cfg.Run.SkipUnchanged = f.skipUnchanged
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	var (
		flags      runFlags
		jsonReport bool
		neo4jURI   string
	)

	cmd := &cobra.Command{
		Use:   "run <expression-file>",
		Short: "Score the metabolites of one organism",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if neo4jURI != "" {
				cfg.Graph.URI = neo4jURI
			}
			return runScoring(cmd.Context(), cfg, args[0], jsonReport)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&jsonReport, "json", false, "Print the run report as JSON")
	cmd.Flags().StringVar(&neo4jURI, "neo4j", "", "Export the network and scores to this Neo4j uri")
	return cmd
}

func runScoring(ctx context.Context, cfg *config.Config, expressionFile string, jsonReport bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := app.Logger(cfg)
	if err != nil {
		return err
	}
	if err := app.ResolveSecrets(ctx, cfg); err != nil {
		return err
	}
	tp, err := app.Tracing(ctx, cfg, "bigsmall")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	opts := pipeline.Options{
		ExpressionFile: expressionFile,
		Name:           cfg.Run.Name,
		Iterations:     cfg.Run.Iterations,
		Mode:           score.Mode(cfg.Run.Mode),
		MinScore:       cfg.Run.MinScore,
		MinDegree:      cfg.Run.MinDegree,
		Workers:        cfg.Run.Workers,
		Seed:           cfg.Run.Seed,
		OutputDir:      cfg.Run.OutputDir,
		SkipUnchanged:  cfg.Run.SkipUnchanged,
		ReferenceURI:   cfg.Reference.URI,
		Fetcher:        app.Fetcher(cfg),
		Logger:         logger,
	}
	if cfg.Run.Iterations > 1 {
		opts.Progress = progressPrinter(os.Stderr)
	}

	repo, err := app.Graph(ctx, cfg)
	if err != nil {
		// Export is optional; the run still writes its files.
		logger.Warn("graph export disabled", "error", err)
	} else if repo != nil {
		defer repo.Close(context.Background())
		opts.Graph = repo
	}

	res, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}
	printResult(os.Stdout, res, jsonReport, logger)
	return nil
}

// progressPrinter redraws a single coloured progress line.
func progressPrinter(w io.Writer) func(int) {
	c := color.New(color.FgCyan)
	last := -1
	return func(percent int) {
		if percent == last {
			return
		}
		last = percent
		c.Fprintf(w, "\rSimulating... %3d%%", percent)
		if percent >= 100 {
			fmt.Fprintln(w)
		}
	}
}

func printResult(w io.Writer, res *pipeline.Result, jsonReport bool, logger *slog.Logger) {
	if jsonReport {
		data, err := res.Metrics.JSON()
		if err != nil {
			logger.Error("encode run report", "error", err)
			return
		}
		fmt.Fprintln(w, string(data))
		return
	}

	res.Metrics.PrintSummary(w)
	if res.Elapsed > 0 {
		fmt.Fprintf(w, "Elapsed time: %s\n", res.Elapsed.Round(time.Millisecond))
	}
	for _, warning := range res.Warnings {
		color.New(color.FgYellow).Fprintf(w, "Warning: %s\n", warning)
	}
	fmt.Fprintf(w, "Output written to %s\n", res.Dir.Path)
}
