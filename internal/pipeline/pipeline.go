// Package pipeline runs a complete scoring job: parse the expression file,
// build the metabolic network, score it, optionally simulate a null
// distribution, and write the run directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/efebarandurmaz/bigsmall/internal/blob"
	"github.com/efebarandurmaz/bigsmall/internal/expression"
	"github.com/efebarandurmaz/bigsmall/internal/graph"
	"github.com/efebarandurmaz/bigsmall/internal/manifest"
	"github.com/efebarandurmaz/bigsmall/internal/metrics"
	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/observability"
	"github.com/efebarandurmaz/bigsmall/internal/output"
	"github.com/efebarandurmaz/bigsmall/internal/reference"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
	"github.com/efebarandurmaz/bigsmall/internal/simulation"
)

// elapsedThreshold is the iteration count above which the simulation time is
// reported.
const elapsedThreshold = 10

// Options configure a run.
type Options struct {
	ExpressionFile string
	Name           string
	Iterations     int
	Mode           score.Mode
	MinScore       float64
	MinDegree      int
	Workers        int
	Seed           uint64
	OutputDir      string
	SkipUnchanged  bool

	// Reference is used as is when set; otherwise ReferenceURI is opened
	// through Fetcher.
	Reference    reference.Store
	ReferenceURI string
	Fetcher      *blob.Fetcher

	// Graph receives the network and scores when non-nil.
	Graph graph.Repository

	Logger   *slog.Logger
	Progress func(percent int)
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Options) name() string {
	if o.Name == "" {
		return manifest.DefaultName
	}
	return o.Name
}

// Prepared holds everything computed before the simulation.
type Prepared struct {
	Expression *expression.Table
	Reference  reference.Store
	Network    *network.Network
	Aggregates score.Aggregates
	Table      *score.Table
	InputHash  string
}

// Params returns simulation parameters for the prepared run.
func (p *Prepared) Params(o Options) simulation.Params {
	return simulation.Params{
		Iterations: o.Iterations,
		Workers:    o.Workers,
		Seed:       o.Seed,
		Mode:       p.Table.Mode,
		Progress:   o.Progress,
	}
}

// Result describes a finished run.
type Result struct {
	Dir       *output.RunDir
	ScoreFile string
	Manifest  *manifest.Manifest
	Prepared  *Prepared
	Intervals *simulation.Intervals
	Rows      []significance.Row
	Metrics   *metrics.RunMetrics
	// Skipped is set when an identical earlier run was reused.
	Skipped bool
	// Elapsed is the simulation wall time, set for runs above ten
	// iterations.
	Elapsed time.Duration
	// Warnings are recoverable problems surfaced in the run report.
	Warnings []string
}

// Run executes the whole job.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Iterations < 1 {
		return nil, simulation.ErrNoIterations
	}
	log := opts.logger()
	name := opts.name()
	m := metrics.New(name)

	ctx, span := observability.StartRunSpan(ctx, name, opts.Iterations, string(opts.Mode))
	defer span.End()

	prep, err := prepare(ctx, opts, m)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	man := newManifest(opts, prep)
	if opts.SkipUnchanged && (opts.Seed != 0 || opts.Iterations == 1) {
		if prev, ok := unchanged(opts, man); ok {
			log.Info("inputs unchanged, reusing previous run", "dir", filepath.Join(opts.OutputDir, output.RunDirName(name)))
			m.Skipped = true
			m.Finish(nil)
			return &Result{
				Dir:       &output.RunDir{Path: filepath.Join(opts.OutputDir, output.RunDirName(name)), Name: name},
				ScoreFile: prev.ScoreFile,
				Manifest:  prev,
				Prepared:  prep,
				Metrics:   m,
				Skipped:   true,
			}, nil
		}
	}

	res := &Result{Prepared: prep, Metrics: m, Manifest: man}
	if opts.Iterations > 1 {
		start := time.Now()
		err := stage(ctx, m, observability.StageSimulate, func(ctx context.Context) error {
			iv, err := simulation.Run(ctx, prep.Params(opts), prep.Expression.Sequence(), prep.Network.Enzymes, prep.Network)
			if err != nil {
				return err
			}
			res.Intervals = iv
			observability.RecordSimulation(trace.SpanFromContext(ctx), iv.Iterations, opts.Workers, iv.Seed)
			return nil
		})
		if err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("simulate: %w", err)
		}
		if opts.Iterations > elapsedThreshold {
			res.Elapsed = time.Since(start)
			log.Info("simulation finished", "iterations", opts.Iterations, "elapsed", res.Elapsed.Round(time.Millisecond))
		}
		man.Seed = res.Intervals.Seed
		m.Simulation = metrics.SimulationMetrics{Iterations: opts.Iterations, Workers: opts.Workers, Seed: res.Intervals.Seed}
	}

	if err := Write(ctx, opts, res); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	m.Finish(res.Warnings)
	return res, nil
}

// Prepare parses the input, loads the reference and scores the observed
// network.
func Prepare(ctx context.Context, opts Options) (*Prepared, error) {
	return prepare(ctx, opts, metrics.New(opts.name()))
}

func prepare(ctx context.Context, opts Options, m *metrics.RunMetrics) (*Prepared, error) {
	log := opts.logger()
	mode, err := score.ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode
	p := &Prepared{}

	err = stage(ctx, m, observability.StageParse, func(context.Context) error {
		t, err := expression.ParseFile(opts.ExpressionFile)
		if err != nil {
			return err
		}
		if p.InputHash, err = manifest.HashFile(opts.ExpressionFile); err != nil {
			return err
		}
		p.Expression = t
		m.CollectInput(opts.ExpressionFile, t)
		log.Info("expression parsed", "file", opts.ExpressionFile, "enzymes", t.Len(), "total", t.Total())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse expression: %w", err)
	}

	err = stage(ctx, m, observability.StageReference, func(ctx context.Context) error {
		if opts.Reference != nil {
			p.Reference = opts.Reference
			return nil
		}
		store, err := OpenReference(ctx, opts.ReferenceURI, opts.Fetcher)
		if err != nil {
			return err
		}
		p.Reference = store
		st := store.Stats()
		log.Info("reference loaded", "uri", opts.ReferenceURI, "version", st.Version,
			"enzymes", st.Enzymes, "reactions", st.Reactions, "compounds", st.Compounds)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load reference: %w", err)
	}

	err = stage(ctx, m, observability.StageNetwork, func(ctx context.Context) error {
		n, err := network.Build(ctx, p.Expression.Enzymes(), p.Reference, log)
		if err != nil {
			return err
		}
		p.Network = n
		m.CollectNetwork(n)
		observability.RecordNetwork(trace.SpanFromContext(ctx), n.Stats.EnzymeCount, n.Stats.CompoundCount,
			n.Stats.TotalEdges, n.Report.EnzymesFailed, n.Report.ReactionsFailed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}

	err = stage(ctx, m, observability.StageScore, func(ctx context.Context) error {
		t, aggs, err := score.Score(p.Expression.Values(), p.Network, p.Reference, score.Options{
			Mode:      mode,
			MinScore:  opts.MinScore,
			MinDegree: opts.MinDegree,
			Logger:    log,
		})
		if err != nil {
			return err
		}
		p.Table, p.Aggregates = t, aggs
		m.CollectScores(t)
		observability.RecordScores(trace.SpanFromContext(ctx), len(t.Records), len(t.NameMisses))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	return p, nil
}

// Write stores the run directory for res and exports it to the graph
// repository when one is configured. res.Prepared must be set; a nil
// res.Intervals writes an unsimulated table.
func Write(ctx context.Context, opts Options, res *Result) error {
	log := opts.logger()
	p := res.Prepared
	if res.Metrics == nil {
		res.Metrics = metrics.New(opts.name())
	}
	if res.Manifest == nil {
		res.Manifest = newManifest(opts, p)
		if res.Intervals != nil {
			res.Manifest.Seed = res.Intervals.Seed
		}
	}
	if res.Intervals != nil && res.Rows == nil {
		res.Rows = significance.Annotate(p.Table, res.Intervals)
		res.Metrics.CollectTiers(res.Rows)
	}

	err := stage(ctx, res.Metrics, observability.StageWrite, func(context.Context) error {
		dir, err := output.Create(opts.OutputDir, opts.name())
		if err != nil {
			return err
		}
		res.Dir = dir
		if err := dir.WriteNetwork(p.Network); err != nil {
			return err
		}
		if err := dir.WriteKeyErrors(p.Network.Report, p.Table.NameMisses); err != nil {
			return err
		}
		if res.Rows != nil {
			res.ScoreFile, err = dir.WriteAnnotated(p.Table.Mode, res.Rows)
		} else {
			res.ScoreFile, err = dir.WriteScores(p.Table)
		}
		if err != nil {
			return err
		}
		if err := dir.WriteTopology(p.Aggregates, p.Reference); err != nil {
			return err
		}
		if err := dir.WriteMapping(p.Expression); err != nil {
			return err
		}
		res.Manifest.ScoreFile = res.ScoreFile
		return res.Manifest.Save(dir.Path)
	})
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	res.Metrics.OutputDir = res.Dir.Path
	log.Info("output written", "dir", res.Dir.Path, "score_file", res.ScoreFile)

	if misses := len(p.Network.Report.Misses) + len(p.Table.NameMisses); misses > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d unmapped ids, see %s", misses,
			filepath.Join(res.Dir.Path, output.KeyErrorLog)))
	}

	if opts.Graph != nil {
		err := stage(ctx, res.Metrics, observability.StageExport, func(ctx context.Context) error {
			if err := opts.Graph.StoreNetwork(ctx, opts.name(), p.Network, p.Reference); err != nil {
				return err
			}
			return opts.Graph.StoreScores(ctx, opts.name(), p.Table, res.Rows)
		})
		if err != nil {
			// The run directory is complete; a failed export is reported
			// but does not fail the run.
			log.Error("graph export failed", "error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("graph export failed: %v", err))
		}
	}
	return nil
}

func newManifest(opts Options, p *Prepared) *manifest.Manifest {
	m := manifest.New(opts.ExpressionFile, opts.name())
	m.EnzymeNodes = p.Network.Stats.EnzymeCount
	m.CompoundNodes = p.Network.Stats.CompoundCount
	m.Iterations = opts.Iterations
	m.Mode = string(p.Table.Mode)
	m.MinScore = opts.MinScore
	m.MinDegree = opts.MinDegree
	m.Seed = opts.Seed
	m.ReferenceVersion = p.Reference.Version()
	m.Fingerprint = manifest.ComputeFingerprint(p.InputHash, m.Settings())
	return m
}

// unchanged reports whether the run directory already holds output for the
// same inputs and settings.
func unchanged(opts Options, m *manifest.Manifest) (*manifest.Manifest, bool) {
	dir := filepath.Join(opts.OutputDir, output.RunDirName(opts.name()))
	prev, err := manifest.Load(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			opts.logger().Warn("ignoring unreadable manifest", "dir", dir, "error", err)
		}
		return nil, false
	}
	if !prev.Fingerprint.Same(m.Fingerprint) {
		return nil, false
	}
	if _, err := os.Stat(filepath.Join(dir, prev.ScoreFile)); err != nil {
		return nil, false
	}
	return prev, true
}

// stage runs fn inside a traced, timed stage.
func stage(ctx context.Context, m *metrics.RunMetrics, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartStageSpan(ctx, name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	m.AddStage(name, time.Since(start))
	observability.RecordError(span, err)
	return err
}
