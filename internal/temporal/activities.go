package temporal

import (
	"context"
	"errors"
	"log/slog"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/bigsmall/internal/blob"
	"github.com/efebarandurmaz/bigsmall/internal/config"
	"github.com/efebarandurmaz/bigsmall/internal/expression"
	"github.com/efebarandurmaz/bigsmall/internal/graph"
	"github.com/efebarandurmaz/bigsmall/internal/pipeline"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/simulation"
)

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Logger  *slog.Logger
	Fetcher *blob.Fetcher
	// Graph is optional; FinalizeActivity exports to it when set.
	Graph graph.Repository
}

var deps = &Dependencies{}

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	if d == nil {
		d = &Dependencies{}
	}
	deps = d
}

func (in RunInput) options() pipeline.Options {
	return pipeline.Options{
		ExpressionFile: in.ExpressionFile,
		Name:           in.Name,
		Iterations:     in.Iterations,
		Mode:           score.Mode(in.Mode),
		MinScore:       in.MinScore,
		MinDegree:      in.MinDegree,
		Seed:           in.Seed,
		ReferenceURI:   in.ReferenceURI,
		OutputDir:      in.OutputDir,
		Fetcher:        deps.Fetcher,
		Graph:          deps.Graph,
		Logger:         deps.Logger,
	}
}

// fatal marks errors that fail on every attempt as non-retryable. Temporal
// types an error by its outermost value, so wrapped causes are unwrapped
// here.
func fatal(err error) error {
	if err == nil {
		return nil
	}
	var (
		perr *expression.ParseError
		serr *simulation.SamplingError
		cerr *config.ConfigError
	)
	switch {
	case errors.As(err, &perr):
		return sdktemporal.NewNonRetryableApplicationError(err.Error(), "ParseError", err)
	case errors.As(err, &serr):
		return sdktemporal.NewNonRetryableApplicationError(err.Error(), "SamplingError", err)
	case errors.As(err, &cerr), errors.Is(err, score.ErrUnknownMode), errors.Is(err, simulation.ErrNoIterations):
		return sdktemporal.NewNonRetryableApplicationError(err.Error(), "ConfigError", err)
	}
	return err
}

// PrepareActivity scores the observed data and checks that the simulation
// can run before any chunk is scheduled.
func PrepareActivity(ctx context.Context, input RunInput) (PrepareResult, error) {
	opts := input.options()
	p, err := pipeline.Prepare(ctx, opts)
	if err != nil {
		return PrepareResult{}, fatal(err)
	}
	if input.Iterations > 1 {
		if err := simulation.Validate(p.Params(opts), p.Expression.Sequence(), p.Network.Enzymes); err != nil {
			return PrepareResult{}, fatal(err)
		}
	}
	return PrepareResult{
		Seed:      simulation.ResolveSeed(input.Seed),
		Enzymes:   p.Network.Stats.EnzymeCount,
		Compounds: p.Network.Stats.CompoundCount,
		Scored:    len(p.Table.Records),
	}, nil
}

// SimulateChunkActivity runs iterations [start, end) and returns the
// unfinished accumulators.
func SimulateChunkActivity(ctx context.Context, input RunInput, seed uint64, start, end int) (*simulation.Partial, error) {
	opts := input.options()
	p, err := pipeline.Prepare(ctx, opts)
	if err != nil {
		return nil, fatal(err)
	}
	params := p.Params(opts)
	params.Seed = seed
	if activity.IsActivity(ctx) {
		params.Progress = func(pct int) { activity.RecordHeartbeat(ctx, pct) }
	}
	part, err := simulation.RunChunk(ctx, params, p.Expression.Sequence(), p.Network.Enzymes, p.Network, start, end)
	if err != nil {
		return nil, fatal(err)
	}
	return part, nil
}

// FinalizeActivity merges the chunk results and writes the run directory.
// With no partials the unsimulated table is written.
func FinalizeActivity(ctx context.Context, input RunInput, seed uint64, parts []*simulation.Partial) (RunOutput, error) {
	opts := input.options()
	p, err := pipeline.Prepare(ctx, opts)
	if err != nil {
		return RunOutput{}, fatal(err)
	}
	res := &pipeline.Result{Prepared: p}
	if len(parts) > 0 {
		merged := simulation.Merge(parts...)
		merged.Mode = p.Table.Mode
		res.Intervals = simulation.Finalize(merged, seed)
	}
	if err := pipeline.Write(ctx, opts, res); err != nil {
		return RunOutput{}, err
	}

	out := RunOutput{
		Dir:       res.Dir.Path,
		ScoreFile: res.ScoreFile,
		Warnings:  res.Warnings,
	}
	if res.Intervals != nil {
		out.Seed = res.Intervals.Seed
		out.Tiers = res.Metrics.Scores.Tiers
	}
	return out, nil
}
