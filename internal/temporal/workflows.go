package temporal

import (
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/bigsmall/internal/simulation"
)

// RunInput holds the workflow parameters.
type RunInput struct {
	ExpressionFile string
	Name           string
	Iterations     int
	Mode           string
	MinScore       float64
	MinDegree      int
	Seed           uint64
	ReferenceURI   string
	OutputDir      string

	// Chunks is the number of simulation activities run in parallel.
	Chunks int
}

// PrepareResult is returned by PrepareActivity.
type PrepareResult struct {
	// Seed is resolved once so every chunk draws from the same stream.
	Seed      uint64
	Enzymes   int
	Compounds int
	Scored    int
}

// RunOutput holds the workflow result.
type RunOutput struct {
	Dir       string
	ScoreFile string
	Seed      uint64
	Tiers     map[string]int
	Warnings  []string
}

// Errors of these types fail the workflow without retries.
var nonRetryable = []string{"ParseError", "SamplingError", "ConfigError"}

// MetaboliteWorkflow scores one organism: it prepares the observed scores,
// fans the simulation out over Chunks activities and writes the run
// directory from the merged result.
func MetaboliteWorkflow(ctx workflow.Context, input RunInput) (*RunOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    5 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: nonRetryable,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	var prep PrepareResult
	if err := workflow.ExecuteActivity(ctx, PrepareActivity, input).Get(ctx, &prep); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	logger.Info("observed scores ready", "compounds", prep.Compounds, "scored", prep.Scored, "seed", prep.Seed)

	var parts []*simulation.Partial
	if input.Iterations > 1 {
		chunks := min(max(input.Chunks, 1), input.Iterations)
		futures := make([]workflow.Future, chunks)
		for i := range futures {
			start, end := simulation.ChunkBounds(input.Iterations, chunks, i)
			futures[i] = workflow.ExecuteActivity(ctx, SimulateChunkActivity, input, prep.Seed, start, end)
		}
		// Partials are merged in chunk order so the result matches a local
		// run with the same number of workers.
		parts = make([]*simulation.Partial, chunks)
		for i, f := range futures {
			if err := f.Get(ctx, &parts[i]); err != nil {
				return nil, fmt.Errorf("simulate chunk %d: %w", i, err)
			}
		}
	}

	var out RunOutput
	if err := workflow.ExecuteActivity(ctx, FinalizeActivity, input, prep.Seed, parts).Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	return &out, nil
}
