package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/bigsmall/internal/score"
)

type fakeTopology struct {
	enzymes   []string
	compounds []string
	inputs    map[string][]string
	outputs   map[string][]string
}

func (f fakeTopology) EnzymeIDs() []string         { return f.enzymes }
func (f fakeTopology) CompoundIDs() []string       { return f.compounds }
func (f fakeTopology) InputsOf(e string) []string  { return f.inputs[e] }
func (f fakeTopology) OutputsOf(e string) []string { return f.outputs[e] }

func pathway() fakeTopology {
	return fakeTopology{
		enzymes:   []string{"E1", "E2", "E3"},
		compounds: []string{"A", "B", "C", "D"},
		inputs:    map[string][]string{"E1": {"A"}, "E2": {"B"}, "E3": {"B", "C"}},
		outputs:   map[string][]string{"E1": {"B"}, "E2": {"C"}, "E3": {"D"}},
	}
}

var population = []float64{1, 3, 8, 13, 21, 34, 55, 89, 144, 233}

func TestAccumulator_MatchesDirect(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	var a Accumulator
	for _, x := range xs {
		a.Add(x)
	}
	assert.InDelta(t, 5.0, a.Mean, 1e-12)
	assert.InDelta(t, 2.0, a.Std(), 1e-12)
}

func TestAccumulator_MergeEqualsSequential(t *testing.T) {
	xs := []float64{1.5, -2, 3.25, 10, 0, 7, 7, -4.5, 12}
	var seq, left, right Accumulator
	for i, x := range xs {
		seq.Add(x)
		if i < 4 {
			left.Add(x)
		} else {
			right.Add(x)
		}
	}
	left.Merge(right)
	assert.Equal(t, seq.N, left.N)
	assert.InDelta(t, seq.Mean, left.Mean, 1e-12)
	assert.InDelta(t, seq.Std(), left.Std(), 1e-12)

	var empty Accumulator
	empty.Merge(seq)
	assert.Equal(t, seq, empty)
}

func TestAccumulator_SingleSampleStd(t *testing.T) {
	var a Accumulator
	a.Add(42)
	assert.Equal(t, 0.0, a.Std())
}

func TestRun_SamplingError(t *testing.T) {
	_, err := Run(context.Background(), Params{Iterations: 5}, []float64{1, 2}, []string{"E1", "E2", "E3"}, pathway())
	var se *SamplingError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Sample)
	assert.Equal(t, 2, se.Population)
}

func TestRun_NoIterations(t *testing.T) {
	_, err := Run(context.Background(), Params{}, population, pathway().enzymes, pathway())
	assert.ErrorIs(t, err, ErrNoIterations)
}

func TestRun_SingleIteration(t *testing.T) {
	topo := pathway()
	iv, err := Run(context.Background(), Params{Iterations: 1, Seed: 7}, population, topo.enzymes, topo)
	require.NoError(t, err)
	assert.Equal(t, 1, iv.Iterations)
	require.Len(t, iv.Compounds, 4)
	for id, c := range iv.Compounds {
		assert.Equal(t, 0.0, c.Std, "compound %s", id)
	}
}

func TestRun_ConstantPopulation(t *testing.T) {
	topo := fakeTopology{
		enzymes:   []string{"E1"},
		compounds: []string{"A", "B"},
		inputs:    map[string][]string{"E1": {"A"}},
		outputs:   map[string][]string{"E1": {"B"}},
	}
	iv, err := Run(context.Background(), Params{Iterations: 20, Seed: 1}, []float64{5}, topo.enzymes, topo)
	require.NoError(t, err)

	a, ok := iv.Get("A")
	require.True(t, ok)
	assert.Equal(t, score.Round3(math.Log2(5)), a.Mean)
	assert.Equal(t, 0.0, a.Std)

	b, _ := iv.Get("B")
	assert.Equal(t, -score.Round3(math.Log2(5)), b.Mean)
}

func TestRun_IndependentOfWorkerCount(t *testing.T) {
	topo := pathway()
	one, err := Run(context.Background(), Params{Iterations: 200, Workers: 1, Seed: 99}, population, topo.enzymes, topo)
	require.NoError(t, err)
	many, err := Run(context.Background(), Params{Iterations: 200, Workers: 6, Seed: 99}, population, topo.enzymes, topo)
	require.NoError(t, err)

	require.Len(t, many.Compounds, len(one.Compounds))
	for id, want := range one.Compounds {
		got := many.Compounds[id]
		assert.InDelta(t, want.Mean, got.Mean, 1e-3, "mean of %s", id)
		assert.InDelta(t, want.Std, got.Std, 1e-3, "std of %s", id)
	}
}

func TestRun_Directional(t *testing.T) {
	topo := pathway()
	iv, err := Run(context.Background(), Params{Iterations: 50, Seed: 3, Mode: score.ModeDirectionalSqrt}, population, topo.enzymes, topo)
	require.NoError(t, err)
	assert.Equal(t, score.ModeDirectionalSqrt, iv.Mode)

	a := iv.Compounds["A"]
	assert.Greater(t, a.InputMean, 0.0)
	assert.Equal(t, 0.0, a.OutputMean, "A is never produced")
	assert.Equal(t, 0.0, a.Mean)
}

func TestRun_RandomSeedReported(t *testing.T) {
	topo := pathway()
	iv, err := Run(context.Background(), Params{Iterations: 2}, population, topo.enzymes, topo)
	require.NoError(t, err)
	assert.NotZero(t, iv.Seed)
}

func TestChunksMergeLikeRun(t *testing.T) {
	topo := pathway()
	p := Params{Iterations: 30, Seed: 12345, Workers: 1}
	whole, err := Run(context.Background(), p, population, topo.enzymes, topo)
	require.NoError(t, err)

	first, err := RunChunk(context.Background(), p, population, topo.enzymes, topo, 0, 10)
	require.NoError(t, err)
	second, err := RunChunk(context.Background(), p, population, topo.enzymes, topo, 10, 30)
	require.NoError(t, err)

	merged := Merge(first, second)
	assert.Equal(t, 30, merged.Iterations)
	got := Finalize(merged, p.Seed)
	for id, want := range whole.Compounds {
		assert.InDelta(t, want.Mean, got.Compounds[id].Mean, 1e-3, "mean of %s", id)
		assert.InDelta(t, want.Std, got.Compounds[id].Std, 1e-3, "std of %s", id)
	}
}

func TestRunChunk_InvalidRange(t *testing.T) {
	topo := pathway()
	_, err := RunChunk(context.Background(), Params{}, population, topo.enzymes, topo, 5, 2)
	assert.Error(t, err)
}

func TestRun_ProgressMonotonic(t *testing.T) {
	topo := pathway()
	var seen []int
	p := Params{Iterations: 37, Workers: 4, Seed: 5, Progress: func(pct int) { seen = append(seen, pct) }}
	_, err := Run(context.Background(), p, population, topo.enzymes, topo)
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestRun_Cancelled(t *testing.T) {
	topo := pathway()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Params{Iterations: 10, Seed: 1}, population, topo.enzymes, topo)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunkBounds(t *testing.T) {
	covered := 0
	prevEnd := 0
	for w := 0; w < 4; w++ {
		start, end := ChunkBounds(10, 4, w)
		assert.Equal(t, prevEnd, start)
		covered += end - start
		prevEnd = end
	}
	assert.Equal(t, 10, covered)
}
