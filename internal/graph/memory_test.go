package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
	"github.com/efebarandurmaz/bigsmall/internal/simulation"
)

type names map[string]string

func (n names) CompoundName(id string) (string, bool) {
	v, ok := n[id]
	return v, ok
}

func sampleNetwork() *network.Network {
	return &network.Network{
		Enzymes:   []string{"K1", "K2"},
		Compounds: []string{"C1", "C2", "C3"},
		Edges: []network.Edge{
			{From: "C1", To: "K1", Kind: network.EdgeSubstrate},
			{From: "K1", To: "C2", Kind: network.EdgeProduct},
			{From: "C2", To: "K2", Kind: network.EdgeSubstrate},
			{From: "K2", To: "C3", Kind: network.EdgeProduct},
			{From: "K1", To: "C3", Kind: network.EdgeProduct},
		},
	}
}

func TestNetworkParams(t *testing.T) {
	compounds, substrates, products := NetworkParams(sampleNetwork(), names{"C1": "Water"})
	require.Len(t, compounds, 3)
	assert.Equal(t, "Water", compounds[0]["name"])
	assert.Equal(t, "C2", compounds[1]["name"], "unnamed compounds fall back to the id")
	assert.Len(t, substrates, 2)
	assert.Len(t, products, 3)
	assert.Equal(t, map[string]any{"compound": "C1", "enzyme": "K1"}, substrates[0])
}

func TestScoreParams(t *testing.T) {
	table := &score.Table{
		Mode:    score.ModeCombinedLog,
		Records: []score.Record{{Compound: "C1", Score: 2}, {Compound: "C2", Score: -1.585}},
	}

	plain := ScoreParams(table, nil)
	require.Len(t, plain, 2)
	assert.Equal(t, 2.0, plain[0]["score"])
	assert.NotContains(t, plain[0], "tier")

	rows := significance.Annotate(table, &simulation.Intervals{
		Mode:      score.ModeCombinedLog,
		Compounds: map[string]simulation.Interval{"C1": {Mean: 0, Std: 0.5}},
	})
	annotated := ScoreParams(table, rows)
	require.Len(t, annotated, 2)
	assert.Equal(t, "***", annotated[0]["tier"])
	assert.Equal(t, 0.01, annotated[0]["p_value"])
	assert.Equal(t, "n.s.", annotated[1]["tier"])
}

func TestScoreParams_Directional(t *testing.T) {
	table := &score.Table{
		Mode: score.ModeDirectionalSqrt,
		Records: []score.Record{{
			Compound: "C1", InputScore: 1.5, OutputScore: 2, InputIncluded: true, Indegree: 2, Outdegree: 1,
		}},
	}
	p := ScoreParams(table, nil)
	require.Len(t, p, 1)
	assert.Equal(t, 1.5, p[0]["input_score"])
	assert.Equal(t, int64(2), p[0]["indegree"])
	assert.NotContains(t, p[0], "output_mean")

	rows := []significance.Row{{
		Record:     table.Records[0],
		Interval:   simulation.Interval{InputMean: 0.5, InputStd: 0.25, OutputMean: 1.25, OutputStd: 0.5},
		InputTier:  significance.TierNone,
		OutputTier: significance.TierThree,
	}}
	annotated := ScoreParams(table, rows)
	require.Len(t, annotated, 1)
	assert.Equal(t, 0.5, annotated[0]["mean"])
	assert.Equal(t, 1.25, annotated[0]["output_mean"])
	assert.Equal(t, 0.5, annotated[0]["output_std"])
	assert.Equal(t, 0.25, annotated[0]["input_std"])
	assert.Equal(t, "n.s.", annotated[0]["input_tier"])
	assert.Equal(t, "***", annotated[0]["output_tier"])
	assert.Equal(t, "***", annotated[0]["tier"])

	repo := NewMemory()
	ctx := context.Background()
	require.NoError(t, repo.StoreNetwork(ctx, "gut", sampleNetwork(), nil))
	require.NoError(t, repo.StoreScores(ctx, "gut", table, rows))
	node, ok := repo.Compound("gut", "C1")
	require.True(t, ok)
	assert.Equal(t, Side{Mean: 1.25, Std: 0.5, Tier: "***"}, node.Output)
	assert.Equal(t, Side{Mean: 0.5, Std: 0.25, Tier: "n.s."}, node.Input)
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	defer repo.Close(ctx)

	_, err := repo.QueryProducers(ctx, "gut", "C3")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	require.NoError(t, repo.StoreNetwork(ctx, "gut", sampleNetwork(), names{"C3": "Ethanol"}))

	producers, err := repo.QueryProducers(ctx, "gut", "C3")
	require.NoError(t, err)
	assert.Equal(t, []string{"K1", "K2"}, producers)

	table := &score.Table{Mode: score.ModeCombinedLog, Records: []score.Record{{Compound: "C3", Score: 3.17}}}
	require.NoError(t, repo.StoreScores(ctx, "gut", table, nil))

	node, ok := repo.Compound("gut", "C3")
	require.True(t, ok)
	assert.Equal(t, "Ethanol", node.Name)
	assert.True(t, node.Scored)
	assert.Equal(t, 3.17, node.Score)

	node, ok = repo.Compound("gut", "C1")
	require.True(t, ok)
	assert.False(t, node.Scored)

	assert.ErrorIs(t, repo.StoreScores(ctx, "soil", table, nil), ErrRunNotFound)
}

func TestMemoryRepository_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemory().StoreNetwork(ctx, "gut", sampleNetwork(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
