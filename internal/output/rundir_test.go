package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/bigsmall/internal/expression"
	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
	"github.com/efebarandurmaz/bigsmall/internal/simulation"
)

type names map[string]string

func (n names) CompoundName(c string) (string, bool) {
	v, ok := n[c]
	return v, ok
}

func readLines(t *testing.T, d *RunDir, name string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(d.Path, name))
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestCreate(t *testing.T) {
	parent := t.TempDir()
	d, err := Create(parent, "gut")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(parent, "gut.bipartite.files"), d.Path)

	info, err := os.Stat(d.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = Create(parent, "gut")
	assert.NoError(t, err, "existing directories are reused")
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "x.score.txt", ScoreFileName("x", false))
	assert.Equal(t, "x.monte_carlo.score.txt", ScoreFileName("x", true))
	assert.Equal(t, "x.topology.txt", TopologyFileName("x"))
	assert.Equal(t, "x.mapping.txt", MappingFileName("x"))
}

func TestWriteNetwork(t *testing.T) {
	d, err := Create(t.TempDir(), "n")
	require.NoError(t, err)
	n := &network.Network{
		Enzymes:   []string{"E1"},
		Compounds: []string{"A", "B"},
		Edges: []network.Edge{
			{From: "A", To: "E1", Kind: network.EdgeSubstrate},
			{From: "E1", To: "B", Kind: network.EdgeProduct},
		},
	}
	require.NoError(t, d.WriteNetwork(n))

	assert.Equal(t, []string{"A\tE1", "E1\tB"}, readLines(t, d, GraphFile))
	assert.Equal(t, []string{"A", "B"}, readLines(t, d, CompoundList))
	assert.Equal(t, []string{"E1"}, readLines(t, d, EnzymeList))
}

func TestWriteKeyErrors(t *testing.T) {
	d, err := Create(t.TempDir(), "k")
	require.NoError(t, err)
	report := network.TranslationReport{
		EnzymesTried: 2, EnzymesFailed: 1,
		Misses: []network.LookupMiss{{Kind: network.MissEnzyme, ID: "K9"}},
	}
	require.NoError(t, d.WriteKeyErrors(report, []score.NameMiss{{Compound: "C9"}}))

	got := readLines(t, d, KeyErrorLog)
	assert.Equal(t, "WARNING: K9 not found in enzyme-to-reaction table", got[0])
	assert.Equal(t, "WARNING: C9 not found in compound name table", got[1])
	assert.Contains(t, got, "Enzymes translated: 1 of 2")
}

func TestWriteScores_Combined(t *testing.T) {
	d, err := Create(t.TempDir(), "s")
	require.NoError(t, err)
	tbl := &score.Table{Mode: score.ModeCombinedLog, Records: []score.Record{
		{Compound: "C1", Name: "Water", Score: -2},
		{Compound: "C2", Name: "ATP", Score: 2.585},
	}}
	name, err := d.WriteScores(tbl)
	require.NoError(t, err)
	assert.Equal(t, "s.score.txt", name)
	assert.Equal(t, []string{
		"Compound_code\tCompound_name\tMetabolite_score",
		"C1\tWater\t-2",
		"C2\tATP\t2.585",
	}, readLines(t, d, name))
}

func TestWriteScores_Directional(t *testing.T) {
	d, err := Create(t.TempDir(), "s")
	require.NoError(t, err)
	tbl := &score.Table{Mode: score.ModeDirectionalSqrt, Records: []score.Record{
		{Compound: "C1", Name: "Water", InputScore: 1.5, InputIncluded: true, OutputScore: 0.2},
	}}
	name, err := d.WriteScores(tbl)
	require.NoError(t, err)
	assert.Equal(t, "C1\tWater\t1.5\tNA", readLines(t, d, name)[1])
}

func TestWriteAnnotated(t *testing.T) {
	d, err := Create(t.TempDir(), "m")
	require.NoError(t, err)
	rows := []significance.Row{{
		Record:   score.Record{Compound: "C1", Name: "Water", Score: 3},
		Interval: simulation.Interval{Mean: 0.5, Std: 0.25},
		Tier:     significance.TierThree,
	}}
	name, err := d.WriteAnnotated(score.ModeCombinedLog, rows)
	require.NoError(t, err)
	assert.Equal(t, "m.monte_carlo.score.txt", name)
	assert.Equal(t, []string{
		"Compound_code\tCompound_name\tMetabolite_score\tSim_Mean\tSim_StD\tSignificance",
		"C1\tWater\t3\t0.5\t0.25\t***",
	}, readLines(t, d, name))
}

func TestWriteTopologyAndMapping(t *testing.T) {
	d, err := Create(t.TempDir(), "t")
	require.NoError(t, err)
	aggs := score.Aggregates{
		"B": {Indegree: 1},
		"A": {Outdegree: 2},
	}
	require.NoError(t, d.WriteTopology(aggs, names{"A": "Alpha"}))
	assert.Equal(t, []string{
		"Compound_code\tCompound_name\tIndegree\tOutdegree",
		"A\tAlpha\t0\t2",
		"B\tB\t1\t0",
	}, readLines(t, d, TopologyFileName("t")))

	expr := expression.NewTable()
	expr.Add("K1", 2)
	expr.Add("K1", 3.5)
	expr.Add("K2", 1)
	require.NoError(t, d.WriteMapping(expr))
	assert.Equal(t, []string{"KO_code\tTranscripts", "K1\t5.5", "K2\t1"}, readLines(t, d, MappingFileName("t")))
}
