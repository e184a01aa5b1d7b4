package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/efebarandurmaz/bigsmall/internal/expression"
	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
)

// RunMetrics collects statistics for a full scoring run.
type RunMetrics struct {
	Name       string            `json:"name"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Duration   time.Duration     `json:"duration_ms,omitempty"`
	Input      InputMetrics      `json:"input"`
	Network    NetworkMetrics    `json:"network"`
	Scores     ScoreMetrics      `json:"scores"`
	Simulation SimulationMetrics `json:"simulation"`
	Stages     []StageMetrics    `json:"stages"`
	OutputDir  string            `json:"output_dir,omitempty"`
	Skipped    bool              `json:"skipped,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
}

type InputMetrics struct {
	File         string  `json:"file"`
	Enzymes      int     `json:"enzymes"`
	Observations int     `json:"observations"`
	Total        float64 `json:"total"`
	Max          float64 `json:"max"`
}

type NetworkMetrics struct {
	Enzymes         int    `json:"enzymes"`
	Compounds       int    `json:"compounds"`
	Edges           int    `json:"edges"`
	Components      int    `json:"components"`
	Hotspot         string `json:"hotspot,omitempty"`
	EnzymesFailed   int    `json:"enzymes_failed"`
	ReactionsFailed int    `json:"reactions_failed"`
}

type ScoreMetrics struct {
	Mode       string `json:"mode"`
	Compounds  int    `json:"compounds"`
	NameMisses int    `json:"name_misses"`
	// Tiers counts compounds per significance marker.
	Tiers map[string]int `json:"tiers,omitempty"`
}

type SimulationMetrics struct {
	Iterations int    `json:"iterations"`
	Workers    int    `json:"workers,omitempty"`
	Seed       uint64 `json:"seed,omitempty"`
}

type StageMetrics struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
}

// New starts tracking a run.
func New(name string) *RunMetrics {
	return &RunMetrics{Name: name, StartedAt: time.Now()}
}

// CollectInput records the expression table size.
func (m *RunMetrics) CollectInput(file string, t *expression.Table) {
	m.Input = InputMetrics{
		File:         file,
		Enzymes:      t.Len(),
		Observations: len(t.Sequence()),
		Total:        t.Total(),
		Max:          t.Max(),
	}
}

// CollectNetwork records network size and lookup failures.
func (m *RunMetrics) CollectNetwork(n *network.Network) {
	m.Network = NetworkMetrics{
		Enzymes:         n.Stats.EnzymeCount,
		Compounds:       n.Stats.CompoundCount,
		Edges:           n.Stats.TotalEdges,
		Components:      n.Stats.ConnectedComponents,
		Hotspot:         n.Stats.HotspotNode,
		EnzymesFailed:   n.Report.EnzymesFailed,
		ReactionsFailed: n.Report.ReactionsFailed,
	}
}

// CollectScores records the scored table.
func (m *RunMetrics) CollectScores(t *score.Table) {
	m.Scores.Mode = string(t.Mode)
	m.Scores.Compounds = len(t.Records)
	m.Scores.NameMisses = len(t.NameMisses)
}

// CollectTiers records how many compounds landed in each tier.
func (m *RunMetrics) CollectTiers(rows []significance.Row) {
	m.Scores.Tiers = make(map[string]int)
	for tier, n := range significance.Summary(rows) {
		m.Scores.Tiers[tier.String()] = n
	}
}

// AddStage records a single stage's timing.
func (m *RunMetrics) AddStage(name string, d time.Duration) {
	m.Stages = append(m.Stages, StageMetrics{Name: name, Duration: d})
}

// Finish marks the run as complete.
func (m *RunMetrics) Finish(errs []string) {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.Errors = errs
}

// PrintSummary writes a human-readable summary. Colour follows the
// terminal detection of fatih/color.
func (m *RunMetrics) PrintSummary(w io.Writer) {
	title := color.New(color.Bold).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	good := color.New(color.FgGreen).SprintFunc()

	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        %s          ║\n", title("BIGSMALL RUN REPORT"))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Name:        %-23s║\n", m.Name)
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Mode:        %-23s║\n", m.Scores.Mode)
	if m.Skipped {
		fmt.Fprintf(w, "║ %s\n", good("inputs unchanged, previous output reused"))
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ INPUT\n")
	fmt.Fprintf(w, "║   Enzymes:       %d\n", m.Input.Enzymes)
	fmt.Fprintf(w, "║   Observations:  %d\n", m.Input.Observations)
	fmt.Fprintf(w, "║   Transcripts:   %g\n", m.Input.Total)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ NETWORK\n")
	fmt.Fprintf(w, "║   Enzymes:       %d\n", m.Network.Enzymes)
	fmt.Fprintf(w, "║   Compounds:     %d\n", m.Network.Compounds)
	fmt.Fprintf(w, "║   Edges:         %d\n", m.Network.Edges)
	fmt.Fprintf(w, "║   Components:    %d\n", m.Network.Components)
	if m.Network.Hotspot != "" {
		fmt.Fprintf(w, "║   Hotspot:       %s\n", m.Network.Hotspot)
	}
	if m.Network.EnzymesFailed > 0 || m.Network.ReactionsFailed > 0 || m.Scores.NameMisses > 0 {
		fmt.Fprintf(w, "║   %s\n", warn(fmt.Sprintf("Unmapped: %d enzymes, %d reactions, %d names",
			m.Network.EnzymesFailed, m.Network.ReactionsFailed, m.Scores.NameMisses)))
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ SCORES\n")
	fmt.Fprintf(w, "║   Compounds:     %d\n", m.Scores.Compounds)
	if m.Simulation.Iterations > 1 {
		fmt.Fprintf(w, "║   Iterations:    %d (seed %d)\n", m.Simulation.Iterations, m.Simulation.Seed)
		for _, marker := range []string{"***", "**", "*", "n.s."} {
			fmt.Fprintf(w, "║   %-5s          %d\n", marker, m.Scores.Tiers[marker])
		}
	}
	if len(m.Stages) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ STAGES\n")
		for _, s := range m.Stages {
			fmt.Fprintf(w, "║   %-14s %8s\n", s.Name, s.Duration.Round(time.Millisecond))
		}
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ %s\n", bad("ERRORS"))
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *RunMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
