// Package output writes the files of a run directory.
package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/efebarandurmaz/bigsmall/internal/expression"
	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
)

// Fixed file names inside a run directory.
const (
	GraphFile    = "bipartite_graph.txt"
	CompoundList = "compound.lst"
	EnzymeList   = "enzyme.lst"
	KeyErrorLog  = "key_error.log"

	runDirSuffix = ".bipartite.files"
)

// Column headers shared with readers of the score tables.
const (
	ColCompound     = "Compound_code"
	ColName         = "Compound_name"
	ColScore        = "Metabolite_score"
	ColSimMean      = "Sim_Mean"
	ColSimStd       = "Sim_StD"
	ColSignificance = "Significance"
	ColPValue       = "p_value"
)

// RunDirName is the directory a run named name writes into.
func RunDirName(name string) string { return name + runDirSuffix }

// ScoreFileName is the score table name for a run.
func ScoreFileName(name string, simulated bool) string {
	if simulated {
		return name + ".monte_carlo.score.txt"
	}
	return name + ".score.txt"
}

// TopologyFileName is the per-compound degree table name.
func TopologyFileName(name string) string { return name + ".topology.txt" }

// MappingFileName is the per-enzyme transcript table name.
func MappingFileName(name string) string { return name + ".mapping.txt" }

// RunDir is an output directory for one named run.
type RunDir struct {
	Path string
	Name string
}

// Create makes (or reuses) the run directory for name under parent.
func Create(parent, name string) (*RunDir, error) {
	path := filepath.Join(parent, RunDirName(name))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &RunDir{Path: path, Name: name}, nil
}

// WriteNetwork writes the edge list and the node lists.
func (d *RunDir) WriteNetwork(n *network.Network) error {
	if err := d.write(GraphFile, func(w *bufio.Writer) {
		for _, e := range n.Edges {
			row(w, e.From, e.To)
		}
	}); err != nil {
		return err
	}
	if err := d.write(CompoundList, lines(n.Compounds)); err != nil {
		return err
	}
	return d.write(EnzymeList, lines(n.Enzymes))
}

// WriteKeyErrors logs every id that failed a lookup plus a summary.
func (d *RunDir) WriteKeyErrors(report network.TranslationReport, misses []score.NameMiss) error {
	return d.write(KeyErrorLog, func(w *bufio.Writer) {
		for _, m := range report.Misses {
			fmt.Fprintf(w, "WARNING: %s\n", m.Error())
		}
		for _, m := range misses {
			fmt.Fprintf(w, "WARNING: %s\n", m.Error())
		}
		fmt.Fprintf(w, "\nEnzymes translated: %d of %d\n", report.EnzymesTranslated(), report.EnzymesTried)
		fmt.Fprintf(w, "Reactions translated: %d of %d\n", report.ReactionsTranslated(), report.ReactionsTried)
		fmt.Fprintf(w, "Compound names missing: %d\n", len(misses))
	})
}

// WriteScores writes an unsimulated score table and returns its file name.
func (d *RunDir) WriteScores(t *score.Table) (string, error) {
	name := ScoreFileName(d.Name, false)
	return name, d.write(name, func(w *bufio.Writer) {
		if t.Mode == score.ModeDirectionalSqrt {
			row(w, ColCompound, ColName, "Input_score", "Output_score")
			for _, r := range t.Records {
				row(w, r.Compound, r.Name,
					direction(r.InputScore, r.InputIncluded),
					direction(r.OutputScore, r.OutputIncluded))
			}
			return
		}
		row(w, ColCompound, ColName, ColScore)
		for _, r := range t.Records {
			row(w, r.Compound, r.Name, num(r.Score))
		}
	})
}

// WriteAnnotated writes a simulated score table and returns its file name.
func (d *RunDir) WriteAnnotated(mode score.Mode, rows []significance.Row) (string, error) {
	name := ScoreFileName(d.Name, true)
	return name, d.write(name, func(w *bufio.Writer) {
		if mode == score.ModeDirectionalSqrt {
			row(w, ColCompound, ColName,
				"Input_score", "Input_Sim_Mean", "Input_Sim_StD", "Input_Significance",
				"Output_score", "Output_Sim_Mean", "Output_Sim_StD", "Output_Significance")
			for _, r := range rows {
				row(w, r.Compound, r.Name,
					direction(r.InputScore, r.InputIncluded), num(r.Interval.InputMean), num(r.Interval.InputStd), r.InputTier.String(),
					direction(r.OutputScore, r.OutputIncluded), num(r.Interval.OutputMean), num(r.Interval.OutputStd), r.OutputTier.String())
			}
			return
		}
		row(w, ColCompound, ColName, ColScore, ColSimMean, ColSimStd, ColSignificance)
		for _, r := range rows {
			row(w, r.Compound, r.Name, num(r.Score), num(r.Interval.Mean), num(r.Interval.Std), r.Tier.String())
		}
	})
}

// WriteTopology writes the degree of every compound in the network.
func (d *RunDir) WriteTopology(aggs score.Aggregates, names score.NameLookup) error {
	return d.write(TopologyFileName(d.Name), func(w *bufio.Writer) {
		row(w, ColCompound, ColName, "Indegree", "Outdegree")
		for _, id := range aggs.IDs() {
			a := aggs[id]
			name := id
			if names != nil {
				if n, ok := names.CompoundName(id); ok {
					name = n
				}
			}
			row(w, id, name, strconv.Itoa(a.Indegree), strconv.Itoa(a.Outdegree))
		}
	})
}

// WriteMapping writes the cumulative transcript value of every enzyme.
func (d *RunDir) WriteMapping(t *expression.Table) error {
	return d.write(MappingFileName(d.Name), func(w *bufio.Writer) {
		row(w, "KO_code", "Transcripts")
		for _, e := range t.Enzymes() {
			v, _ := t.Value(e)
			row(w, e, num(v))
		}
	})
}

func (d *RunDir) write(name string, fill func(w *bufio.Writer)) error {
	f, err := os.Create(filepath.Join(d.Path, name))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fill(w)
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

func lines(items []string) func(w *bufio.Writer) {
	return func(w *bufio.Writer) {
		for _, it := range items {
			w.WriteString(it)
			w.WriteByte('\n')
		}
	}
}

func row(w *bufio.Writer, fields ...string) {
	w.WriteString(strings.Join(fields, "\t"))
	w.WriteByte('\n')
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// direction renders a directional score, or NA when it was filtered out.
func direction(v float64, included bool) string {
	if !included {
		return "NA"
	}
	return num(v)
}
