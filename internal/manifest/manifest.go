// Package manifest records the parameters of a scoring run next to its
// output so later commands can identify and reuse it.
package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ParametersFile is the human-readable manifest.
	ParametersFile = "parameters.txt"
	// StateFile is the machine-readable manifest.
	StateFile = "run.json"
	// DefaultName is the graph name used when none is given.
	DefaultName = "organism"

	stateVersion = "1.0.0"
)

// Manifest describes one run directory.
type Manifest struct {
	Version          string       `json:"version"`
	CreatedAt        time.Time    `json:"created_at"`
	ExpressionFile   string       `json:"expression_file"`
	GraphName        string       `json:"graph_name"`
	EnzymeNodes      int          `json:"enzyme_nodes"`
	CompoundNodes    int          `json:"compound_nodes"`
	Iterations       int          `json:"iterations"`
	Mode             string       `json:"mode"`
	MinScore         float64      `json:"min_score"`
	MinDegree        int          `json:"min_degree"`
	Seed             uint64       `json:"seed,omitempty"`
	ReferenceVersion string       `json:"reference_version"`
	ScoreFile        string       `json:"score_file"`
	Fingerprint      *Fingerprint `json:"fingerprint,omitempty"`
}

// New creates a manifest stamped with the current time.
func New(expressionFile, graphName string) *Manifest {
	return &Manifest{
		Version:        stateVersion,
		CreatedAt:      time.Now().UTC(),
		ExpressionFile: expressionFile,
		GraphName:      graphName,
	}
}

// Simulated reports whether the run included a Monte Carlo simulation.
func (m *Manifest) Simulated() bool { return m.Iterations > 1 }

// OrganismName is the graph name, or the expression file's base name when
// the graph kept the default name.
func (m *Manifest) OrganismName() string {
	if m.GraphName != "" && m.GraphName != DefaultName {
		return m.GraphName
	}
	if m.ExpressionFile != "" {
		base := filepath.Base(m.ExpressionFile)
		if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" {
			return stem
		}
	}
	return DefaultName
}

// Settings lists the values that change a run's output, for fingerprinting.
func (m *Manifest) Settings() map[string]string {
	return map[string]string{
		"graph_name":        m.GraphName,
		"iterations":        strconv.Itoa(m.Iterations),
		"mode":              m.Mode,
		"min_score":         strconv.FormatFloat(m.MinScore, 'g', -1, 64),
		"min_degree":        strconv.Itoa(m.MinDegree),
		"seed":              strconv.FormatUint(m.Seed, 10),
		"reference_version": m.ReferenceVersion,
	}
}

// Save writes both manifest files into dir.
func (m *Manifest) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, StateFile), data, 0o644); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, ParametersFile))
	if err != nil {
		return err
	}
	if err := m.WriteParameters(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Parameter labels shared by WriteParameters and ParseParameters.
const (
	labelExpression = "KO expression file"
	labelGraph      = "Graph name"
	labelEnzymes    = "KEGG ortholog nodes"
	labelCompounds  = "Substrate nodes"
	labelIterations = "Monte Carlo simulation iterations"
	labelMode       = "Scoring mode"
	labelMinScore   = "Minimum score"
	labelMinDegree  = "Minimum degree"
	labelSeed       = "Random seed"
	labelReference  = "Reference version"
	labelInputHash  = "Expression SHA-256"
	labelScoreFile  = "Score file"
)

// WriteParameters renders the human-readable manifest.
func (m *Manifest) WriteParameters(w io.Writer) error {
	iters := "none"
	if m.Simulated() {
		iters = strconv.Itoa(m.Iterations)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "User Defined Parameters")
	fmt.Fprintf(bw, "%s: %s\n", labelExpression, m.ExpressionFile)
	fmt.Fprintf(bw, "%s: %s\n", labelGraph, m.GraphName)
	fmt.Fprintf(bw, "%s: %d\n", labelEnzymes, m.EnzymeNodes)
	fmt.Fprintf(bw, "%s: %d\n", labelCompounds, m.CompoundNodes)
	fmt.Fprintf(bw, "%s: %s\n", labelIterations, iters)
	fmt.Fprintf(bw, "%s: %s\n", labelMode, m.Mode)
	fmt.Fprintf(bw, "%s: %g\n", labelMinScore, m.MinScore)
	fmt.Fprintf(bw, "%s: %d\n", labelMinDegree, m.MinDegree)
	if m.Simulated() {
		fmt.Fprintf(bw, "%s: %d\n", labelSeed, m.Seed)
	}
	fmt.Fprintf(bw, "%s: %s\n", labelReference, m.ReferenceVersion)
	if m.Fingerprint != nil {
		fmt.Fprintf(bw, "%s: %s\n", labelInputHash, m.Fingerprint.InputHash)
	}
	fmt.Fprintf(bw, "%s: %s\n", labelScoreFile, m.ScoreFile)
	return bw.Flush()
}

// ParseParameters reads a parameters.txt. Unknown lines are ignored so
// files written by older releases still load.
func ParseParameters(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		label, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		var err error
		switch strings.TrimSpace(label) {
		case labelExpression:
			m.ExpressionFile = value
		case labelGraph:
			m.GraphName = value
		case labelEnzymes:
			m.EnzymeNodes, err = strconv.Atoi(value)
		case labelCompounds:
			m.CompoundNodes, err = strconv.Atoi(value)
		case labelIterations:
			m.Iterations = 1
			if value != "none" {
				m.Iterations, err = strconv.Atoi(value)
			}
		case labelMode:
			m.Mode = value
		case labelMinScore:
			m.MinScore, err = strconv.ParseFloat(value, 64)
		case labelMinDegree:
			m.MinDegree, err = strconv.Atoi(value)
		case labelSeed:
			m.Seed, err = strconv.ParseUint(value, 10, 64)
		case labelReference:
			m.ReferenceVersion = value
		case labelInputHash:
			m.Fingerprint = &Fingerprint{InputHash: value}
		case labelScoreFile:
			m.ScoreFile = value
		}
		if err != nil {
			return nil, fmt.Errorf("parameters: %s: %w", label, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if m.GraphName == "" && m.ExpressionFile == "" {
		return nil, errors.New("parameters: no graph name or expression file")
	}
	return m, nil
}

// Load reads the manifest of a run directory, preferring the JSON state and
// falling back to parameters.txt. It returns an error wrapping
// os.ErrNotExist when neither is present.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFile))
	switch {
	case err == nil:
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", StateFile, err)
		}
		return &m, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, ParametersFile))
	if err != nil {
		return nil, fmt.Errorf("no run manifest in %s: %w", dir, err)
	}
	defer f.Close()
	return ParseParameters(f)
}
