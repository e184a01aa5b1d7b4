// Package score aggregates enzyme expression around each compound node and
// turns it into an importance score.
package score

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// Mode selects the scoring formula.
type Mode string

const (
	// ModeCombinedLog reports sign(d)*log2|d| of the input/output difference.
	ModeCombinedLog Mode = "combined_log"
	// ModeDirectionalSqrt reports sqrt(mass)/degree per direction.
	ModeDirectionalSqrt Mode = "directional_sqrt"
)

// ParseMode validates a mode name. The empty string selects ModeCombinedLog.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCombinedLog:
		return ModeCombinedLog, nil
	case ModeDirectionalSqrt:
		return ModeDirectionalSqrt, nil
	}
	return "", fmt.Errorf("%w %q (want %s or %s)", ErrUnknownMode, s, ModeCombinedLog, ModeDirectionalSqrt)
}

// ErrUnknownMode is returned by ParseMode for an unsupported mode name.
var ErrUnknownMode = errors.New("unknown scoring mode")

// ErrMissingExpression is returned when the network references an enzyme
// that has no expression value.
var ErrMissingExpression = errors.New("score: enzyme has no expression value")

// Topology is the part of the enzyme/compound network scoring depends on.
type Topology interface {
	EnzymeIDs() []string
	CompoundIDs() []string
	InputsOf(enzyme string) []string
	OutputsOf(enzyme string) []string
}

// NameLookup resolves compound display names.
type NameLookup interface {
	CompoundName(compound string) (string, bool)
}

// Aggregate is the transcript mass and degree gathered around one compound.
//
// Mass from enzymes that consume the compound lands in InputMass and counts
// toward Outdegree (the edge leaves the compound); mass from enzymes that
// produce it lands in OutputMass and counts toward Indegree.
type Aggregate struct {
	InputMass  float64 `json:"input_mass"`
	OutputMass float64 `json:"output_mass"`
	Indegree   int     `json:"indegree"`
	Outdegree  int     `json:"outdegree"`
}

// Aggregates maps compound id to its Aggregate.
type Aggregates map[string]Aggregate

// Compile sums expression values into per-compound aggregates. Every
// compound of topo gets an entry, even when nothing touches it.
func Compile(values map[string]float64, topo Topology) (Aggregates, error) {
	aggs := make(Aggregates, len(topo.CompoundIDs()))
	for _, c := range topo.CompoundIDs() {
		aggs[c] = Aggregate{}
	}
	for _, enzyme := range topo.EnzymeIDs() {
		v, ok := values[enzyme]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingExpression, enzyme)
		}
		for _, c := range topo.InputsOf(enzyme) {
			a := aggs[c]
			a.InputMass += v
			a.Outdegree++
			aggs[c] = a
		}
		for _, c := range topo.OutputsOf(enzyme) {
			a := aggs[c]
			a.OutputMass += v
			a.Indegree++
			aggs[c] = a
		}
	}
	return aggs, nil
}

// IDs returns the compound ids in sorted order.
func (a Aggregates) IDs() []string {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InputScore is InputMass per outgoing edge, or 0 without outgoing edges.
func (a Aggregate) InputScore() float64 {
	if a.Outdegree == 0 {
		return 0
	}
	return a.InputMass / float64(a.Outdegree)
}

// OutputScore is OutputMass per incoming edge, or 0 without incoming edges.
func (a Aggregate) OutputScore() float64 {
	if a.Indegree == 0 {
		return 0
	}
	return a.OutputMass / float64(a.Indegree)
}

// Values are the scores computed for one compound.
type Values struct {
	Score  float64 `json:"score"`
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// Evaluate computes the unfiltered scores of a in the given mode.
func Evaluate(a Aggregate, mode Mode) Values {
	if mode == ModeDirectionalSqrt {
		return Values{
			Input:  Round3(sqrtPerDegree(a.InputMass, a.Outdegree)),
			Output: Round3(sqrtPerDegree(a.OutputMass, a.Indegree)),
		}
	}
	in, out := a.InputScore(), a.OutputScore()
	return Values{
		Score:  Round3(Combined(in - out)),
		Input:  Round3(in),
		Output: Round3(out),
	}
}

func sqrtPerDegree(mass float64, degree int) float64 {
	if degree == 0 {
		return 0
	}
	return math.Sqrt(mass) / float64(degree)
}

// Combined maps an input/output difference to sign(d)*log2|d|, treating
// differences with magnitude below 1 as no signal.
func Combined(d float64) float64 {
	switch {
	case d > -1 && d < 1:
		return 0
	case d <= -1:
		return -math.Log2(-d)
	default:
		return math.Log2(d)
	}
}

// Round3 rounds half away from zero to three decimals.
func Round3(x float64) float64 {
	r := math.Round(x*1000) / 1000
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

// Options control Calculate.
type Options struct {
	Mode Mode
	// MinScore and MinDegree gate directional scores; a direction is kept
	// only when its score and its degree both reach the minimum.
	MinScore  float64
	MinDegree int
	Logger    *slog.Logger
}

// NameMiss records a compound without a display name. The raw id is used.
type NameMiss struct {
	Compound string `json:"compound"`
}

func (m NameMiss) Error() string {
	return fmt.Sprintf("%s not found in compound name table", m.Compound)
}

// Record is the scored row for one compound.
type Record struct {
	Compound       string  `json:"compound"`
	Name           string  `json:"name"`
	Score          float64 `json:"score"`
	InputScore     float64 `json:"input_score"`
	OutputScore    float64 `json:"output_score"`
	InputIncluded  bool    `json:"input_included,omitempty"`
	OutputIncluded bool    `json:"output_included,omitempty"`
	Indegree       int     `json:"indegree"`
	Outdegree      int     `json:"outdegree"`
}

// Table is the scored result of one run, sorted by compound id.
type Table struct {
	Mode       Mode       `json:"mode"`
	Records    []Record   `json:"records"`
	NameMisses []NameMiss `json:"name_misses,omitempty"`
}

// Calculate scores every aggregate. In directional mode compounds with no
// direction passing the thresholds are left out.
func Calculate(aggs Aggregates, names NameLookup, opts Options) (*Table, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Table{Mode: mode, Records: make([]Record, 0, len(aggs))}
	for _, id := range aggs.IDs() {
		a := aggs[id]
		v := Evaluate(a, mode)
		rec := Record{
			Compound:    id,
			Score:       v.Score,
			InputScore:  v.Input,
			OutputScore: v.Output,
			Indegree:    a.Indegree,
			Outdegree:   a.Outdegree,
		}
		if mode == ModeDirectionalSqrt {
			rec.InputIncluded = v.Input >= opts.MinScore && a.Outdegree >= opts.MinDegree
			rec.OutputIncluded = v.Output >= opts.MinScore && a.Indegree >= opts.MinDegree
			if !rec.InputIncluded && !rec.OutputIncluded {
				continue
			}
		}
		rec.Name = resolveName(id, names, t, logger)
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func resolveName(id string, names NameLookup, t *Table, logger *slog.Logger) string {
	if names != nil {
		if name, ok := names.CompoundName(id); ok {
			return name
		}
	}
	miss := NameMiss{Compound: id}
	logger.Error("compound name lookup failed", "compound", id)
	t.NameMisses = append(t.NameMisses, miss)
	return id
}

// Score runs Compile and Calculate.
func Score(values map[string]float64, topo Topology, names NameLookup, opts Options) (*Table, Aggregates, error) {
	aggs, err := Compile(values, topo)
	if err != nil {
		return nil, nil, err
	}
	t, err := Calculate(aggs, names, opts)
	if err != nil {
		return nil, nil, err
	}
	return t, aggs, nil
}
