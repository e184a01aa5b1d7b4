package simulation

import (
	"math"

	"github.com/efebarandurmaz/bigsmall/internal/score"
)

// Accumulator keeps a streaming mean and sum of squared deviations
// (Welford). Its zero value is ready to use.
type Accumulator struct {
	N    int64   `json:"n"`
	Mean float64 `json:"mean"`
	M2   float64 `json:"m2"`
}

// Add folds one observation in.
func (a *Accumulator) Add(x float64) {
	a.N++
	delta := x - a.Mean
	a.Mean += delta / float64(a.N)
	a.M2 += delta * (x - a.Mean)
}

// Merge folds another accumulator in using Chan's parallel formula.
func (a *Accumulator) Merge(o Accumulator) {
	if o.N == 0 {
		return
	}
	if a.N == 0 {
		*a = o
		return
	}
	n := a.N + o.N
	delta := o.Mean - a.Mean
	a.Mean += delta * float64(o.N) / float64(n)
	a.M2 += o.M2 + delta*delta*float64(a.N)*float64(o.N)/float64(n)
	a.N = n
}

// Std is the population standard deviation, 0 for fewer than two samples.
func (a Accumulator) Std() float64 {
	if a.N < 2 {
		return 0
	}
	return math.Sqrt(a.M2 / float64(a.N))
}

// CompoundStats accumulates every score a compound gets across iterations.
type CompoundStats struct {
	Score  Accumulator `json:"score"`
	Input  Accumulator `json:"input"`
	Output Accumulator `json:"output"`
}

func (c *CompoundStats) add(v score.Values) {
	c.Score.Add(v.Score)
	c.Input.Add(v.Input)
	c.Output.Add(v.Output)
}

func (c *CompoundStats) merge(o CompoundStats) {
	c.Score.Merge(o.Score)
	c.Input.Merge(o.Input)
	c.Output.Merge(o.Output)
}

// Partial is the serialisable state of a contiguous range of iterations.
// Partials from disjoint ranges combine with Merge.
type Partial struct {
	Mode       score.Mode               `json:"mode"`
	Iterations int                      `json:"iterations"`
	Compounds  map[string]CompoundStats `json:"compounds"`
}

func newPartial(mode score.Mode) *Partial {
	return &Partial{Mode: mode, Compounds: make(map[string]CompoundStats)}
}

func (p *Partial) observe(aggs score.Aggregates) {
	for id, a := range aggs {
		s := p.Compounds[id]
		s.add(score.Evaluate(a, p.Mode))
		p.Compounds[id] = s
	}
	p.Iterations++
}

// Merge folds o into p.
func (p *Partial) Merge(o *Partial) {
	if o == nil {
		return
	}
	if p.Compounds == nil {
		p.Compounds = make(map[string]CompoundStats, len(o.Compounds))
	}
	if p.Mode == "" {
		p.Mode = o.Mode
	}
	for id, s := range o.Compounds {
		cur := p.Compounds[id]
		cur.merge(s)
		p.Compounds[id] = cur
	}
	p.Iterations += o.Iterations
}

// Merge combines partials in order into a new Partial.
func Merge(parts ...*Partial) *Partial {
	out := &Partial{Compounds: make(map[string]CompoundStats)}
	for _, p := range parts {
		out.Merge(p)
	}
	return out
}
