// Package simulation estimates the null distribution of metabolite scores by
// repeatedly assigning randomly drawn expression values to the network's
// enzymes and rescoring.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/bigsmall/internal/score"
)

// ErrNoIterations is returned when fewer than one iteration is requested.
var ErrNoIterations = errors.New("simulation: iterations must be at least 1")

// SamplingError reports a draw that cannot be made without replacement.
type SamplingError struct {
	Sample     int
	Population int
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("cannot draw %d values without replacement from a population of %d; use more expression records or fewer enzymes",
		e.Sample, e.Population)
}

// Params configure a simulation.
type Params struct {
	Iterations int
	// Workers defaults to GOMAXPROCS. It never changes the draws.
	Workers int
	// Seed 0 picks a random seed; the chosen value is reported in Intervals.
	Seed     uint64
	Mode     score.Mode
	Progress func(percent int)
}

// Interval is the null distribution summary of one compound. Directional
// runs fill the Input/Output fields, combined runs fill Mean/Std.
type Interval struct {
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	InputMean  float64 `json:"input_mean,omitempty"`
	InputStd   float64 `json:"input_std,omitempty"`
	OutputMean float64 `json:"output_mean,omitempty"`
	OutputStd  float64 `json:"output_std,omitempty"`
}

// Intervals is the simulation result for every compound.
type Intervals struct {
	Mode       score.Mode          `json:"mode"`
	Iterations int                 `json:"iterations"`
	Seed       uint64              `json:"seed"`
	Compounds  map[string]Interval `json:"compounds"`
}

// Get returns the interval of one compound.
func (iv *Intervals) Get(compound string) (Interval, bool) {
	v, ok := iv.Compounds[compound]
	return v, ok
}

// ResolveSeed replaces a zero seed with a random one.
func ResolveSeed(seed uint64) uint64 {
	for seed == 0 {
		seed = rand.Uint64()
	}
	return seed
}

// Validate checks that a simulation of p over population and enzymes can run.
func Validate(p Params, population []float64, enzymes []string) error {
	if p.Iterations < 1 {
		return ErrNoIterations
	}
	if _, err := score.ParseMode(string(p.Mode)); err != nil {
		return err
	}
	if len(enzymes) > len(population) {
		return &SamplingError{Sample: len(enzymes), Population: len(population)}
	}
	return nil
}

// Run performs p.Iterations random draws across p.Workers goroutines and
// summarises each compound's scores.
func Run(ctx context.Context, p Params, population []float64, enzymes []string, topo score.Topology) (*Intervals, error) {
	if err := Validate(p, population, enzymes); err != nil {
		return nil, err
	}
	p.Seed = ResolveSeed(p.Seed)

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > p.Iterations {
		workers = p.Iterations
	}

	prog := newProgress(p.Iterations+len(topo.CompoundIDs()), p.Progress)
	parts := make([]*Partial, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start, end := ChunkBounds(p.Iterations, workers, w)
		g.Go(func() error {
			part, err := runChunk(gctx, p, population, enzymes, topo, start, end, prog)
			if err != nil {
				return err
			}
			parts[w] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(parts...)
	merged.Mode = p.Mode
	return finalize(merged, p.Seed, prog), nil
}

// RunChunk runs iterations [start, end) on the calling goroutine. Iteration i
// draws from an RNG seeded with (p.Seed, i), so chunks computed anywhere
// merge into the same result as a local Run with that seed.
func RunChunk(ctx context.Context, p Params, population []float64, enzymes []string, topo score.Topology, start, end int) (*Partial, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("simulation: invalid iteration range [%d, %d)", start, end)
	}
	if len(enzymes) > len(population) {
		return nil, &SamplingError{Sample: len(enzymes), Population: len(population)}
	}
	return runChunk(ctx, p, population, enzymes, topo, start, end, newProgress(end-start, p.Progress))
}

// Finalize turns merged partial state into rounded intervals.
func Finalize(p *Partial, seed uint64) *Intervals {
	return finalize(p, seed, nil)
}

func runChunk(ctx context.Context, p Params, population []float64, enzymes []string, topo score.Topology, start, end int, prog *progress) (*Partial, error) {
	mode, err := score.ParseMode(string(p.Mode))
	if err != nil {
		return nil, err
	}
	part := newPartial(mode)
	buf := make([]float64, len(population))
	values := make(map[string]float64, len(enzymes))

	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewPCG(p.Seed, uint64(i)))
		copy(buf, population)
		draw(rng, buf, len(enzymes))
		for k, e := range enzymes {
			values[e] = buf[k]
		}
		aggs, err := score.Compile(values, topo)
		if err != nil {
			return nil, err
		}
		part.observe(aggs)
		prog.step()
	}
	return part, nil
}

// draw moves a uniform sample of n elements without replacement into buf[:n]
// (partial Fisher-Yates).
func draw(rng *rand.Rand, buf []float64, n int) {
	for k := 0; k < n; k++ {
		j := k + rng.IntN(len(buf)-k)
		buf[k], buf[j] = buf[j], buf[k]
	}
}

func finalize(p *Partial, seed uint64, prog *progress) *Intervals {
	out := &Intervals{
		Mode:       p.Mode,
		Iterations: p.Iterations,
		Seed:       seed,
		Compounds:  make(map[string]Interval, len(p.Compounds)),
	}
	ids := make([]string, 0, len(p.Compounds))
	for id := range p.Compounds {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := p.Compounds[id]
		var iv Interval
		if p.Mode == score.ModeDirectionalSqrt {
			iv.InputMean = score.Round3(s.Input.Mean)
			iv.InputStd = score.Round3(s.Input.Std())
			iv.OutputMean = score.Round3(s.Output.Mean)
			iv.OutputStd = score.Round3(s.Output.Std())
		} else {
			iv.Mean = score.Round3(s.Score.Mean)
			iv.Std = score.Round3(s.Score.Std())
		}
		out.Compounds[id] = iv
		prog.step()
	}
	prog.done()
	return out
}

// ChunkBounds returns the w-th of workers contiguous ranges covering n
// iterations.
func ChunkBounds(n, workers, w int) (int, int) {
	size, rem := n/workers, n%workers
	start := w*size + min(w, rem)
	end := start + size
	if w < rem {
		end++
	}
	return start, end
}

// progress reports a non-decreasing percentage over a fixed number of steps.
type progress struct {
	mu    sync.Mutex
	fn    func(int)
	total int
	count int
	last  int
}

func newProgress(total int, fn func(int)) *progress {
	return &progress{fn: fn, total: total, last: -1}
}

func (p *progress) step() {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	pct := 100
	if p.total > 0 && p.count < p.total {
		pct = p.count * 100 / p.total
	}
	if pct > p.last {
		p.last = pct
		p.fn(pct)
	}
}

func (p *progress) done() {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last < 100 {
		p.last = 100
		p.fn(100)
	}
}
