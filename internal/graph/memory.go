package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
)

// CompoundNode is a stored compound with its attached scores.
type CompoundNode struct {
	ID     string
	Name   string
	Score  float64
	Mean   float64
	Std    float64
	Tier   string
	Scored bool

	// Set for directional runs.
	Input  Side
	Output Side
}

// Side is the interval and tier of one direction of a compound.
type Side struct {
	Mean float64
	Std  float64
	Tier string
}

type memoryRun struct {
	enzymes   map[string]bool
	compounds map[string]*CompoundNode
	producers map[string][]string
}

// MemoryRepository keeps runs in process memory. It backs tests and runs
// without a graph database.
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[string]*memoryRun
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{runs: make(map[string]*memoryRun)}
}

func (r *MemoryRepository) StoreNetwork(ctx context.Context, run string, n *network.Network, names score.NameLookup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mr := &memoryRun{
		enzymes:   make(map[string]bool, len(n.Enzymes)),
		compounds: make(map[string]*CompoundNode, len(n.Compounds)),
		producers: make(map[string][]string),
	}
	for _, e := range n.Enzymes {
		mr.enzymes[e] = true
	}
	for _, c := range n.Compounds {
		node := &CompoundNode{ID: c, Name: c}
		if names != nil {
			if name, ok := names.CompoundName(c); ok {
				node.Name = name
			}
		}
		mr.compounds[c] = node
	}
	for _, e := range n.Edges {
		if e.Kind == network.EdgeProduct {
			mr.producers[e.To] = append(mr.producers[e.To], e.From)
		}
	}

	r.mu.Lock()
	r.runs[run] = mr
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) StoreScores(ctx context.Context, run string, table *score.Table, rows []significance.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	mr, ok := r.runs[run]
	if !ok {
		return ErrRunNotFound
	}
	for _, p := range ScoreParams(table, rows) {
		node, ok := mr.compounds[p["id"].(string)]
		if !ok {
			continue
		}
		node.Scored = true
		node.Score = p["score"].(float64)
		if v, ok := p["mean"].(float64); ok {
			node.Mean = v
			node.Std = p["std"].(float64)
			node.Tier = p["tier"].(string)
		}
		if v, ok := p["output_mean"].(float64); ok {
			node.Input = Side{Mean: p["input_mean"].(float64), Std: p["input_std"].(float64), Tier: p["input_tier"].(string)}
			node.Output = Side{Mean: v, Std: p["output_std"].(float64), Tier: p["output_tier"].(string)}
		}
	}
	return nil
}

func (r *MemoryRepository) QueryProducers(ctx context.Context, run, compound string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mr, ok := r.runs[run]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := append([]string(nil), mr.producers[compound]...)
	sort.Strings(out)
	return out, nil
}

// Compound returns a stored compound node.
func (r *MemoryRepository) Compound(run, id string) (CompoundNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mr, ok := r.runs[run]
	if !ok {
		return CompoundNode{}, false
	}
	node, ok := mr.compounds[id]
	if !ok {
		return CompoundNode{}, false
	}
	return *node, true
}

func (r *MemoryRepository) Close(ctx context.Context) error { return nil }

var _ Repository = (*MemoryRepository)(nil)
