// Package network translates enzymes into a directed bipartite graph of
// enzymes and the compounds their reactions consume and produce.
package network

import (
	"context"
	"log/slog"
	"sort"

	"github.com/efebarandurmaz/bigsmall/internal/reference"
)

// Build translates enzymes through store into a Network. Missing enzyme or
// reaction entries are logged, counted and skipped.
func Build(ctx context.Context, enzymes []string, store reference.Store, logger *slog.Logger) (*Network, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := newBuilder()
	for _, enzyme := range enzymes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.translate(enzyme, store, logger)
	}

	n := b.finish()
	logger.Info("network built",
		"enzymes", len(n.Enzymes),
		"compounds", len(n.Compounds),
		"edges", len(n.Edges),
		"enzymes_failed", n.Report.EnzymesFailed,
		"reactions_failed", n.Report.ReactionsFailed)
	return n, nil
}

type builder struct {
	enzymes   []string
	seen      map[string]bool
	edges     map[Edge]struct{}
	inputs    map[string]map[string]struct{}
	outputs   map[string]map[string]struct{}
	compounds map[string]struct{}
	report    TranslationReport
}

func newBuilder() *builder {
	return &builder{
		seen:      make(map[string]bool),
		edges:     make(map[Edge]struct{}),
		inputs:    make(map[string]map[string]struct{}),
		outputs:   make(map[string]map[string]struct{}),
		compounds: make(map[string]struct{}),
	}
}

func (b *builder) translate(enzyme string, store reference.Store, logger *slog.Logger) {
	b.report.EnzymesTried++
	if !b.seen[enzyme] {
		b.seen[enzyme] = true
		b.enzymes = append(b.enzymes, enzyme)
		b.inputs[enzyme] = make(map[string]struct{})
		b.outputs[enzyme] = make(map[string]struct{})
	}

	reactions, ok := store.Reactions(enzyme)
	if !ok {
		b.miss(logger, LookupMiss{Kind: MissEnzyme, ID: enzyme})
		b.report.EnzymesFailed++
		return
	}

	for _, rid := range reactions {
		b.report.ReactionsTried++
		equations, ok := store.Equations(rid)
		if !ok {
			b.miss(logger, LookupMiss{Kind: MissReaction, ID: rid, Enzyme: enzyme})
			b.report.ReactionsFailed++
			continue
		}
		for _, eq := range equations {
			b.report.Equations++
			b.addReaction(enzyme, eq)
		}
	}
}

func (b *builder) miss(logger *slog.Logger, m LookupMiss) {
	logger.Warn("omitting unmapped id", "kind", string(m.Kind), "id", m.ID, "enzyme", m.Enzyme)
	b.report.Misses = append(b.report.Misses, m)
}

// addReaction registers one equation. A reversible equation makes every
// participant both a substrate and a product of the enzyme.
func (b *builder) addReaction(enzyme string, r reference.Reaction) {
	for _, c := range r.Inputs {
		b.consume(enzyme, c)
		if r.Reversible {
			b.produce(enzyme, c)
		}
	}
	for _, c := range r.Outputs {
		b.produce(enzyme, c)
		if r.Reversible {
			b.consume(enzyme, c)
		}
	}
}

func (b *builder) consume(enzyme, compound string) {
	b.edges[Edge{From: compound, To: enzyme, Kind: EdgeSubstrate}] = struct{}{}
	b.inputs[enzyme][compound] = struct{}{}
	b.compounds[compound] = struct{}{}
}

func (b *builder) produce(enzyme, compound string) {
	b.edges[Edge{From: enzyme, To: compound, Kind: EdgeProduct}] = struct{}{}
	b.outputs[enzyme][compound] = struct{}{}
	b.compounds[compound] = struct{}{}
}

func (b *builder) finish() *Network {
	n := &Network{
		Enzymes:   b.enzymes,
		Compounds: sortedSet(b.compounds),
		Edges:     make([]Edge, 0, len(b.edges)),
		Inputs:    make(map[string][]string, len(b.inputs)),
		Outputs:   make(map[string][]string, len(b.outputs)),
		Report:    b.report,
	}
	for e := range b.edges {
		n.Edges = append(n.Edges, e)
	}
	sort.Slice(n.Edges, func(i, j int) bool {
		if n.Edges[i].From != n.Edges[j].From {
			return n.Edges[i].From < n.Edges[j].From
		}
		return n.Edges[i].To < n.Edges[j].To
	})
	for enzyme, set := range b.inputs {
		n.Inputs[enzyme] = sortedSet(set)
	}
	for enzyme, set := range b.outputs {
		n.Outputs[enzyme] = sortedSet(set)
	}
	n.computeStats()
	return n
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// computeStats computes graph metrics
func (n *Network) computeStats() {
	n.Stats = Stats{
		TotalEdges:    len(n.Edges),
		EnzymeCount:   len(n.Enzymes),
		CompoundCount: len(n.Compounds),
	}
	n.Stats.TotalNodes = n.Stats.EnzymeCount + n.Stats.CompoundCount

	fanOut := make(map[string]int)
	fanIn := make(map[string]int)
	for _, e := range n.Edges {
		fanOut[e.From]++
		fanIn[e.To]++
	}

	// Iterate in sorted order so ties resolve the same way every run.
	for _, id := range sortedKeys(fanOut) {
		if fanOut[id] > n.Stats.MaxFanOut {
			n.Stats.MaxFanOut = fanOut[id]
			n.Stats.HotspotNode = id
		}
	}
	for _, count := range fanIn {
		if count > n.Stats.MaxFanIn {
			n.Stats.MaxFanIn = count
		}
	}

	n.Stats.ConnectedComponents = n.countComponents()
}

// countComponents counts weakly connected components via union-find over
// nodes that have at least one edge.
func (n *Network) countComponents() int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for _, e := range n.Edges {
		union(e.From, e.To)
	}

	roots := make(map[string]bool)
	for id := range parent {
		roots[find(id)] = true
	}
	return len(roots)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
