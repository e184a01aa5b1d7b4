package graph

import (
	"context"

	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
)

// Repository provides graph storage for scored metabolic networks.
type Repository interface {
	// StoreNetwork persists the enzyme and compound nodes and their edges
	// under the run name.
	StoreNetwork(ctx context.Context, run string, n *network.Network, names score.NameLookup) error
	// StoreScores attaches scores, and intervals when rows is non-nil, to
	// the compound nodes of a run.
	StoreScores(ctx context.Context, run string, table *score.Table, rows []significance.Row) error
	// QueryProducers returns the enzymes that produce the given compound.
	QueryProducers(ctx context.Context, run, compound string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
