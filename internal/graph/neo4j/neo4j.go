package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/bigsmall/internal/graph"
	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
)

// Every node carries the run name so several organisms can share a database.
const (
	clearRun = "MATCH (n {run: $run}) WHERE n:Enzyme OR n:Compound DETACH DELETE n"

	mergeEnzymes = "UNWIND $enzymes AS id " +
		"MERGE (:Enzyme {id: id, run: $run})"

	mergeCompounds = "UNWIND $compounds AS c " +
		"MERGE (n:Compound {id: c.id, run: $run}) SET n.name = c.name"

	mergeSubstrates = "UNWIND $edges AS e " +
		"MATCH (c:Compound {id: e.compound, run: $run}) " +
		"MATCH (z:Enzyme {id: e.enzyme, run: $run}) " +
		"MERGE (c)-[:SUBSTRATE_OF]->(z)"

	mergeProducts = "UNWIND $edges AS e " +
		"MATCH (z:Enzyme {id: e.enzyme, run: $run}) " +
		"MATCH (c:Compound {id: e.compound, run: $run}) " +
		"MERGE (z)-[:PRODUCES]->(c)"

	setScores = "UNWIND $rows AS r " +
		"MATCH (c:Compound {id: r.id, run: $run}) SET c += r"

	queryProducers = "MATCH (z:Enzyme {run: $run})-[:PRODUCES]->(:Compound {id: $id, run: $run}) " +
		"RETURN z.id AS id ORDER BY id"
)

// Neo4jRepository implements graph.Repository using Neo4j.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j creates a Neo4j-backed repository. An empty database selects the
// server default.
func NewNeo4j(ctx context.Context, uri, username, password, database string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver, database: database}, nil
}

func (r *Neo4jRepository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// StoreNetwork replaces any previous graph stored under run.
func (r *Neo4jRepository) StoreNetwork(ctx context.Context, run string, n *network.Network, names score.NameLookup) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	compounds, substrates, products := graph.NetworkParams(n, names)
	steps := []struct {
		query  string
		params map[string]any
	}{
		{clearRun, nil},
		{mergeEnzymes, map[string]any{"enzymes": n.Enzymes}},
		{mergeCompounds, map[string]any{"compounds": compounds}},
		{mergeSubstrates, map[string]any{"edges": substrates}},
		{mergeProducts, map[string]any{"edges": products}},
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range steps {
			params := map[string]any{"run": run}
			for k, v := range s.params {
				params[k] = v
			}
			if _, err := tx.Run(ctx, s.query, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store network %s: %w", run, err)
	}
	return nil
}

func (r *Neo4jRepository) StoreScores(ctx context.Context, run string, table *score.Table, rows []significance.Row) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	params := map[string]any{"run": run, "rows": graph.ScoreParams(table, rows)}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, setScores, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("store scores %s: %w", run, err)
	}
	return nil
}

func (r *Neo4jRepository) QueryProducers(ctx context.Context, run, compound string) ([]string, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, queryProducers, map[string]any{"run": run, "id": compound})
		if err != nil {
			return nil, err
		}
		var ids []string
		for records.Next(ctx) {
			v, _ := records.Record().Get("id")
			ids = append(ids, v.(string))
		}
		return ids, records.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Ping verifies the server is reachable.
func (r *Neo4jRepository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Neo4jRepository)(nil)
