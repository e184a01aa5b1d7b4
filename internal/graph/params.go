package graph

import (
	"errors"

	"github.com/efebarandurmaz/bigsmall/internal/network"
	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/significance"
)

// ErrRunNotFound is returned when a run has no stored network.
var ErrRunNotFound = errors.New("run not found in graph repository")

// NetworkParams flattens a network into query parameter rows: one map per
// compound and one per edge, keyed for UNWIND.
func NetworkParams(n *network.Network, names score.NameLookup) (compounds, substrates, products []map[string]any) {
	compounds = make([]map[string]any, 0, len(n.Compounds))
	for _, c := range n.Compounds {
		name := c
		if names != nil {
			if v, ok := names.CompoundName(c); ok {
				name = v
			}
		}
		compounds = append(compounds, map[string]any{"id": c, "name": name})
	}
	for _, e := range n.Edges {
		switch e.Kind {
		case network.EdgeSubstrate:
			substrates = append(substrates, map[string]any{"compound": e.From, "enzyme": e.To})
		case network.EdgeProduct:
			products = append(products, map[string]any{"enzyme": e.From, "compound": e.To})
		}
	}
	return compounds, substrates, products
}

// ScoreParams builds one parameter row per scored compound. Rows from a
// simulated run add mean, std and tier. Directional rows also carry the
// interval and tier of each side; mean and std repeat the input side and
// tier is the stronger of the two.
func ScoreParams(table *score.Table, rows []significance.Row) []map[string]any {
	if rows != nil {
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			p := recordParams(r.Record, table.Mode)
			tier := r.Tier
			mean, std := r.Interval.Mean, r.Interval.Std
			if table.Mode == score.ModeDirectionalSqrt {
				tier = max(r.InputTier, r.OutputTier)
				mean, std = r.Interval.InputMean, r.Interval.InputStd
				p["input_mean"] = r.Interval.InputMean
				p["input_std"] = r.Interval.InputStd
				p["input_tier"] = r.InputTier.String()
				p["output_mean"] = r.Interval.OutputMean
				p["output_std"] = r.Interval.OutputStd
				p["output_tier"] = r.OutputTier.String()
			}
			p["mean"] = mean
			p["std"] = std
			p["tier"] = tier.String()
			p["p_value"] = r.PValue()
			out = append(out, p)
		}
		return out
	}
	out := make([]map[string]any, 0, len(table.Records))
	for _, rec := range table.Records {
		out = append(out, recordParams(rec, table.Mode))
	}
	return out
}

func recordParams(rec score.Record, mode score.Mode) map[string]any {
	p := map[string]any{"id": rec.Compound, "score": rec.Score}
	if mode == score.ModeDirectionalSqrt {
		p["input_score"] = rec.InputScore
		p["output_score"] = rec.OutputScore
		p["indegree"] = int64(rec.Indegree)
		p["outdegree"] = int64(rec.Outdegree)
	}
	return p
}
