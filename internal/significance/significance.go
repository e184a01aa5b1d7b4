// Package significance grades observed scores against their simulated null
// distribution.
package significance

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/bigsmall/internal/score"
	"github.com/efebarandurmaz/bigsmall/internal/simulation"
)

// Tier is the number of standard deviations a score clears.
type Tier int

const (
	TierNone Tier = iota
	TierOne
	TierTwo
	TierThree
)

// boundaries is walked in order; the first k whose band the score leaves wins.
var boundaries = []struct {
	sigmas float64
	tier   Tier
}{
	{3, TierThree},
	{2, TierTwo},
	{1, TierOne},
}

// Classify grades score against mean and std. Comparisons are strict, so a
// score exactly on a boundary takes the lower tier.
func Classify(value, mean, std float64) Tier {
	switch {
	case value > mean:
		for _, b := range boundaries {
			if value > mean+b.sigmas*std {
				return b.tier
			}
		}
	case value < mean:
		for _, b := range boundaries {
			if value < mean-b.sigmas*std {
				return b.tier
			}
		}
	}
	return TierNone
}

var markers = [...]string{"n.s.", "*", "**", "***"}

func (t Tier) String() string {
	if t < TierNone || t > TierThree {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return markers[t]
}

// PValue is the two-sided normal tail probability the tier stands for.
func (t Tier) PValue() float64 {
	switch t {
	case TierOne:
		return 0.32
	case TierTwo:
		return 0.05
	case TierThree:
		return 0.01
	default:
		return 1
	}
}

// ParseMarker reads a significance column value. Both star markers and
// p-value markers ("<0.05", "<0.01") are accepted; an empty cell is n.s.
func ParseMarker(s string) (Tier, error) {
	switch strings.TrimSpace(s) {
	case "", "n.s.", "ns", "1":
		return TierNone, nil
	case "*", "<0.32":
		return TierOne, nil
	case "**", "<0.05":
		return TierTwo, nil
	case "***", "<0.01":
		return TierThree, nil
	}
	return TierNone, fmt.Errorf("unknown significance marker %q", s)
}

// Row is a scored compound annotated with its null distribution.
type Row struct {
	score.Record
	Interval   simulation.Interval `json:"interval"`
	Tier       Tier                `json:"tier"`
	InputTier  Tier                `json:"input_tier,omitempty"`
	OutputTier Tier                `json:"output_tier,omitempty"`
}

// PValue is the smallest p-value among the row's tiers.
func (r Row) PValue() float64 {
	return min(r.Tier.PValue(), r.InputTier.PValue(), r.OutputTier.PValue())
}

// Annotate grades every record of table. Records without an interval stay
// n.s.
func Annotate(table *score.Table, intervals *simulation.Intervals) []Row {
	rows := make([]Row, 0, len(table.Records))
	for _, rec := range table.Records {
		row := Row{Record: rec}
		iv, ok := intervals.Get(rec.Compound)
		if ok {
			row.Interval = iv
			if table.Mode == score.ModeDirectionalSqrt {
				if rec.InputIncluded {
					row.InputTier = Classify(rec.InputScore, iv.InputMean, iv.InputStd)
				}
				if rec.OutputIncluded {
					row.OutputTier = Classify(rec.OutputScore, iv.OutputMean, iv.OutputStd)
				}
			} else {
				row.Tier = Classify(rec.Score, iv.Mean, iv.Std)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Summary counts rows per tier.
func Summary(rows []Row) map[Tier]int {
	out := make(map[Tier]int, 4)
	for _, r := range rows {
		t := max(r.Tier, r.InputTier, r.OutputTier)
		out[t]++
	}
	return out
}
