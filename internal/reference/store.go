// Package reference provides the read-only lookup tables that translate
// enzymes to reactions, reactions to compound equations, and compounds to
// display names.
package reference

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ReversibleFlag marks a reversible reaction in the flag field of an equation.
const ReversibleFlag = "R"

// ErrBadEquation is returned for equation records that are not
// "inputs:flags:outputs".
var ErrBadEquation = errors.New("reference: malformed reaction equation")

// Store is the lookup surface consumed by the graph builder and scorer.
type Store interface {
	// Reactions returns the reaction ids for an enzyme.
	Reactions(enzyme string) ([]string, bool)
	// Equations returns the equation records for a reaction.
	Equations(reaction string) ([]Reaction, bool)
	// CompoundName returns the display name for a compound.
	CompoundName(compound string) (string, bool)
	// Version identifies the reference data release.
	Version() string
}

// Reaction is one decomposed equation record.
type Reaction struct {
	Inputs     []string `json:"inputs"`
	Outputs    []string `json:"outputs"`
	Reversible bool     `json:"reversible"`
}

// ParseReaction decodes "in1|in2:flags:out1|out2". The reaction is
// reversible when any "|"-separated flag equals ReversibleFlag.
func ParseReaction(s string) (Reaction, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Reaction{}, fmt.Errorf("%w: %q", ErrBadEquation, s)
	}
	r := Reaction{
		Inputs:  splitIDs(parts[0]),
		Outputs: splitIDs(parts[2]),
	}
	for _, flag := range strings.Split(parts[1], "|") {
		if strings.TrimSpace(flag) == ReversibleFlag {
			r.Reversible = true
			break
		}
	}
	if len(r.Inputs) == 0 && len(r.Outputs) == 0 {
		return Reaction{}, fmt.Errorf("%w: no compounds in %q", ErrBadEquation, s)
	}
	return r, nil
}

// String encodes the reaction back to its record form.
func (r Reaction) String() string {
	flag := "I"
	if r.Reversible {
		flag = ReversibleFlag
	}
	return strings.Join(r.Inputs, "|") + ":" + flag + ":" + strings.Join(r.Outputs, "|")
}

func splitIDs(field string) []string {
	var ids []string
	for _, id := range strings.Split(field, "|") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Tables is the raw, unparsed form of the three lookup tables. Loaders
// produce it and MemoryStore consumes it.
type Tables struct {
	Version           string
	EnzymeReactions   map[string][]string
	ReactionEquations map[string][]string
	CompoundNames     map[string]string
}

// NewTables returns empty tables.
func NewTables(version string) *Tables {
	return &Tables{
		Version:           version,
		EnzymeReactions:   make(map[string][]string),
		ReactionEquations: make(map[string][]string),
		CompoundNames:     make(map[string]string),
	}
}

// MemoryStore is an immutable in-memory Store.
type MemoryStore struct {
	version   string
	reactions map[string][]string
	equations map[string][]Reaction
	names     map[string]string
}

// NewMemoryStore parses every equation record up front so lookups never fail
// on malformed data.
func NewMemoryStore(t *Tables) (*MemoryStore, error) {
	s := &MemoryStore{
		version:   t.Version,
		reactions: make(map[string][]string, len(t.EnzymeReactions)),
		equations: make(map[string][]Reaction, len(t.ReactionEquations)),
		names:     make(map[string]string, len(t.CompoundNames)),
	}
	for enzyme, ids := range t.EnzymeReactions {
		s.reactions[enzyme] = append([]string(nil), ids...)
	}
	for id, records := range t.ReactionEquations {
		parsed := make([]Reaction, 0, len(records))
		for _, rec := range records {
			r, err := ParseReaction(rec)
			if err != nil {
				return nil, fmt.Errorf("reaction %s: %w", id, err)
			}
			parsed = append(parsed, r)
		}
		s.equations[id] = parsed
	}
	for id, name := range t.CompoundNames {
		s.names[id] = name
	}
	return s, nil
}

func (s *MemoryStore) Reactions(enzyme string) ([]string, bool) {
	ids, ok := s.reactions[enzyme]
	return ids, ok
}

func (s *MemoryStore) Equations(reaction string) ([]Reaction, bool) {
	r, ok := s.equations[reaction]
	return r, ok
}

func (s *MemoryStore) CompoundName(compound string) (string, bool) {
	n, ok := s.names[compound]
	return n, ok
}

func (s *MemoryStore) Version() string { return s.version }

// Stats summarises table sizes.
type Stats struct {
	Version   string `json:"version"`
	Enzymes   int    `json:"enzymes"`
	Reactions int    `json:"reactions"`
	Compounds int    `json:"compounds"`
}

// Stats returns the number of keys in each table.
func (s *MemoryStore) Stats() Stats {
	return Stats{
		Version:   s.version,
		Enzymes:   len(s.reactions),
		Reactions: len(s.equations),
		Compounds: len(s.names),
	}
}

// Tables returns the store contents in raw form, with keys in no particular
// order and equations re-encoded.
func (s *MemoryStore) Tables() *Tables {
	t := NewTables(s.version)
	for k, v := range s.reactions {
		t.EnzymeReactions[k] = append([]string(nil), v...)
	}
	for k, rs := range s.equations {
		recs := make([]string, len(rs))
		for i, r := range rs {
			recs[i] = r.String()
		}
		t.ReactionEquations[k] = recs
	}
	for k, v := range s.names {
		t.CompoundNames[k] = v
	}
	return t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Store = (*MemoryStore)(nil)
