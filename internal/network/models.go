package network

import "fmt"

// NodeKind classifies graph nodes
type NodeKind string

const (
	NodeEnzyme   NodeKind = "enzyme"
	NodeCompound NodeKind = "compound"
)

// EdgeKind classifies relationships
type EdgeKind string

const (
	EdgeSubstrate EdgeKind = "substrate" // compound consumed by enzyme
	EdgeProduct   EdgeKind = "product"   // compound produced by enzyme
)

// Edge is a directed edge between an enzyme and a compound.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Network is the bipartite enzyme/compound graph for one organism.
type Network struct {
	Enzymes   []string            `json:"enzymes"`
	Compounds []string            `json:"compounds"`
	Edges     []Edge              `json:"edges"`
	Inputs    map[string][]string `json:"inputs"`  // enzyme -> compounds it consumes
	Outputs   map[string][]string `json:"outputs"` // enzyme -> compounds it produces
	Report    TranslationReport   `json:"report"`
	Stats     Stats               `json:"stats"`
}

// EnzymeIDs returns the enzymes the network was built from.
func (n *Network) EnzymeIDs() []string { return n.Enzymes }

// CompoundIDs returns the distinct compounds, sorted.
func (n *Network) CompoundIDs() []string { return n.Compounds }

// InputsOf returns the compounds consumed by enzyme.
func (n *Network) InputsOf(enzyme string) []string { return n.Inputs[enzyme] }

// OutputsOf returns the compounds produced by enzyme.
func (n *Network) OutputsOf(enzyme string) []string { return n.Outputs[enzyme] }

// MissKind identifies which lookup failed.
type MissKind string

const (
	MissEnzyme   MissKind = "enzyme"
	MissReaction MissKind = "reaction"
)

// LookupMiss records an id absent from the reference tables. It is
// recoverable: the unit of work is skipped and the build continues.
type LookupMiss struct {
	Kind   MissKind `json:"kind"`
	ID     string   `json:"id"`
	Enzyme string   `json:"enzyme,omitempty"`
}

func (m LookupMiss) Error() string {
	switch m.Kind {
	case MissEnzyme:
		return fmt.Sprintf("%s not found in enzyme-to-reaction table", m.ID)
	default:
		return fmt.Sprintf("%s not found in reaction-to-compound table", m.ID)
	}
}

// TranslationReport counts the lookups made while building the network.
type TranslationReport struct {
	EnzymesTried    int          `json:"enzymes_tried"`
	EnzymesFailed   int          `json:"enzymes_failed"`
	ReactionsTried  int          `json:"reactions_tried"`
	ReactionsFailed int          `json:"reactions_failed"`
	Equations       int          `json:"equations"`
	Misses          []LookupMiss `json:"misses,omitempty"`
}

// EnzymesTranslated is the number of enzymes with a reaction entry.
func (r TranslationReport) EnzymesTranslated() int { return r.EnzymesTried - r.EnzymesFailed }

// ReactionsTranslated is the number of reactions with an equation entry.
func (r TranslationReport) ReactionsTranslated() int { return r.ReactionsTried - r.ReactionsFailed }

// Stats holds computed metrics about the graph
type Stats struct {
	TotalNodes          int    `json:"total_nodes"`
	TotalEdges          int    `json:"total_edges"`
	EnzymeCount         int    `json:"enzyme_count"`
	CompoundCount       int    `json:"compound_count"`
	MaxFanOut           int    `json:"max_fan_out"`  // most outgoing edges
	MaxFanIn            int    `json:"max_fan_in"`   // most incoming edges
	HotspotNode         string `json:"hotspot_node"` // node with most connections
	ConnectedComponents int    `json:"connected_components"`
}
