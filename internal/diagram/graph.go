// Package diagram extracts the structural graph drawn in a pathway diagram
// document: entity nodes, reaction edges and their stoichiometry.
package diagram

import (
	"sort"

	"github.com/pbaille/pathwayqa/internal/domain"
)

// EdgeType separates reaction edges from process connectors
type EdgeType int

const (
	EdgeReaction EdgeType = iota
	EdgeProcess
)

func (t EdgeType) String() string {
	if t == EdgeReaction {
		return "reaction"
	}
	return "process"
}

// Non-entity node kinds
const (
	KindCompartment = "Compartment"
	KindNote        = "Note"
	KindProcessNode = "ProcessNode"
	KindPathway     = "Pathway"
)

// Feature is a sub-attachment drawn on a node, e.g. a modification
type Feature struct {
	EntityID domain.ID
	Label    string
}

// Node is a drawn object
type Node struct {
	ID       int
	Kind     string
	EntityID domain.ID // 0 when the node represents nothing
	Features []Feature
}

// IsEntity reports whether the node stands for a physical entity
func (n *Node) IsEntity() bool {
	switch n.Kind {
	case KindCompartment, KindNote, KindProcessNode, KindPathway:
		return false
	}
	return true
}

// Edge is a drawn reaction or process connector
type Edge struct {
	ID       int
	Kind     string
	Type     EdgeType
	EntityID domain.ID

	Inputs     []*Node
	Outputs    []*Node
	Helpers    []*Node // catalysts
	Activators []*Node
	Inhibitors []*Node

	// Explicit input and output counts keyed by node id; absent means 1.
	// A node drawn on both sides keeps a count per side.
	InputStoichiometry  map[int]int
	OutputStoichiometry map[int]int
}

// InputCount returns the stoichiometry of n as an input of this edge
func (e *Edge) InputCount(n *Node) int {
	return countOf(e.InputStoichiometry, n)
}

// OutputCount returns the stoichiometry of n as an output of this edge
func (e *Edge) OutputCount(n *Node) int {
	return countOf(e.OutputStoichiometry, n)
}

func countOf(stoichiometry map[int]int, n *Node) int {
	if c, ok := stoichiometry[n.ID]; ok {
		return c
	}
	return 1
}

// Nodes returns every node attached to the edge
func (e *Edge) Nodes() []*Node {
	var out []*Node
	for _, group := range [][]*Node{e.Inputs, e.Outputs, e.Helpers, e.Activators, e.Inhibitors} {
		out = append(out, group...)
	}
	return out
}

// Graph is the structure of one diagram document
type Graph struct {
	// ProcessID is the entity id on the document root, if any.
	ProcessID domain.ID
	Nodes     []*Node
	Edges     []*Edge

	nodes map[int]*Node
}

func newGraph() *Graph {
	return &Graph{nodes: make(map[int]*Node)}
}

// Empty reports whether nothing is drawn
func (g *Graph) Empty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0
}

// Node returns the node with the given document id
func (g *Graph) Node(id int) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// ReactionEdges returns the reaction-like edges in document order
func (g *Graph) ReactionEdges() []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Type == EdgeReaction {
			out = append(out, e)
		}
	}
	return out
}

// EdgesFor returns the edges representing entityID
func (g *Graph) EdgesFor(entityID domain.ID) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out
}

// ConnectedNodeIDs returns ids of nodes attached to at least one reaction edge
func (g *Graph) ConnectedNodeIDs() map[int]bool {
	out := make(map[int]bool)
	for _, e := range g.ReactionEdges() {
		for _, n := range e.Nodes() {
			out[n.ID] = true
		}
	}
	return out
}

// OrphanNodes returns entity nodes not attached to any reaction edge
func (g *Graph) OrphanNodes() []*Node {
	connected := g.ConnectedNodeIDs()
	var out []*Node
	for _, n := range g.Nodes {
		if n.IsEntity() && n.EntityID != 0 && !connected[n.ID] {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// ReactionIDs returns the entity ids of reaction edges
func (g *Graph) ReactionIDs() domain.IDSet {
	out := make(domain.IDSet)
	for _, e := range g.ReactionEdges() {
		if e.EntityID != 0 {
			out.Add(e.EntityID)
		}
	}
	return out
}

// ProcessNodeIDs returns the entity ids of subpathway process nodes
func (g *Graph) ProcessNodeIDs() domain.IDSet {
	out := make(domain.IDSet)
	for _, n := range g.Nodes {
		if n.Kind == KindProcessNode && n.EntityID != 0 {
			out.Add(n.EntityID)
		}
	}
	return out
}

// ExtractEntityIDs returns every non-null node and edge entity id
func ExtractEntityIDs(g *Graph) domain.IDSet {
	out := make(domain.IDSet)
	if g == nil {
		return out
	}
	for _, n := range g.Nodes {
		if n.EntityID != 0 {
			out.Add(n.EntityID)
		}
	}
	for _, e := range g.Edges {
		if e.EntityID != 0 {
			out.Add(e.EntityID)
		}
	}
	return out
}
