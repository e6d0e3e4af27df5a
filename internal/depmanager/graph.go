// Package depmanager owns the parsed lockfile graph and the local-crate
// table. It answers "what versions could this node become" questions
// under the parents' semver requirements, identifies the most-restrictive
// parent for up-fix, and mutates the lockfile through a PackageManager
// adapter.
//
// The graph is represented as an arena of nodes plus forward/reverse
// adjacency lists indexed by node id: no self-referential structs, O(1)
// neighbor iteration.
package depmanager

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// NodeID indexes into Graph.Nodes.
type NodeID int

// Node is a single (crate name, version) pair in the lockfile graph.
type Node struct {
	Name    string
	Version *semver.Version
	// Source is the upstream source string recorded in the lockfile, empty
	// for path/workspace members.
	Source string
	// Local marks a node with no upstream registry source (a path or
	// workspace member): get_candidates always returns empty for these.
	Local bool
}

func (n Node) String() string {
	if n.Version == nil {
		return n.Name
	}
	return fmt.Sprintf("%s@%s", n.Name, n.Version)
}

// Requirement is a dependency's semver constraint on a named crate. Raw
// keeps the requirement string exactly as the manifest declared it, so two
// requirements can be compared without reserializing the parsed range.
type Requirement struct {
	DepName string
	Raw     string
	Range   *semver.Constraints
}

// Graph is the parsed lockfile's dependency DAG: one root, edges parent to
// child. Cyclic graphs are not handled.
type Graph struct {
	Nodes   []Node
	Forward map[NodeID][]NodeID // parent -> children
	Reverse map[NodeID][]NodeID // child -> parents
	Root    NodeID
}

// NewGraph builds an empty graph whose single root is the given node.
func NewGraph(root Node) *Graph {
	g := &Graph{
		Nodes:   []Node{root},
		Forward: make(map[NodeID][]NodeID),
		Reverse: make(map[NodeID][]NodeID),
		Root:    0,
	}
	return g
}

// AddNode appends n to the arena and returns its id.
func (g *Graph) AddNode(n Node) NodeID {
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, n)
	return id
}

// AddEdge records parent -> child.
func (g *Graph) AddEdge(parent, child NodeID) {
	g.Forward[parent] = append(g.Forward[parent], child)
	g.Reverse[child] = append(g.Reverse[child], parent)
}

// Parents returns the parent node ids of n, in a stable (insertion) order,
// required for deterministic BFS and for "first parent" up-fix tie-breaks.
func (g *Graph) Parents(n NodeID) []NodeID {
	return g.Reverse[n]
}

// Children returns the child node ids of n, in a stable order.
func (g *Graph) Children(n NodeID) []NodeID {
	return g.Forward[n]
}

// BFS walks the graph from the root in breadth-first, edge-order-stable
// order, calling visit for every node including the root. Traversal is
// deterministic given the graph's stable edge order.
func (g *Graph) BFS(visit func(NodeID) bool) {
	seen := make(map[NodeID]bool)
	queue := []NodeID{g.Root}
	seen[g.Root] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if !visit(id) {
			return
		}
		for _, child := range g.Forward[id] {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
}
