package dag

import (
	"errors"
	"maps"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [DAG.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [DAG.AddNode] when a node with the
	// same ID already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [DAG.AddEdge] when the parent node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [DAG.AddEdge] when the child node
	// does not exist.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrSelfEdge is returned by [DAG.AddEdge] for an edge from a node to itself.
	ErrSelfEdge = errors.New("edge from node to itself")

	// ErrGraphHasCycle is returned by [DAG.Validate] when a directed cycle
	// exists. Cycles are detected with white/gray/black depth-first search.
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// Node is one object in a save graph.
type Node struct {
	ID    string // LocalID of the object
	Class string // Remote class name, used to group batches
	Level int    // Distance from the deepest descendant (0 = no unsaved children)
}

// Edge points from a parent to a child the parent depends on.
type Edge struct {
	From string
	To   string
}

// DAG is a dependency graph between unsaved objects. An edge parent→child
// means the child must be persisted before the parent can be encoded.
//
// Nodes keep their insertion order, which is the order the walker
// discovered them; every listing method returns nodes in that order so
// batches are deterministic.
//
// The zero value is not usable - use New to create a valid DAG instance.
// DAG is not safe for concurrent use without external synchronization.
type DAG struct {
	nodes    map[string]*Node
	order    []string
	edges    []Edge
	outgoing map[string][]string // parent -> children
	incoming map[string][]string // child -> parents
}

// New creates an empty DAG.
func New() *DAG {
	return &DAG{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
}

// AddNode adds a node. Returns ErrInvalidNodeID for an empty ID and
// ErrDuplicateNodeID if the ID is already present.
func (d *DAG) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := d.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	node := n
	d.nodes[n.ID] = &node
	d.order = append(d.order, n.ID)
	return nil
}

// HasNode reports whether id is in the graph.
func (d *DAG) HasNode(id string) bool {
	_, ok := d.nodes[id]
	return ok
}

// AddEdge adds a parent→child edge between existing nodes. Adding an edge
// that already exists is a no-op, so a child referenced from two fields of
// the same parent counts once.
func (d *DAG) AddEdge(e Edge) error {
	if _, ok := d.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := d.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	if e.From == e.To {
		return ErrSelfEdge
	}
	if slices.Contains(d.outgoing[e.From], e.To) {
		return nil
	}
	d.edges = append(d.edges, e)
	d.outgoing[e.From] = append(d.outgoing[e.From], e.To)
	d.incoming[e.To] = append(d.incoming[e.To], e.From)
	return nil
}

// Node returns the node with the given ID.
func (d *DAG) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order. The pointers refer to the
// graph's own nodes.
func (d *DAG) Nodes() []*Node {
	nodes := make([]*Node, len(d.order))
	for i, id := range d.order {
		nodes[i] = d.nodes[id]
	}
	return nodes
}

// Edges returns a copy of all edges in insertion order.
func (d *DAG) Edges() []Edge { return slices.Clone(d.edges) }

// NodeCount returns the number of nodes in the graph.
func (d *DAG) NodeCount() int { return len(d.nodes) }

// EdgeCount returns the number of edges in the graph.
func (d *DAG) EdgeCount() int { return len(d.edges) }

// Children returns the IDs the node depends on. Read-only view.
func (d *DAG) Children(id string) []string { return d.outgoing[id] }

// Parents returns the IDs that depend on the node. Read-only view.
func (d *DAG) Parents(id string) []string { return d.incoming[id] }

// OutDegree returns the number of distinct children of the node.
func (d *DAG) OutDegree(id string) int { return len(d.outgoing[id]) }

// InDegree returns the number of distinct parents of the node.
func (d *DAG) InDegree(id string) int { return len(d.incoming[id]) }

// Sources returns nodes nobody depends on, in insertion order.
func (d *DAG) Sources() []*Node {
	var out []*Node
	for _, id := range d.order {
		if len(d.incoming[id]) == 0 {
			out = append(out, d.nodes[id])
		}
	}
	return out
}

// Sinks returns nodes with no children, in insertion order. These can be
// persisted first.
func (d *DAG) Sinks() []*Node {
	var out []*Node
	for _, id := range d.order {
		if len(d.outgoing[id]) == 0 {
			out = append(out, d.nodes[id])
		}
	}
	return out
}

// SetLevels updates level assignments. Nodes missing from levels keep
// their current level.
func (d *DAG) SetLevels(levels map[string]int) {
	for id, lvl := range levels {
		if n, ok := d.nodes[id]; ok {
			n.Level = lvl
		}
	}
}

// NodesInLevel returns the nodes at the given level in insertion order.
func (d *DAG) NodesInLevel(level int) []*Node {
	var out []*Node
	for _, id := range d.order {
		if n := d.nodes[id]; n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

// Levels returns the distinct levels in ascending order. Returns an empty
// slice for an empty graph.
func (d *DAG) Levels() []int {
	set := make(map[int]struct{})
	for _, n := range d.nodes {
		set[n.Level] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Validate returns ErrGraphHasCycle if the graph has a directed cycle.
// Edge endpoints are checked on insertion, so a cycle is the only defect
// left to find.
func (d *DAG) Validate() error {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(d.nodes))
	var hasCycle bool

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		for _, child := range d.outgoing[id] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				hasCycle = true
			}
			if hasCycle {
				return
			}
		}
		color[id] = black
	}

	for _, id := range d.order {
		if color[id] == white {
			dfs(id)
			if hasCycle {
				return ErrGraphHasCycle
			}
		}
	}
	return nil
}

// NodeIDs extracts the ID from each node in a slice.
func NodeIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
