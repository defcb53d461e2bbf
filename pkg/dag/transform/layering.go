package transform

import (
	"fmt"

	"github.com/matzehuels/deepsave/pkg/dag"
)

// AssignLevels assigns every node the length of the longest path from it
// down to a sink.
//
// AssignLevels runs Kahn's algorithm bottom-up, counting unprocessed
// children instead of parents:
//   - Sink nodes (no children) are at level 0
//   - Every parent sits strictly above all of its children
//   - A node is placed as low as its deepest child allows
//
// Nodes sharing a level have no dependency on each other, so a whole level
// can be committed at once once every lower level has been committed.
// Existing level assignments in the DAG are overwritten.
//
// # Cycles
//
// Nodes on a cycle never run out of unprocessed children. AssignLevels
// reports them with an error wrapping [dag.ErrGraphHasCycle] and leaves
// the graph's levels untouched.
//
// # Performance
//
// Time complexity is O(V + E). Space complexity is O(V).
func AssignLevels(g *dag.DAG) error {
	nodes := g.Nodes()
	pending := make(map[string]int, len(nodes))
	levels := make(map[string]int, len(nodes))
	queue := make([]string, 0, len(nodes))

	for _, n := range nodes {
		degree := g.OutDegree(n.ID)
		pending[n.ID] = degree
		if degree == 0 {
			queue = append(queue, n.ID)
		}
	}

	done := 0
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		done++

		for _, parent := range g.Parents(curr) {
			if lvl := levels[curr] + 1; lvl > levels[parent] {
				levels[parent] = lvl
			}
			pending[parent]--
			if pending[parent] == 0 {
				queue = append(queue, parent)
			}
		}
	}

	if done != len(nodes) {
		return fmt.Errorf("%w: %d of %d nodes unreachable from a sink", dag.ErrGraphHasCycle, len(nodes)-done, len(nodes))
	}
	g.SetLevels(levels)
	return nil
}

// Levels groups node IDs by level, lowest level first. Call it after
// [AssignLevels]. Within a level, IDs keep the graph's insertion order.
func Levels(g *dag.DAG) [][]string {
	var out [][]string
	for _, lvl := range g.Levels() {
		out = append(out, dag.NodeIDs(g.NodesInLevel(lvl)))
	}
	return out
}
