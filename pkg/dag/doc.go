// Package dag provides the dependency graph a deep save builds for one call.
//
// # Overview
//
// Nodes are unsaved objects keyed by their LocalID; an edge parent→child
// says the child must be persisted before the parent, because the parent's
// request body carries a reference to the child. The graph is built by the
// walker in package deepsave, used to drive bottom-up batching, and thrown
// away when the call returns.
//
//	g := dag.New()
//	g.AddNode(dag.Node{ID: "post", Class: "Post"})
//	g.AddNode(dag.Node{ID: "user", Class: "User"})
//	g.AddEdge(dag.Edge{From: "post", To: "user"})
//	g.Sinks() // [user]
//
// # Levels
//
// Each node carries a Level: 0 for nodes with no unsaved children, and one
// more than the highest child otherwise. [transform.AssignLevels] computes
// them. Nodes sharing a level can be committed together.
//
// # Ordering
//
// Unlike a plain adjacency map, the DAG remembers insertion order, and
// [DAG.Nodes], [DAG.Sinks], [DAG.Sources] and [DAG.NodesInLevel] all
// return nodes in that order. Batches built from them are reproducible.
//
// # Concurrency
//
// DAG is not safe for concurrent use. The engine builds one per call and
// never shares it.
//
// [transform.AssignLevels]: github.com/matzehuels/deepsave/pkg/dag/transform
package dag
