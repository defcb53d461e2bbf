package deepsave

import (
	"slices"

	"github.com/matzehuels/deepsave/pkg/codec"
	"github.com/matzehuels/deepsave/pkg/dag"
	"github.com/matzehuels/deepsave/pkg/dag/transform"
	"github.com/matzehuels/deepsave/pkg/entity"
)

// PlanBatch is one SaveMany call Save would issue.
type PlanBatch struct {
	Class string
	Nodes []entity.LocalID
}

// PlanRound is one phase of batches. Rounds run strictly one after another.
type PlanRound struct {
	Round   int
	Batches []PlanBatch
}

// PlanResult describes a deep save without performing it.
type PlanResult struct {
	// Graph holds one node per unsaved entity (root included) with
	// parent→child edges. Levels are assigned: 0 for nodes without
	// unsaved children, the root on top.
	Graph *dag.DAG

	Root      entity.LocalID
	RootClass string
	Rounds    []PlanRound

	// Entities maps each planned LocalID back to its entity.
	Entities map[entity.LocalID]*entity.Entity
}

// Requests returns the number of transport calls the plan needs, root
// commit included.
func (p *PlanResult) Requests() int {
	n := 1
	for _, r := range p.Rounds {
		n += len(r.Batches)
	}
	return n
}

// Objects returns the number of entities the plan saves, root included.
func (p *PlanResult) Objects() int { return p.Graph.NodeCount() }

// Plan walks root and returns the rounds and batches Save would issue with
// the default batch limit. It runs the same cycle and encoding checks as
// Save and fails with the same errors.
func Plan(root *entity.Entity, enc codec.Encoder) (*PlanResult, error) {
	if enc == nil {
		enc = codec.Wire{}
	}
	return plan(root, enc, DefaultBatchLimit)
}

func plan(root *entity.Entity, enc codec.Encoder, limit int) (*PlanResult, error) {
	sess, err := walk(root)
	if err != nil {
		return nil, err
	}
	if err := preflight(sess, enc); err != nil {
		return nil, err
	}
	if err := transform.AssignLevels(sess.graph); err != nil {
		return nil, &EncodingError{Class: root.Class, LocalID: root.LocalID(), Err: err}
	}

	byID := make(map[string]*node, len(sess.order))
	entities := make(map[entity.LocalID]*entity.Entity, len(sess.order))
	for _, n := range sess.order {
		byID[string(n.id)] = n
		entities[n.id] = n.e
	}

	p := &PlanResult{
		Graph:     sess.graph,
		Root:      sess.root.id,
		RootClass: sess.root.e.Class,
		Entities:  entities,
	}
	for _, ids := range transform.Levels(sess.graph) {
		var level []*node
		for _, id := range ids {
			if n := byID[id]; n != sess.root {
				level = append(level, n)
			}
		}
		if len(level) == 0 {
			continue
		}
		round := PlanRound{Round: len(p.Rounds) + 1}
		for _, g := range groupByClass(level) {
			for chunk := range slices.Chunk(g.nodes, limit) {
				b := PlanBatch{Class: g.class, Nodes: make([]entity.LocalID, len(chunk))}
				for i, n := range chunk {
					b.Nodes[i] = n.id
				}
				round.Batches = append(round.Batches, b)
			}
		}
		p.Rounds = append(p.Rounds, round)
	}
	return p, nil
}
