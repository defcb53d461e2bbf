package deepsave

import (
	"errors"
	"fmt"

	"github.com/matzehuels/deepsave/pkg/codec"
	"github.com/matzehuels/deepsave/pkg/dag"
	"github.com/matzehuels/deepsave/pkg/entity"
)

var (
	errDuplicateLocalID  = errors.New("distinct instances share a local id (copied entity?)")
	errIdentifiedNoClass = errors.New("referenced entity has an id but no class")
)

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	resolved
)

// node is the per-call handle for one unsaved entity. Nothing is ever
// written to the entity itself.
type node struct {
	e     *entity.Entity
	id    entity.LocalID
	state visitState

	children []*node        // distinct unsaved children, first-seen order
	parents  []*node        // distinct parents
	pending  map[*node]bool // children still without a reference
	failed   bool
}

// session is the state of one Save call. It is created by walk, threaded
// through the batcher and dropped when the call returns.
type session struct {
	root  *node
	nodes map[*entity.Entity]*node
	byID  map[entity.LocalID]*entity.Entity
	order []*node // discovery order
	graph *dag.DAG

	refs      map[entity.LocalID]entity.Reference
	persisted []entity.LocalID
}

// walk discovers the unsaved graph below root and checks it for cycles and
// unsupported field shapes. It never touches the network.
func walk(root *entity.Entity) (*session, error) {
	if root == nil {
		return nil, &EncodingError{Err: ErrNilRoot}
	}
	s := &session{
		nodes: make(map[*entity.Entity]*node),
		byID:  make(map[entity.LocalID]*entity.Entity),
		graph: dag.New(),
		refs:  make(map[entity.LocalID]entity.Reference),
	}
	n, err := s.visit(root, nil)
	if err != nil {
		return nil, err
	}
	s.root = n
	return s, nil
}

func (s *session) visit(e *entity.Entity, path []*node) (*node, error) {
	if n, ok := s.nodes[e]; ok {
		switch n.state {
		case inProgress:
			return nil, cycleError(path, n)
		default:
			return n, nil
		}
	}

	if err := e.Validate(); err != nil {
		return nil, &EncodingError{Class: e.Class, LocalID: e.LocalID(), Err: err}
	}
	if other, ok := s.byID[e.LocalID()]; ok && other != e {
		return nil, &EncodingError{Class: e.Class, LocalID: e.LocalID(), Err: errDuplicateLocalID}
	}
	for _, k := range e.Keys() {
		v, _ := e.Get(k)
		if err := codec.CheckField(v); err != nil {
			return nil, &EncodingError{Class: e.Class, LocalID: e.LocalID(), Err: &codec.FieldError{Field: k, Err: err}}
		}
	}

	n := &node{e: e, id: e.LocalID(), state: inProgress, pending: make(map[*node]bool)}
	s.nodes[e] = n
	s.byID[n.id] = e
	s.order = append(s.order, n)
	if err := s.graph.AddNode(dag.Node{ID: string(n.id), Class: e.Class}); err != nil {
		return nil, &EncodingError{Class: e.Class, LocalID: n.id, Err: err}
	}

	path = append(path, n)
	for _, c := range e.Children() {
		if !c.Entity.IsNew() {
			if c.Entity.Class == "" {
				return nil, &EncodingError{Class: e.Class, LocalID: n.id, Err: &codec.FieldError{Field: c.Field, Err: errIdentifiedNoClass}}
			}
			continue
		}
		child, err := s.visit(c.Entity, path)
		if err != nil {
			return nil, err
		}
		if n.pending[child] {
			continue
		}
		n.pending[child] = true
		n.children = append(n.children, child)
		child.parents = append(child.parents, n)
		if err := s.graph.AddEdge(dag.Edge{From: string(n.id), To: string(child.id)}); err != nil {
			return nil, &EncodingError{Class: e.Class, LocalID: n.id, Err: fmt.Errorf("link %s: %w", child.e, err)}
		}
	}
	n.state = resolved
	return n, nil
}

// cycleError builds the loop from the first occurrence of back on the
// active path.
func cycleError(path []*node, back *node) *CircularDependencyError {
	start := 0
	for i, p := range path {
		if p == back {
			start = i
			break
		}
	}
	hops := make([]Hop, 0, len(path)-start+1)
	for _, p := range path[start:] {
		hops = append(hops, Hop{Class: p.e.Class, LocalID: p.id})
	}
	hops = append(hops, Hop{Class: back.e.Class, LocalID: back.id})
	return &CircularDependencyError{Path: hops}
}

// unsaved returns the non-root nodes in discovery order.
func (s *session) unsaved() []*node {
	out := make([]*node, 0, len(s.order))
	for _, n := range s.order {
		if n != s.root {
			out = append(out, n)
		}
	}
	return out
}
