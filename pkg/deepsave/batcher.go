package deepsave

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/matzehuels/deepsave/pkg/codec"
	"github.com/matzehuels/deepsave/pkg/entity"
	"github.com/matzehuels/deepsave/pkg/observability"
	"github.com/matzehuels/deepsave/pkg/transport"
)

// placeholderID stands in for not-yet-assigned IDs during the pre-flight
// encoding pass.
const placeholderID = "pending"

// prepare walks the graph and encodes every node once with placeholder
// references, so that cycles and unencodable fields surface before the
// first request.
func (s *Saver) prepare(ctx context.Context, root *entity.Entity) (*session, error) {
	sess, err := walk(root)
	if err != nil {
		observability.Save().OnWalk(ctx, 0, 0, err)
		return nil, err
	}
	observability.Save().OnWalk(ctx, sess.graph.NodeCount(), sess.graph.EdgeCount(), nil)
	s.opts.Logger.Debug("walked graph",
		"root", root,
		"nodes", sess.graph.NodeCount(),
		"edges", sess.graph.EdgeCount())

	if err := preflight(sess, s.opts.Encoder); err != nil {
		return nil, err
	}
	return sess, nil
}

func preflight(sess *session, enc codec.Encoder) error {
	placeholders := make(map[entity.LocalID]entity.Reference, len(sess.order))
	for _, n := range sess.order {
		placeholders[n.id] = entity.Reference{Class: n.e.Class, ID: placeholderID}
	}
	for _, n := range sess.order {
		overrides, _ := resolve(n.e, placeholders)
		if _, err := enc.Encode(n.e, overrides); err != nil {
			return &EncodingError{Class: n.e.Class, LocalID: n.id, Err: err}
		}
	}
	return nil
}

// run commits the prepared graph: ready rounds first, then the root.
func (s *Saver) run(ctx context.Context, sess *session) (Result, error) {
	var (
		rounds   int
		requests int
		outcomes []Outcome
	)

	for {
		ready := sess.ready()
		if len(ready) == 0 {
			break
		}
		rounds++
		s.opts.Logger.Debug("committing round", "round", rounds, "ready", len(ready))

		var failures []ItemFailure
		for _, group := range groupByClass(ready) {
			for chunk := range slices.Chunk(group.nodes, s.opts.BatchLimit) {
				n, failed, err := s.commitBatch(ctx, sess, group.class, chunk, rounds)
				requests++
				outcomes = append(outcomes, n...)
				failures = append(failures, failed...)
				if err != nil {
					return Result{}, err
				}
			}
		}
		if len(failures) > 0 {
			return Result{}, &ChildSaveError{
				Failures:  failures,
				Persisted: slices.Clone(sess.persisted),
			}
		}
	}

	// Every non-root node is committed once the rounds drain without a
	// failure. Anything still pending means the graph changed under us.
	if left := sess.remaining(); len(left) > 0 {
		return Result{}, &ChildSaveError{
			Failures:  left,
			Persisted: slices.Clone(sess.persisted),
		}
	}

	out, err := s.commitRoot(ctx, sess)
	requests++
	if err != nil {
		return Result{}, err
	}
	outcomes = append(outcomes, out)
	return sess.result(rounds, requests, outcomes), nil
}

// commitBatch saves one chunk of same-class ready nodes. A non-nil error
// means the request as a whole failed and the call must stop.
func (s *Saver) commitBatch(ctx context.Context, sess *session, class string, nodes []*node, round int) ([]Outcome, []ItemFailure, error) {
	reqs := make([]transport.Request, len(nodes))
	for i, n := range nodes {
		req, err := s.request(sess, n)
		if err != nil {
			return nil, nil, err
		}
		reqs[i] = req
	}

	start := time.Now()
	observability.Save().OnBatchStart(ctx, class, len(reqs))
	results, err := s.transport.SaveMany(ctx, class, reqs)
	if err == nil && len(results) != len(reqs) {
		err = fmt.Errorf("%w: got %d, want %d", transport.ErrMismatchedResults, len(results), len(reqs))
	}
	if err != nil {
		observability.Save().OnBatchComplete(ctx, class, len(reqs), len(reqs), time.Since(start), err)
		s.opts.Logger.Debug("batch failed", "class", class, "size", len(reqs), "error", err)
		return nil, nil, &TransportError{
			Class:     class,
			Items:     len(reqs),
			Persisted: slices.Clone(sess.persisted),
			Err:       err,
		}
	}

	var (
		outcomes []Outcome
		failures []ItemFailure
	)
	for i, r := range results {
		n := nodes[i]
		if r.Err != nil {
			n.failed = true
			failures = append(failures, ItemFailure{
				LocalID: n.id,
				Class:   n.e.Class,
				Parents: parentIDs(n),
				Err:     r.Err,
			})
			continue
		}
		ref, err := checkRef(r.Ref, n.e.Class)
		if err != nil {
			n.failed = true
			failures = append(failures, ItemFailure{
				LocalID: n.id,
				Class:   n.e.Class,
				Parents: parentIDs(n),
				Err:     err,
			})
			continue
		}
		sess.commit(n, ref)
		outcomes = append(outcomes, Outcome{LocalID: n.id, Class: n.e.Class, Ref: ref, Round: round})
	}

	observability.Save().OnBatchComplete(ctx, class, len(reqs), len(failures), time.Since(start), nil)
	s.opts.Logger.Debug("batch committed",
		"class", class,
		"saved", len(outcomes),
		"failed", len(failures),
		"duration", time.Since(start))
	return outcomes, failures, nil
}

func (s *Saver) commitRoot(ctx context.Context, sess *session) (Outcome, error) {
	root := sess.root
	req, err := s.request(sess, root)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	ref, err := s.transport.SaveOne(ctx, req)
	if err == nil {
		ref, err = checkRef(ref, root.e.Class)
	}
	observability.Save().OnRootCommit(ctx, root.e.Class, time.Since(start), err)
	if err != nil {
		return Outcome{}, &TransportError{
			Class:     root.e.Class,
			Root:      true,
			Items:     1,
			Persisted: slices.Clone(sess.persisted),
			Err:       err,
		}
	}
	sess.commit(root, ref)
	s.opts.Logger.Info("saved", "root", ref, "objects", len(sess.refs), "duration", time.Since(start))
	return Outcome{LocalID: root.id, Class: root.e.Class, Ref: ref}, nil
}

// checkRef validates a reference the transport reported as saved. An empty
// class is taken to mean the requested one.
func checkRef(ref entity.Reference, class string) (entity.Reference, error) {
	if ref.ID == "" {
		return ref, fmt.Errorf("%w: empty object id", ErrBadReference)
	}
	if ref.Class == "" {
		ref.Class = class
	}
	if ref.Class != class {
		return ref, fmt.Errorf("%w: got class %q, want %q", ErrBadReference, ref.Class, class)
	}
	return ref, nil
}

// request resolves and encodes one node. Unresolved children block it.
func (s *Saver) request(sess *session, n *node) (transport.Request, error) {
	overrides, unresolved := resolve(n.e, sess.refs)
	if len(unresolved) > 0 {
		failures := make([]ItemFailure, 0, len(unresolved))
		for _, id := range unresolved {
			class := ""
			if e, ok := sess.byID[id]; ok {
				class = e.Class
			}
			failures = append(failures, ItemFailure{
				LocalID: id,
				Class:   class,
				Parents: []entity.LocalID{n.id},
				Err:     fmt.Errorf("no reference for child of %s", n.e),
			})
		}
		return transport.Request{}, &ChildSaveError{Failures: failures, Persisted: slices.Clone(sess.persisted)}
	}

	body, err := s.opts.Encoder.Encode(n.e, overrides)
	if err != nil {
		return transport.Request{}, &EncodingError{Class: n.e.Class, LocalID: n.id, Err: err}
	}
	return transport.Request{Class: n.e.Class, ObjectID: n.e.ID, Body: body}, nil
}

// =============================================================================
// Session bookkeeping
// =============================================================================

// ready returns the uncommitted, non-failed, non-root nodes whose children
// all have references, in discovery order.
func (s *session) ready() []*node {
	var out []*node
	for _, n := range s.unsaved() {
		if n.failed || len(n.pending) > 0 {
			continue
		}
		if _, done := s.refs[n.id]; done {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *session) commit(n *node, ref entity.Reference) {
	s.refs[n.id] = ref
	s.persisted = append(s.persisted, n.id)
	for _, p := range n.parents {
		delete(p.pending, n)
	}
}

// remaining reports non-root nodes that never got a reference.
func (s *session) remaining() []ItemFailure {
	var out []ItemFailure
	for _, n := range s.unsaved() {
		if _, done := s.refs[n.id]; done {
			continue
		}
		out = append(out, ItemFailure{
			LocalID: n.id,
			Class:   n.e.Class,
			Parents: parentIDs(n),
			Err:     fmt.Errorf("%d child(ren) never committed", len(n.pending)),
		})
	}
	return out
}

func parentIDs(n *node) []entity.LocalID {
	ids := make([]entity.LocalID, len(n.parents))
	for i, p := range n.parents {
		ids[i] = p.id
	}
	return ids
}

type classGroup struct {
	class string
	nodes []*node
}

// groupByClass groups ready nodes by class. Classes are sorted; nodes keep
// their discovery order.
func groupByClass(nodes []*node) []classGroup {
	idx := make(map[string]int)
	var groups []classGroup
	for _, n := range nodes {
		i, ok := idx[n.e.Class]
		if !ok {
			i = len(groups)
			idx[n.e.Class] = i
			groups = append(groups, classGroup{class: n.e.Class})
		}
		groups[i].nodes = append(groups[i].nodes, n)
	}
	slices.SortFunc(groups, func(a, b classGroup) int { return cmp.Compare(a.class, b.class) })
	return groups
}
