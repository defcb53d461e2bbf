package deepsave

import (
	"maps"
	"slices"

	"github.com/matzehuels/deepsave/pkg/entity"
)

// Outcome is the result of saving one entity during a call.
type Outcome struct {
	LocalID entity.LocalID
	Class   string
	Ref     entity.Reference
	Round   int // 0 for the root commit
}

// Result is returned by a successful [Saver.Save].
type Result struct {
	// Refs maps every entity saved during the call, root included, to its
	// reference. Entities that were already identified are not listed.
	Refs map[entity.LocalID]entity.Reference

	// Outcomes lists the saved entities in commit order.
	Outcomes []Outcome

	// Root is the root's reference.
	Root entity.Reference

	// Rounds is the number of batch phases before the root commit.
	Rounds int

	// Requests is the number of transport calls, root commit included.
	Requests int
}

// Ref looks up the reference assigned to e.
func (r Result) Ref(e *entity.Entity) (entity.Reference, bool) {
	ref, ok := r.Refs[e.LocalID()]
	return ref, ok
}

// LocalIDs returns the saved LocalIDs in sorted order.
func (r Result) LocalIDs() []entity.LocalID {
	return slices.Sorted(maps.Keys(r.Refs))
}

// result turns the session into the caller-facing value. Only called on
// success; failures carry no reference map.
func (s *session) result(rounds, requests int, outcomes []Outcome) Result {
	return Result{
		Refs:     maps.Clone(s.refs),
		Outcomes: outcomes,
		Root:     s.refs[s.root.id],
		Rounds:   rounds,
		Requests: requests,
	}
}
