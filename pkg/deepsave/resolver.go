package deepsave

import (
	"github.com/matzehuels/deepsave/pkg/entity"
)

// resolve computes the field overrides that replace e's unsaved children
// with their references. Singular fields pointing at already identified
// entities are left to the encoder. A sequence containing at least one
// unsaved element is rewritten whole, as a []any of references.
//
// Children missing from refs are returned in unresolved; e must not be
// committed while that list is non-empty.
func resolve(e *entity.Entity, refs map[entity.LocalID]entity.Reference) (map[string]any, []entity.LocalID) {
	var (
		overrides  map[string]any
		unresolved []entity.LocalID
	)
	set := func(field string, v any) {
		if overrides == nil {
			overrides = make(map[string]any)
		}
		overrides[field] = v
	}

	for _, k := range e.Keys() {
		v, _ := e.Get(k)
		switch x := v.(type) {
		case *entity.Entity:
			if x == nil || !x.IsNew() {
				continue
			}
			if ref, ok := refs[x.LocalID()]; ok {
				set(k, ref)
			} else {
				unresolved = append(unresolved, x.LocalID())
			}
		case []*entity.Entity:
			if !hasNew(x) {
				continue
			}
			seq := make([]any, len(x))
			for i, c := range x {
				switch {
				case c == nil:
					seq[i] = nil
				case !c.IsNew():
					seq[i] = c.Ref()
				default:
					ref, ok := refs[c.LocalID()]
					if !ok {
						unresolved = append(unresolved, c.LocalID())
						continue
					}
					seq[i] = ref
				}
			}
			set(k, seq)
		}
	}
	return overrides, unresolved
}

func hasNew(es []*entity.Entity) bool {
	for _, c := range es {
		if c != nil && c.IsNew() {
			return true
		}
	}
	return false
}
