package entity

// Child is one nested entity found in a field. Index is the position inside
// a sequence field, or -1 for a singular field.
type Child struct {
	Field  string
	Index  int
	Entity *Entity
}

// Children returns the nested entities referenced by e's fields, in field
// key order and then sequence order. Nil entries are skipped.
func (e *Entity) Children() []Child {
	var out []Child
	for _, k := range e.Keys() {
		switch v := e.fields[k].(type) {
		case *Entity:
			if v != nil {
				out = append(out, Child{Field: k, Index: -1, Entity: v})
			}
		case []*Entity:
			for i, c := range v {
				if c != nil {
					out = append(out, Child{Field: k, Index: i, Entity: c})
				}
			}
		}
	}
	return out
}

// Apply copies assigned identifiers back into the graph rooted at root.
// Every reachable entity whose LocalID appears in refs gets its ID set.
// Apply tolerates cycles and returns the number of entities updated.
func Apply(root *Entity, refs map[LocalID]Reference) int {
	if root == nil {
		return 0
	}
	seen := make(map[*Entity]bool)
	updated := 0

	var visit func(e *Entity)
	visit = func(e *Entity) {
		if seen[e] {
			return
		}
		seen[e] = true
		if ref, ok := refs[e.localID]; ok && e.ID != ref.ID {
			e.ID = ref.ID
			updated++
		}
		for _, c := range e.Children() {
			visit(c.Entity)
		}
	}
	visit(root)
	return updated
}
