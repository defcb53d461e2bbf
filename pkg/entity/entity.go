package entity

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
)

var (
	// ErrEmptyClass is returned by [Entity.Validate] when the class name is empty.
	ErrEmptyClass = errors.New("class name must not be empty")

	// ErrNoLocalID is returned by [Entity.Validate] for zero-value entities
	// that were not created with [New] and therefore carry no LocalID.
	ErrNoLocalID = errors.New("entity has no local id (use entity.New)")

	// ErrEmptyField is returned by [Entity.Set] when the field name is empty.
	ErrEmptyField = errors.New("field name must not be empty")
)

// LocalID identifies an Entity instance before it has a remote identifier.
// It is synthesized once by [New] and never changes for the lifetime of the
// instance, so it can be used as a map key across the phases of a save.
type LocalID string

// Reference is a lightweight handle to a persisted Entity. It carries only
// the class name and the remote identifier, never field contents.
type Reference struct {
	Class string `json:"className"`
	ID    string `json:"objectId"`
}

// IsZero reports whether r refers to nothing.
func (r Reference) IsZero() bool { return r.Class == "" && r.ID == "" }

func (r Reference) String() string { return r.Class + "/" + r.ID }

// Entity is an application object that maps to a remotely persisted record.
//
// Field values may be scalars, nested *Entity values, homogeneous
// []*Entity sequences, or [Reference] values. Entities are handled by
// pointer: two distinct instances with equal contents are two different
// objects and are saved independently.
//
// Entity is not safe for concurrent mutation. Reading an Entity from several
// goroutines (for example two concurrent saves) is fine as long as nobody
// mutates it meanwhile.
type Entity struct {
	Class string // Remote class (collection) name
	ID    string // Remote identifier; empty until persisted

	localID  LocalID
	fields   map[string]any
	readOnly map[string]bool
}

// New creates an unsaved Entity of the given class with a fresh LocalID.
func New(class string) *Entity {
	return &Entity{
		Class:   class,
		localID: LocalID(uuid.NewString()),
		fields:  make(map[string]any),
	}
}

// Existing creates an Entity that already has a remote identifier.
// Such entities are referenced by pointer and never re-saved by a deep save.
func Existing(class, id string) *Entity {
	e := New(class)
	e.ID = id
	return e
}

// LocalID returns the instance's stable local identity.
func (e *Entity) LocalID() LocalID { return e.localID }

// IsNew reports whether the entity has not been persisted yet.
func (e *Entity) IsNew() bool { return e.ID == "" }

// Ref returns the Reference for a persisted entity. The result has an
// empty ID when the entity is unsaved.
func (e *Entity) Ref() Reference { return Reference{Class: e.Class, ID: e.ID} }

// Set stores a field value and returns e for chaining. Set panics on an
// empty field name; use [Entity.TrySet] when the name comes from input.
func (e *Entity) Set(field string, value any) *Entity {
	if err := e.TrySet(field, value); err != nil {
		panic(err)
	}
	return e
}

// TrySet stores a field value, returning [ErrEmptyField] for an empty name.
func (e *Entity) TrySet(field string, value any) error {
	if field == "" {
		return ErrEmptyField
	}
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[field] = value
	return nil
}

// Get returns a field value and whether it was set.
func (e *Entity) Get(field string) (any, bool) {
	v, ok := e.fields[field]
	return v, ok
}

// Delete removes a field.
func (e *Entity) Delete(field string) { delete(e.fields, field) }

// Keys returns the field names in sorted order.
func (e *Entity) Keys() []string { return slices.Sorted(maps.Keys(e.fields)) }

// Len returns the number of fields.
func (e *Entity) Len() int { return len(e.fields) }

// SetReadOnly marks a field as non-writable. The encoder omits read-only
// fields from request bodies, though they still participate in the graph.
func (e *Entity) SetReadOnly(field string) *Entity {
	if e.readOnly == nil {
		e.readOnly = make(map[string]bool)
	}
	e.readOnly[field] = true
	return e
}

// IsReadOnly reports whether a field is marked non-writable.
func (e *Entity) IsReadOnly(field string) bool { return e.readOnly[field] }

// Clone returns a shallow copy with a fresh LocalID and no remote ID.
// Nested entities are shared, not copied.
func (e *Entity) Clone() *Entity {
	c := New(e.Class)
	maps.Copy(c.fields, e.fields)
	if len(e.readOnly) > 0 {
		c.readOnly = maps.Clone(e.readOnly)
	}
	return c
}

// Validate checks that the entity can take part in a save.
func (e *Entity) Validate() error {
	if e.localID == "" {
		return ErrNoLocalID
	}
	if e.Class == "" {
		return ErrEmptyClass
	}
	return nil
}

func (e *Entity) String() string {
	if e.ID != "" {
		return fmt.Sprintf("%s(%s)", e.Class, e.ID)
	}
	return fmt.Sprintf("%s<%s>", e.Class, e.localID)
}
