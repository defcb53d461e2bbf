// Package codec encodes entities into request bodies and decodes stored
// objects back into Go values.
//
// The [Wire] encoder writes the JSON dialect the REST endpoints speak.
// It omits server-owned fields (objectId, createdAt, updatedAt) and any
// field marked read-only, and it accepts per-field overrides so a caller
// can substitute a pre-resolved reference for a nested entity.
package codec
