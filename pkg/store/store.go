// Package store defines the persistence backends behind the reference
// server and the direct transport.
//
// A [Store] keeps objects grouped by class. Each backend assigns object
// identifiers itself, records creation and update times, and reports
// per-item outcomes for batch inserts so one bad document does not sink
// its siblings.
//
// Implementations:
//   - memory: in-process maps, for tests and local runs
//   - mongo: one MongoDB collection per class
//   - redis: one hash per object, batches pipelined
//   - sqlite: a single objects table
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// Document is the encoded field set of one object.
type Document map[string]any

// Record is a stored object.
type Record struct {
	Class     string    `json:"className"`
	ID        string    `json:"objectId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Data      Document  `json:"data"`
}

// Result is the outcome of one item in a batch insert.
type Result struct {
	Record Record
	Err    error
}

// Store persists objects by class.
type Store interface {
	// Create inserts a new object and returns it with its assigned ID.
	Create(ctx context.Context, class string, doc Document) (Record, error)

	// CreateMany inserts several objects of one class. The returned slice
	// has one entry per input document, in input order. A non-nil error
	// means the whole call failed and no result is meaningful.
	CreateMany(ctx context.Context, class string, docs []Document) ([]Result, error)

	// Update replaces the fields of an existing object.
	// Returns ErrNotFound if the object does not exist.
	Update(ctx context.Context, class, id string, doc Document) (Record, error)

	// Get retrieves an object. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, class, id string) (Record, error)

	// Close releases the backend's resources.
	Close() error
}

const (
	objectIDLength   = 10
	objectIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewObjectID returns a random 10-character alphanumeric identifier.
func NewObjectID() string {
	b := make([]byte, objectIDLength)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = objectIDAlphabet[int(b[i])%len(objectIDAlphabet)]
	}
	return string(b)
}

// Now returns the current time truncated to milliseconds, the precision
// dates have on the wire.
func Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
