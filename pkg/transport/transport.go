// Package transport defines how the deep-save engine reaches the backend.
//
// A [Transport] offers exactly two operations: a single save and a batch
// save of several objects of one class. The engine never talks to HTTP or
// a database directly; it goes through this interface, which keeps it
// testable against [Direct] and lets [rest] speak the real wire protocol.
//
// [rest]: github.com/matzehuels/deepsave/pkg/transport/rest
package transport

import (
	"context"
	"errors"

	"github.com/matzehuels/deepsave/pkg/entity"
)

// ErrMismatchedResults is returned when a batch response does not carry
// exactly one result per request.
var ErrMismatchedResults = errors.New("batch returned wrong number of results")

// Request is one object to save. ObjectID is set when the object already
// exists remotely and the save is an update.
type Request struct {
	Class    string
	ObjectID string
	Body     map[string]any
}

// Result is the outcome of one item of a batch. Exactly one of Ref and Err
// is meaningful.
type Result struct {
	Ref entity.Reference
	Err error
}

// Transport saves encoded objects.
type Transport interface {
	// SaveOne saves a single object and returns its reference.
	SaveOne(ctx context.Context, req Request) (entity.Reference, error)

	// SaveMany saves objects of one class in a single round trip. Results
	// are in input order and item errors are independent of each other.
	// A non-nil error means the whole request failed.
	SaveMany(ctx context.Context, class string, reqs []Request) ([]Result, error)
}
