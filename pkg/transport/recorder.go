package transport

import (
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/deepsave/pkg/entity"
)

// Call is one recorded transport call. Many is false for SaveOne.
type Call struct {
	Many     bool
	Class    string
	Requests []Request
}

// Recorder wraps a Transport and remembers every call made through it.
// It is safe for concurrent use.
type Recorder struct {
	next Transport

	mu    sync.Mutex
	calls []Call
}

// NewRecorder wraps next.
func NewRecorder(next Transport) *Recorder {
	return &Recorder{next: next}
}

// SaveOne implements [Transport].
func (r *Recorder) SaveOne(ctx context.Context, req Request) (entity.Reference, error) {
	r.record(Call{Class: req.Class, Requests: []Request{req}})
	return r.next.SaveOne(ctx, req)
}

// SaveMany implements [Transport].
func (r *Recorder) SaveMany(ctx context.Context, class string, reqs []Request) ([]Result, error) {
	r.record(Call{Many: true, Class: class, Requests: slices.Clone(reqs)})
	return r.next.SaveMany(ctx, class, reqs)
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Count returns the number of recorded calls.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

var _ Transport = (*Recorder)(nil)
