// Package memory provides an in-process [store.Store].
//
// The store is safe for concurrent use. It is meant for tests, examples
// and running the reference server without external services; nothing
// survives the process.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/matzehuels/deepsave/pkg/store"
)

// RejectFunc decides whether a document is refused. A non-nil error
// becomes that item's failure, which lets tests fail single batch items.
type RejectFunc func(class string, doc store.Document) error

// Store keeps objects in maps keyed by class and ID.
type Store struct {
	mu      sync.RWMutex
	objects map[string]map[string]store.Record
	reject  RejectFunc
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithReject installs a RejectFunc consulted before every insert.
func WithReject(fn RejectFunc) Option {
	return func(s *Store) { s.reject = fn }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{objects: make(map[string]map[string]store.Record)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, class string, doc store.Document) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(class, doc)
}

// CreateMany implements [store.Store].
func (s *Store) CreateMany(ctx context.Context, class string, docs []store.Document) ([]store.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	results := make([]store.Result, len(docs))
	for i, doc := range docs {
		rec, err := s.insert(class, doc)
		results[i] = store.Result{Record: rec, Err: err}
	}
	return results, nil
}

func (s *Store) insert(class string, doc store.Document) (store.Record, error) {
	if s.closed {
		return store.Record{}, store.ErrClosed
	}
	if s.reject != nil {
		if err := s.reject(class, doc); err != nil {
			return store.Record{}, err
		}
	}
	now := store.Now()
	rec := store.Record{
		Class:     class,
		ID:        store.NewObjectID(),
		CreatedAt: now,
		UpdatedAt: now,
		Data:      maps.Clone(doc),
	}
	if s.objects[class] == nil {
		s.objects[class] = make(map[string]store.Record)
	}
	s.objects[class][rec.ID] = rec
	return rec, nil
}

// Update implements [store.Store].
func (s *Store) Update(ctx context.Context, class, id string, doc store.Document) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Record{}, store.ErrClosed
	}
	rec, ok := s.objects[class][id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	if s.reject != nil {
		if err := s.reject(class, doc); err != nil {
			return store.Record{}, err
		}
	}
	rec.Data = maps.Clone(doc)
	rec.UpdatedAt = store.Now()
	s.objects[class][id] = rec
	return rec, nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, class, id string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.Record{}, store.ErrClosed
	}
	rec, ok := s.objects[class][id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

// Count returns the number of objects stored for class.
func (s *Store) Count(class string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects[class])
}

// All returns every stored object of class, in no particular order.
func (s *Store) All(class string) []store.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Record, 0, len(s.objects[class]))
	for _, rec := range s.objects[class] {
		out = append(out, rec)
	}
	return out
}

// Close implements [store.Store].
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ store.Store = (*Store)(nil)
