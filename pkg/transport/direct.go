package transport

import (
	"context"
	"fmt"

	"github.com/matzehuels/deepsave/pkg/entity"
	"github.com/matzehuels/deepsave/pkg/store"
)

// DirectTransport saves straight into a [store.Store] without HTTP.
type DirectTransport struct {
	store store.Store
}

// Direct adapts s to the Transport interface.
func Direct(s store.Store) *DirectTransport {
	return &DirectTransport{store: s}
}

// SaveOne implements [Transport].
func (d *DirectTransport) SaveOne(ctx context.Context, req Request) (entity.Reference, error) {
	var (
		rec store.Record
		err error
	)
	if req.ObjectID != "" {
		rec, err = d.store.Update(ctx, req.Class, req.ObjectID, req.Body)
	} else {
		rec, err = d.store.Create(ctx, req.Class, req.Body)
	}
	if err != nil {
		return entity.Reference{}, err
	}
	return entity.Reference{Class: req.Class, ID: rec.ID}, nil
}

// SaveMany implements [Transport]. Requests carrying an ObjectID are
// updated one by one; the rest go through a single CreateMany.
func (d *DirectTransport) SaveMany(ctx context.Context, class string, reqs []Request) ([]Result, error) {
	out := make([]Result, len(reqs))

	var (
		docs []store.Document
		idx  []int
	)
	for i, r := range reqs {
		if r.ObjectID != "" {
			rec, err := d.store.Update(ctx, class, r.ObjectID, r.Body)
			out[i] = Result{Ref: entity.Reference{Class: class, ID: rec.ID}, Err: err}
			continue
		}
		docs = append(docs, r.Body)
		idx = append(idx, i)
	}
	if len(docs) == 0 {
		return out, nil
	}

	results, err := d.store.CreateMany(ctx, class, docs)
	if err != nil {
		return nil, err
	}
	if len(results) != len(docs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrMismatchedResults, len(results), len(docs))
	}
	for j, r := range results {
		res := Result{Err: r.Err}
		if r.Err == nil {
			res.Ref = entity.Reference{Class: class, ID: r.Record.ID}
		}
		out[idx[j]] = res
	}
	return out, nil
}

var _ Transport = (*DirectTransport)(nil)
