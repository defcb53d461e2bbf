package deepsave

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/deepsave/pkg/codec"
	"github.com/matzehuels/deepsave/pkg/entity"
	"github.com/matzehuels/deepsave/pkg/transport"
)

// DefaultBatchLimit is the largest number of objects sent in one batch
// request. It matches the backend's cap on /batch.
const DefaultBatchLimit = 50

// Options configures a Saver. Zero values select defaults.
type Options struct {
	// Encoder builds request bodies. Defaults to [codec.Wire].
	Encoder codec.Encoder

	// BatchLimit caps the size of one SaveMany call. Larger ready groups
	// are split into several calls within the same round.
	BatchLimit int

	// Logger receives progress at debug level and the root commit at info.
	// Defaults to a discarding logger.
	Logger *log.Logger
}

func (o *Options) setDefaults() {
	if o.Encoder == nil {
		o.Encoder = codec.Wire{}
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = DefaultBatchLimit
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Saver performs deep saves through a Transport.
//
// A Saver holds only configuration. It is safe to call Save from several
// goroutines at once; every call owns its traversal state.
type Saver struct {
	transport transport.Transport
	opts      Options
}

// New creates a Saver.
func New(t transport.Transport, opts Options) *Saver {
	opts.setDefaults()
	return &Saver{transport: t, opts: opts}
}

// Save persists root together with every unsaved entity reachable from it.
//
// Save never modifies the entities it is given. On success the returned
// [Result] maps each saved entity's LocalID to its new reference; use
// [entity.Apply] to copy the IDs back. On failure no map is returned and the
// error is one of [*CircularDependencyError], [*EncodingError],
// [*ChildSaveError] or [*TransportError].
//
// Once a round reports an item failure no further rounds are sent, so
// branches that did not depend on the failed entity may be left unsaved.
// Retrying them is up to the caller.
func (s *Saver) Save(ctx context.Context, root *entity.Entity) (Result, error) {
	sess, err := s.prepare(ctx, root)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, sess)
}

// Dispatcher runs completion callbacks on a caller-chosen context, such as
// an event loop or a worker pool.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to [Dispatcher].
type DispatcherFunc func(fn func())

// Dispatch implements [Dispatcher].
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// SaveAsync runs Save on a new goroutine and calls done exactly once with
// its outcome. done is handed to d; with a nil Dispatcher it runs on the
// worker goroutine.
func (s *Saver) SaveAsync(ctx context.Context, root *entity.Entity, d Dispatcher, done func(Result, error)) {
	go func() {
		res, err := s.Save(ctx, root)
		if done == nil {
			return
		}
		if d == nil {
			done(res, err)
			return
		}
		d.Dispatch(func() { done(res, err) })
	}()
}

// Plan reports what Save would do for root without sending anything.
func (s *Saver) Plan(root *entity.Entity) (*PlanResult, error) {
	return plan(root, s.opts.Encoder, s.opts.BatchLimit)
}
