package deepsave

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matzehuels/deepsave/pkg/entity"
	deerrors "github.com/matzehuels/deepsave/pkg/errors"
)

// Sentinel errors. Every error returned by [Saver.Save] matches exactly one
// of them with errors.Is.
var (
	ErrCircularDependency = errors.New("circular dependency")
	ErrChildSave          = errors.New("child save failed")
	ErrEncoding           = errors.New("encoding failed")
	ErrTransport          = errors.New("transport failed")
)

// ErrNilRoot is wrapped in an [EncodingError] when Save is called without
// a root.
var ErrNilRoot = errors.New("root entity is nil")

// ErrBadReference is the cause recorded when the transport reports success
// but returns a reference without an ID or for a different class.
var ErrBadReference = errors.New("transport returned an invalid reference")

// Hop is one entity on a reported path.
type Hop struct {
	Class   string
	LocalID entity.LocalID
}

func (h Hop) String() string { return fmt.Sprintf("%s<%s>", h.Class, h.LocalID) }

// =============================================================================
// CircularDependencyError
// =============================================================================

// CircularDependencyError reports an entity reachable from itself. Path
// starts and ends with the same entity. No request was sent.
type CircularDependencyError struct {
	Path []Hop
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Path))
	for i, h := range e.Path {
		parts[i] = h.String()
	}
	return fmt.Sprintf("%v: %s", ErrCircularDependency, strings.Join(parts, " -> "))
}

func (e *CircularDependencyError) Is(target error) bool { return target == ErrCircularDependency }
func (e *CircularDependencyError) Code() deerrors.Code  { return deerrors.ErrCodeCircularDependency }

// =============================================================================
// EncodingError
// =============================================================================

// EncodingError reports an entity that cannot be turned into a request body
// or that has a shape the walker rejects. No request was sent.
type EncodingError struct {
	Class   string
	LocalID entity.LocalID
	Err     error
}

func (e *EncodingError) Error() string {
	if e.Class == "" && e.LocalID == "" {
		return fmt.Sprintf("%v: %v", ErrEncoding, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrEncoding, Hop{e.Class, e.LocalID}, e.Err)
}

func (e *EncodingError) Unwrap() error        { return e.Err }
func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }
func (e *EncodingError) Code() deerrors.Code  { return deerrors.ErrCodeEncodingFailure }

// =============================================================================
// ChildSaveError
// =============================================================================

// ItemFailure is one entity whose batched save failed.
type ItemFailure struct {
	LocalID entity.LocalID
	Class   string
	Parents []entity.LocalID // parents left without a reference
	Err     error
}

// ChildSaveError reports descendants that could not be saved. The root was
// not committed. Persisted lists entities that were written before the
// call stopped; they stay on the server.
type ChildSaveError struct {
	Failures  []ItemFailure
	Persisted []entity.LocalID
}

func (e *ChildSaveError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %d item(s)", ErrChildSave, len(e.Failures))
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-i)
			break
		}
		fmt.Fprintf(&b, "; %s: %v", Hop{f.Class, f.LocalID}, f.Err)
	}
	return b.String()
}

// Unwrap returns the per-item causes.
func (e *ChildSaveError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

func (e *ChildSaveError) Is(target error) bool { return target == ErrChildSave }
func (e *ChildSaveError) Code() deerrors.Code  { return deerrors.ErrCodeChildSaveFailure }

// =============================================================================
// TransportError
// =============================================================================

// TransportError reports a request that failed as a whole: a batch for
// Class, or the root commit when Root is set.
type TransportError struct {
	Class     string
	Root      bool
	Items     int
	Persisted []entity.LocalID
	Err       error
}

func (e *TransportError) Error() string {
	if e.Root {
		return fmt.Sprintf("%v: commit root %s: %v", ErrTransport, e.Class, e.Err)
	}
	return fmt.Sprintf("%v: batch of %d %s: %v", ErrTransport, e.Items, e.Class, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
func (e *TransportError) Code() deerrors.Code  { return deerrors.ErrCodeTransportFailure }
