package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/matzehuels/deepsave/pkg/entity"
)

var (
	// ErrUnsupportedType is returned for field values the wire format cannot
	// represent (channels, functions, NaN, arbitrary structs).
	ErrUnsupportedType = errors.New("unsupported field type")

	// ErrUnresolvedEntity is returned when a field points at an unsaved
	// entity and no pre-resolved reference was supplied for it.
	ErrUnresolvedEntity = errors.New("field references an unsaved entity")

	// ErrNestedEntity is returned when an entity is buried inside a plain
	// array or object. Only direct fields and []*entity.Entity are walked.
	ErrNestedEntity = errors.New("entity nested inside array or object")

	// ErrInvalidReference is returned for a Reference without class or id.
	ErrInvalidReference = errors.New("reference needs class and id")
)

// Wire type markers.
const (
	TypePointer = "Pointer"
	TypeDate    = "Date"
	TypeBytes   = "Bytes"
)

// DateLayout is the ISO-8601 layout used for dates on the wire.
const DateLayout = "2006-01-02T15:04:05.000Z"

// System fields the server owns. They are never written by a client.
var systemFields = map[string]bool{
	"objectId":  true,
	"createdAt": true,
	"updatedAt": true,
}

// Encoder turns an entity into a request body.
//
// overrides maps field names to values that replace the field's own value
// before encoding. The deep-save engine uses it to put a [entity.Reference]
// (or a []any of references) where an unsaved child used to be.
type Encoder interface {
	Encode(e *entity.Entity, overrides map[string]any) (map[string]any, error)
}

// FieldError reports which field failed to encode.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("field %q: %v", e.Field, e.Err) }
func (e *FieldError) Unwrap() error { return e.Err }

// Wire encodes bodies in the JSON shape the REST endpoints accept.
// Pointers become {"__type":"Pointer","className","objectId"}, dates
// {"__type":"Date","iso"} and byte slices {"__type":"Bytes","base64"}.
// System fields and fields marked read-only are omitted.
type Wire struct{}

// Encode implements [Encoder].
func (Wire) Encode(e *entity.Entity, overrides map[string]any) (map[string]any, error) {
	body := make(map[string]any, e.Len())
	for _, k := range e.Keys() {
		if systemFields[k] || e.IsReadOnly(k) {
			continue
		}
		v, _ := e.Get(k)
		if o, ok := overrides[k]; ok {
			v = o
		}
		enc, err := encodeField(v)
		if err != nil {
			return nil, &FieldError{Field: k, Err: err}
		}
		body[k] = enc
	}
	return body, nil
}

// Pointer returns the wire form of a reference.
func Pointer(r entity.Reference) map[string]any {
	return map[string]any{"__type": TypePointer, "className": r.Class, "objectId": r.ID}
}

func encodeField(v any) (any, error) {
	switch x := v.(type) {
	case *entity.Entity:
		if x == nil {
			return nil, nil
		}
		if x.IsNew() {
			return nil, ErrUnresolvedEntity
		}
		return Pointer(x.Ref()), nil
	case []*entity.Entity:
		out := make([]any, len(x))
		for i, c := range x {
			if c == nil {
				return nil, fmt.Errorf("element %d: %w", i, ErrUnsupportedType)
			}
			if c.IsNew() {
				return nil, fmt.Errorf("element %d: %w", i, ErrUnresolvedEntity)
			}
			out[i] = Pointer(c.Ref())
		}
		return out, nil
	}
	return encodeValue(v)
}

func encodeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, x)
		}
		return x, nil
	case time.Time:
		return map[string]any{"__type": TypeDate, "iso": x.UTC().Format(DateLayout)}, nil
	case []byte:
		return map[string]any{"__type": TypeBytes, "base64": base64.StdEncoding.EncodeToString(x)}, nil
	case entity.Reference:
		if x.Class == "" || x.ID == "" {
			return nil, ErrInvalidReference
		}
		return Pointer(x), nil
	case *entity.Entity, []*entity.Entity:
		return nil, ErrNestedEntity
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			enc, err := encodeValue(f)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			enc, err := encodeValue(el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			enc, err := encodeValue(el)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// CheckField reports whether a field value has a shape the walker and the
// encoder can handle, without requiring nested entities to be saved.
// Plain arrays and objects must not hide entities; everything else must be
// encodable.
func CheckField(v any) error {
	switch x := v.(type) {
	case *entity.Entity:
		return nil
	case []*entity.Entity:
		for i, c := range x {
			if c == nil {
				return fmt.Errorf("element %d: %w", i, ErrUnsupportedType)
			}
		}
		return nil
	}
	_, err := encodeValue(v)
	return err
}
