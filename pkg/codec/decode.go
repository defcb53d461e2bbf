package codec

import (
	"encoding/base64"
	"time"

	"github.com/matzehuels/deepsave/pkg/entity"
)

// Decode converts a wire value back into Go values: pointers become
// [entity.Reference], dates [time.Time], bytes []byte. Objects and arrays
// are decoded recursively. Malformed typed objects are returned unchanged.
func Decode(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if typed, ok := decodeTyped(x); ok {
			return typed
		}
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = Decode(el)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = Decode(el)
		}
		return out
	default:
		return v
	}
}

// DecodeReference extracts a reference from a wire pointer.
func DecodeReference(v any) (entity.Reference, bool) {
	m, ok := v.(map[string]any)
	if !ok || m["__type"] != TypePointer {
		return entity.Reference{}, false
	}
	class, _ := m["className"].(string)
	id, _ := m["objectId"].(string)
	if class == "" || id == "" {
		return entity.Reference{}, false
	}
	return entity.Reference{Class: class, ID: id}, true
}

func decodeTyped(m map[string]any) (any, bool) {
	switch m["__type"] {
	case TypePointer:
		return DecodeReference(m)
	case TypeDate:
		s, _ := m["iso"].(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, false
		}
		return t, true
	case TypeBytes:
		s, _ := m["base64"].(string)
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}
