package store

import (
	"testing"

	"github.com/matzehuels/deepsave/pkg/errors"
)

func TestNewObjectID(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewObjectID()
		if len(id) != objectIDLength {
			t.Fatalf("NewObjectID() = %q, want length %d", id, objectIDLength)
		}
		if err := errors.ValidateObjectID(id); err != nil {
			t.Fatalf("NewObjectID() = %q is not a valid id: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("NewObjectID() repeated %q", id)
		}
		seen[id] = true
	}
}

func TestNow_Millisecond(t *testing.T) {
	if n := Now(); n.Nanosecond()%1e6 != 0 {
		t.Errorf("Now() = %v has sub-millisecond precision", n)
	}
}
