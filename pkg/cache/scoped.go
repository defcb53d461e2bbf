package cache

import "github.com/matzehuels/deepsave/pkg/entity"

// ScopedKeyer wraps a Keyer with a prefix for multi-tenant isolation.
// The REST client scopes keys by application ID so that two applications
// sharing one cache never see each other's objects.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "app:"+appID+":")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ObjectKey generates a prefixed key for a fetched object.
func (k *ScopedKeyer) ObjectKey(ref entity.Reference) string {
	return k.prefix + k.inner.ObjectKey(ref)
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}
