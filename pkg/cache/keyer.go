package cache

import "github.com/matzehuels/deepsave/pkg/entity"

// Keyer builds cache keys.
type Keyer interface {
	// ObjectKey is the key for a fetched object.
	ObjectKey(ref entity.Reference) string

	// HTTPKey is the key for a raw HTTP response in a namespace.
	HTTPKey(namespace, key string) string
}

// DefaultKeyer produces unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// ObjectKey implements [Keyer]: object:{class}:{id}.
func (DefaultKeyer) ObjectKey(ref entity.Reference) string {
	return "object:" + ref.Class + ":" + ref.ID
}

// HTTPKey implements [Keyer]: http:{namespace}:{key}.
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}
