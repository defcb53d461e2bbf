// Package cache stores fetched objects so repeated reads skip the network.
//
// A [Cache] is a byte-oriented key/value store with per-entry TTL.
// Implementations:
//   - [FileCache]: one JSON file per entry under a directory, for the CLI
//   - [RedisCache]: shared cache for servers and multiple processes
//   - [NullCache]: caching disabled
//
// Keys come from a [Keyer] so that every component agrees on the layout.
// Wrap a Keyer with [NewScopedKeyer] to keep tenants (for example two
// application IDs sharing one Redis) apart.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long fetched objects stay cached when no TTL is set.
const DefaultTTL = 10 * time.Minute

// Cache stores opaque values by key.
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}
