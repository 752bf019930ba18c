// Package cache provides byte-oriented caching backends for index responses
// and derived release metadata.
//
// Backends implement [Cache]:
//   - [FileCache]: one file per key under a directory (CLI default)
//   - [BoltCache]: a single bbolt database file, handy for long batch runs
//   - [RedisCache]: shared cache for scanner workers on different hosts
//   - [NullCache]: caching disabled
//
// Keys are produced by a [Keyer] so that different index endpoints can share
// one backend without collisions.
package cache

import (
	"context"
	"time"
)

// Default time-to-live values per entry kind.
const (
	// TTLIndex bounds how long a project's release listing is reused.
	TTLIndex = 24 * time.Hour

	// TTLMetadata applies to metadata extracted from a published artifact.
	// Published files are immutable, so this is long.
	TTLMetadata = 30 * 24 * time.Hour
)

// Cache stores opaque byte values under string keys.
type Cache interface {
	// Get returns the value for key. The bool reports a hit; a miss is not
	// an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer generates cache keys.
type Keyer interface {
	// IndexKey is the key for a raw index response.
	IndexKey(namespace, key string) string
	// MetadataKey is the key for extracted release metadata.
	MetadataKey(name, version string) string
}

// DefaultKeyer is the unscoped [Keyer].
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// IndexKey returns "http:<namespace>:<key>".
func (DefaultKeyer) IndexKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// MetadataKey hashes name and version into a fixed-length key.
func (DefaultKeyer) MetadataKey(name, version string) string {
	return hashKey("meta", name, version)
}

// ScopedKeyer prefixes every key of an inner Keyer, so scanners pointed at
// different indexes can share one backend.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer returns a ScopedKeyer. A nil inner means DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

func (k *ScopedKeyer) IndexKey(namespace, key string) string {
	return k.prefix + k.inner.IndexKey(namespace, key)
}

func (k *ScopedKeyer) MetadataKey(name, version string) string {
	return k.prefix + k.inner.MetadataKey(name, version)
}

// NullCache never stores anything. It backs the "none" cache backend.
type NullCache struct{}

// NewNullCache returns a NullCache.
func NewNullCache() Cache { return &NullCache{} }

func (*NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (*NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (*NullCache) Delete(context.Context, string) error                     { return nil }
func (*NullCache) Close() error                                             { return nil }
