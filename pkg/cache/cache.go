// Package cache stores generated documentation and other expensive results
// between runs.
//
// Four backends implement [Cache]:
//   - [FileCache] keeps entries as JSON files under a directory (the CLI default)
//   - [MemoryCache] is a size-bounded in-process LRU
//   - [RedisCache] shares entries between CI agents
//   - [NullCache] disables caching entirely
//
// Keys are produced by a [Keyer] so that every backend sees the same
// deterministic key for the same input.
package cache

import (
	"context"
	"time"
)

// Default TTLs by content kind.
const (
	// TTLDocs bounds how long generated documentation is reused.
	TTLDocs = 7 * 24 * time.Hour

	// TTLVerify bounds how long a pack verification verdict is reused by the server.
	TTLVerify = 10 * time.Minute
)

// Cache is a byte-oriented key/value store with optional expiry.
// A zero ttl stores the entry without expiration.
type Cache interface {
	// Get returns the stored value and whether it was found.
	// Expired or corrupt entries are reported as a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer produces cache keys.
type Keyer interface {
	// DocsKey returns the key for a generated document of the given kind
	// (readme, architecture, diagram) produced by model from input.
	DocsKey(kind, model string, input any) string

	// VerifyKey returns the key for a verification verdict of the manifest
	// with the given digest.
	VerifyKey(manifestDigest string) string
}

// DefaultKeyer hashes key components with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// DocsKey implements Keyer.
func (DefaultKeyer) DocsKey(kind, model string, input any) string {
	return hashKey("docs:"+kind, model, input)
}

// VerifyKey implements Keyer.
func (DefaultKeyer) VerifyKey(manifestDigest string) string {
	return "verify:" + manifestDigest
}

// ScopedKeyer prefixes every key so several projects can share one backend
// (typically a Redis instance used by many pipelines).
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix. A nil inner keyer defaults to
// [DefaultKeyer].
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// DocsKey implements Keyer.
func (k *ScopedKeyer) DocsKey(kind, model string, input any) string {
	return k.prefix + k.inner.DocsKey(kind, model, input)
}

// VerifyKey implements Keyer.
func (k *ScopedKeyer) VerifyKey(manifestDigest string) string {
	return k.prefix + k.inner.VerifyKey(manifestDigest)
}
