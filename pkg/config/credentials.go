package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Credential names.
const (
	CredSnyk        = "snyk"
	CredGemini      = "gemini"
	CredUploadToken = "upload-token"
	CredS3AccessKey = "s3-access-key"
	CredS3SecretKey = "s3-secret-key"
	CredMongoURI    = "mongo-uri"
	CredRedisURL    = "redis-url"
)

// KnownCredentials lists every credential name in display order.
var KnownCredentials = []string{
	CredSnyk, CredGemini, CredUploadToken,
	CredS3AccessKey, CredS3SecretKey, CredMongoURI, CredRedisURL,
}

// Credentials holds opaque secrets by name. Values are reachable only
// through Get; every formatting path reports configured booleans.
type Credentials struct {
	values map[string]string
}

// With returns a copy with name set. An empty value unsets it.
func (c Credentials) With(name, value string) Credentials {
	m := make(map[string]string, len(c.values)+1)
	for k, v := range c.values {
		m[k] = v
	}
	if value == "" {
		delete(m, name)
	} else {
		m[name] = value
	}
	return Credentials{values: m}
}

// Get returns the secret for name.
func (c Credentials) Get(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok && v != ""
}

// Configured reports whether name has a non-empty value.
func (c Credentials) Configured(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Status returns configured booleans for every known credential plus any
// extra names that were set.
func (c Credentials) Status() map[string]bool {
	out := make(map[string]bool, len(KnownCredentials))
	for _, n := range KnownCredentials {
		out[n] = c.Configured(n)
	}
	for n := range c.values {
		out[n] = true
	}
	return out
}

// String implements fmt.Stringer without revealing any value.
func (c Credentials) String() string {
	st := c.Status()
	names := make([]string, 0, len(st))
	for n := range st {
		names = append(names, n)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%t", n, st[n])
	}
	return "credentials{" + strings.Join(parts, " ") + "}"
}

// GoString keeps %#v from dumping the map.
func (c Credentials) GoString() string { return c.String() }

// MarshalJSON implements json.Marshaler as a name to configured map.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Status())
}
