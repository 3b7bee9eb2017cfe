package versioned

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"
)

var (
	ErrUnknownVersion      = errors.New("versioned: unknown hash version")
	ErrVersionExists       = errors.New("versioned: hash version already registered")
	ErrChainingUnsupported = errors.New("versioned: hash version does not support chaining")
	ErrInvalidScheme       = errors.New("versioned: invalid scheme")
)

// Scheme is one immutable hash-versioning rule.
type Scheme struct {
	// Version is the leading tag, e.g. "v2".
	Version string
	// Algorithm is the middle segment of the rendered hash, e.g. "sha256".
	Algorithm string
	// Chaining reports whether a base hash may be mixed into the input.
	Chaining bool
	// New returns a fresh hash.Hash producing 32-byte digests.
	New func() hash.Hash
}

// Registry maps version tags to schemes. It is additive only: a registered
// version can never be replaced or removed, so stored hashes stay verifiable.
type Registry struct {
	mu      sync.RWMutex
	schemes map[string]Scheme
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemes: make(map[string]Scheme)}
}

// StandardRegistry returns a new registry holding the built-in schemes:
//
//	v1  sha256    no chaining (legacy default for untagged hashes)
//	v2  sha256    chaining
//	v3  sha3-256  chaining
func StandardRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Scheme{
		{Version: "v1", Algorithm: "sha256", Chaining: false, New: sha256.New},
		{Version: "v2", Algorithm: "sha256", Chaining: true, New: sha256.New},
		{Version: "v3", Algorithm: "sha3-256", Chaining: true, New: sha3.New256},
	} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a scheme. Re-registering an existing version fails with
// ErrVersionExists even when the scheme is identical.
func (r *Registry) Register(s Scheme) error {
	if !validTag(s.Version) {
		return fmt.Errorf("%w: version tag %q", ErrInvalidScheme, s.Version)
	}
	if s.Algorithm == "" || !validAlg(s.Algorithm) {
		return fmt.Errorf("%w: algorithm %q", ErrInvalidScheme, s.Algorithm)
	}
	if s.New == nil || s.New().Size() != 32 {
		return fmt.Errorf("%w: %s must produce 32-byte digests", ErrInvalidScheme, s.Version)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemes[s.Version]; ok {
		return fmt.Errorf("%w: %s", ErrVersionExists, s.Version)
	}
	r.schemes[s.Version] = s
	r.order = append(r.order, s.Version)
	return nil
}

// Lookup returns the scheme for a version tag.
func (r *Registry) Lookup(version string) (Scheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemes[version]
	if !ok {
		return Scheme{}, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return s, nil
}

// Versions lists registered tags in registration order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Oldest returns the first registered version, used for untagged hashes.
func (r *Registry) Oldest() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return "", fmt.Errorf("%w: registry is empty", ErrUnknownVersion)
	}
	return r.order[0], nil
}

func validTag(v string) bool {
	if len(v) < 2 || v[0] != 'v' {
		return false
	}
	for i := 1; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

func validAlg(a string) bool {
	for i := 0; i < len(a); i++ {
		c := a[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}
