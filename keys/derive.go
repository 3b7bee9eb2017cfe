package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
)

// roleKDFLabel domain-separates role derivation from any other use of the root seed.
const roleKDFLabel = "canonproof-keystore-v1"

// DeriveRoleSeed deterministically derives a role-specific seed from a root seed.
//
// seed = sha256(root || 0x00 || label || 0x00 || "role:" || role)
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(roleKDFLabel))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	return h.Sum(nil)[:ed25519.SeedSize], nil
}

// KeyFromSeed builds a key of the named algorithm from a 32-byte seed.
func KeyFromSeed(alg string, seed []byte) (Key, error) {
	switch alg {
	case "", AlgEd25519:
		return NewEd25519FromSeed(seed)
	case AlgDilithium3:
		return NewDilithium3FromSeed(seed)
	default:
		return nil, fmt.Errorf("keys: unsupported algorithm %q", alg)
	}
}
