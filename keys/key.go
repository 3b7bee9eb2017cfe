package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

// ErrNoKey is returned by providers that hold no key material.
var ErrNoKey = errors.New("keys: no signing key available")

// Key is a private signing capability.
type Key interface {
	Algorithm() string
	PublicKey() []byte
	Sign(message []byte) ([]byte, error)
}

// Provider hands out a Key for the duration of one signing operation.
type Provider interface {
	SigningKey() (Key, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (Key, error)

func (f ProviderFunc) SigningKey() (Key, error) { return f() }

// Static returns a Provider that always yields k. A nil k yields ErrNoKey.
func Static(k Key) Provider {
	return ProviderFunc(func() (Key, error) {
		if k == nil {
			return nil, ErrNoKey
		}
		return k, nil
	})
}

// Ed25519Key signs the message bytes directly (pure Ed25519).
type Ed25519Key struct {
	priv ed25519.PrivateKey
}

// NewEd25519FromSeed builds a key from a 32-byte seed.
func NewEd25519FromSeed(seed []byte) (*Ed25519Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Key{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// GenerateEd25519 creates a random key from r.
func GenerateEd25519(r io.Reader) (*Ed25519Key, error) {
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, err
	}
	return &Ed25519Key{priv: priv}, nil
}

func (k *Ed25519Key) Algorithm() string { return AlgEd25519 }

func (k *Ed25519Key) PublicKey() []byte {
	return append([]byte(nil), k.priv.Public().(ed25519.PublicKey)...)
}

func (k *Ed25519Key) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, message), nil
}

// Dilithium3Key is a post-quantum signing key (CRYSTALS-Dilithium mode 3).
type Dilithium3Key struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

// NewDilithium3FromSeed derives a key deterministically from a 32-byte seed.
func NewDilithium3FromSeed(seed []byte) (*Dilithium3Key, error) {
	if len(seed) != mode3.SeedSize {
		return nil, fmt.Errorf("keys: dilithium3 seed must be %d bytes, got %d", mode3.SeedSize, len(seed))
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return &Dilithium3Key{pub: pub, priv: priv}, nil
}

// GenerateDilithium3 creates a random key from r.
func GenerateDilithium3(r io.Reader) (*Dilithium3Key, error) {
	pub, priv, err := mode3.GenerateKey(r)
	if err != nil {
		return nil, err
	}
	return &Dilithium3Key{pub: pub, priv: priv}, nil
}

func (k *Dilithium3Key) Algorithm() string { return AlgDilithium3 }

func (k *Dilithium3Key) PublicKey() []byte {
	b, _ := k.pub.MarshalBinary()
	return b
}

func (k *Dilithium3Key) Sign(message []byte) ([]byte, error) {
	if k.priv == nil {
		return nil, ErrNoKey
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(k.priv, message, sig)
	return sig, nil
}

// Verify checks sig over message for the named algorithm. It returns false,
// never panics, for unknown algorithms and malformed keys or signatures.
func Verify(alg string, pub, message, sig []byte) bool {
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
	case AlgDilithium3:
		if len(pub) != mode3.PublicKeySize || len(sig) != mode3.SignatureSize {
			return false
		}
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return false
		}
		return mode3.Verify(&pk, message, sig)
	default:
		return false
	}
}

// EncodePublicKey renders "<alg>:<base64(pub)>", the form keystores print.
func EncodePublicKey(k Key) string {
	return k.Algorithm() + ":" + base64.StdEncoding.EncodeToString(k.PublicKey())
}
