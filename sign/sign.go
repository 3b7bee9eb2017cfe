// Package sign produces and checks signature blocks over canonical payload bytes.
package sign

import (
	"encoding/base64"
	"errors"
	"strings"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/keys"
)

// AlgNone marks an explicitly unsigned block.
const AlgNone = "none"

// DefaultContract is used when a Signer or Verifier leaves Contract unset.
const DefaultContract = canon.Governance

// SignatureBlock is the detached signature attached to a payload.
//
// An unsigned block carries Algorithm "none" and the payload hash only.
type SignatureBlock struct {
	Algorithm    string `json:"algorithm"`
	PayloadHash  string `json:"payload_hash"`
	SignatureB64 string `json:"signature_b64,omitempty"`
	PublicKeyB64 string `json:"public_key_b64,omitempty"`
}

// IsUnsigned reports whether the block is the explicit unsigned form.
func (b SignatureBlock) IsUnsigned() bool { return b.Algorithm == AlgNone }

// Signer signs canonical payload bytes with a key obtained from Keys for each call.
type Signer struct {
	// Keys may be nil, in which case every block is unsigned.
	Keys     keys.Provider
	Contract canon.Contract
}

func contractOr(c canon.Contract) canon.Contract {
	if c == 0 {
		return DefaultContract
	}
	return c
}

// Sign canonicalizes payload and signs those exact bytes.
//
// When the provider has no key (nil provider or keys.ErrNoKey) the block is
// {algorithm: "none", payload_hash}. Other provider errors are returned.
func (s Signer) Sign(payload any) (SignatureBlock, error) {
	c := contractOr(s.Contract)
	b, err := canon.Encode(payload, c)
	if err != nil {
		return SignatureBlock{}, err
	}
	return s.SignCanonical(b)
}

// SignCanonical signs bytes that are already canonical under the signer's contract.
func (s Signer) SignCanonical(canonical []byte) (SignatureBlock, error) {
	c := contractOr(s.Contract)
	d, err := canon.Hash(canonical, c, "")
	if err != nil {
		return SignatureBlock{}, err
	}
	block := SignatureBlock{Algorithm: AlgNone, PayloadHash: d.String()}
	if s.Keys == nil {
		return block, nil
	}
	k, err := s.Keys.SigningKey()
	if errors.Is(err, keys.ErrNoKey) {
		return block, nil
	}
	if err != nil {
		return SignatureBlock{}, err
	}
	sig, err := k.Sign(canonical)
	if err != nil {
		return SignatureBlock{}, err
	}
	block.Algorithm = k.Algorithm()
	block.SignatureB64 = base64.StdEncoding.EncodeToString(sig)
	block.PublicKeyB64 = base64.StdEncoding.EncodeToString(k.PublicKey())
	return block, nil
}

// Status is the trust level of a payload/signature pair.
type Status string

const (
	StatusSignedValid   Status = "SIGNED_VALID"
	StatusSignedInvalid Status = "SIGNED_INVALID"
	StatusUnsigned      Status = "UNSIGNED"
	// StatusMalformed covers blocks that cannot be checked at all: unknown
	// algorithm, undecodable fields, or a payload that has no canonical form.
	StatusMalformed Status = "MALFORMED"
)

// Verifier checks signature blocks. The zero value uses DefaultContract.
type Verifier struct {
	Contract canon.Contract
}

// Verify reports whether block is a valid signature over payload. It returns
// false for every failure, including unsigned blocks; it never panics.
func (v Verifier) Verify(payload any, block SignatureBlock) bool {
	return v.Status(payload, block) == StatusSignedValid
}

// Status classifies payload/block. An unsigned block whose payload hash does
// not match the payload is Malformed.
func (v Verifier) Status(payload any, block SignatureBlock) Status {
	b, err := canon.Encode(payload, contractOr(v.Contract))
	if err != nil {
		return StatusMalformed
	}
	return v.StatusCanonical(b, block)
}

// StatusCanonical is Status over already canonical bytes.
func (v Verifier) StatusCanonical(canonical []byte, block SignatureBlock) Status {
	d, err := canon.Hash(canonical, contractOr(v.Contract), "")
	if err != nil {
		return StatusMalformed
	}
	hashMatches := block.PayloadHash == d.String()

	if block.Algorithm == AlgNone {
		if block.SignatureB64 != "" || block.PublicKeyB64 != "" || !hashMatches {
			return StatusMalformed
		}
		return StatusUnsigned
	}
	switch block.Algorithm {
	case keys.AlgEd25519, keys.AlgDilithium3:
	default:
		return StatusMalformed
	}
	sig, err := decodeBase64(block.SignatureB64)
	if err != nil || len(sig) == 0 {
		return StatusMalformed
	}
	pub, err := decodeBase64(block.PublicKeyB64)
	if err != nil || len(pub) == 0 {
		return StatusMalformed
	}
	if !hashMatches {
		return StatusSignedInvalid
	}
	if !keys.Verify(block.Algorithm, pub, canonical, sig) {
		return StatusSignedInvalid
	}
	return StatusSignedValid
}

// decodeBase64 accepts padded and unpadded standard encodings.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
