package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/canonproof/cidutil"
)

// Digest is an immutable SHA-256 result bound to the contract that produced it.
//
// Equality is equality of the rendered string, so two digests with identical
// bytes under contracts with different output prefixes are not Equal.
type Digest struct {
	sum      [sha256.Size]byte
	contract Contract
	domain   string
}

// Hash computes the digest of data under contract c.
//
// A non-empty domainPrefix is prepended to data before hashing (true domain
// separation, not a display tag). Contracts that forbid domain prefixes fail
// with a KindDomainPrefix error. The prefix is not part of the rendered string.
func Hash(data []byte, c Contract, domainPrefix string) (Digest, error) {
	if err := checkDomain(c, domainPrefix); err != nil {
		return Digest{}, err
	}
	h := sha256.New()
	h.Write([]byte(domainPrefix))
	h.Write(data)
	d := Digest{contract: c, domain: domainPrefix}
	copy(d.sum[:], h.Sum(nil))
	return d, nil
}

// ComputeContentHash canonicalizes v and hashes the result. It is the
// recommended single entry point for content addressing.
func ComputeContentHash(v any, c Contract, domainPrefix string) (Digest, error) {
	if err := checkDomain(c, domainPrefix); err != nil {
		return Digest{}, err
	}
	b, err := Encode(v, c)
	if err != nil {
		return Digest{}, err
	}
	return Hash(b, c, domainPrefix)
}

func checkDomain(c Contract, domainPrefix string) error {
	rules, err := rulesFor(c)
	if err != nil {
		return err
	}
	if domainPrefix != "" && !rules.DomainPrefix {
		return newError(KindDomainPrefix, "CANON-DOM-001",
			fmt.Sprintf("contract %s does not accept a domain prefix", rules.Name))
	}
	return nil
}

// Sum returns a copy of the raw 32 digest bytes.
func (d Digest) Sum() [sha256.Size]byte { return d.sum }

// Hex returns the bare lowercase hex digest regardless of contract.
func (d Digest) Hex() string { return hex.EncodeToString(d.sum[:]) }

// String renders the digest in its contract's output form.
func (d Digest) String() string {
	r, ok := contractTable[d.contract]
	if !ok {
		return d.Hex()
	}
	return r.OutputPrefix + d.Hex()
}

func (d Digest) Contract() Contract { return d.contract }

// Domain returns the domain prefix mixed into the hash input, if any.
func (d Digest) Domain() string { return d.domain }

func (d Digest) IsZero() bool { return d.contract == 0 }

func (d Digest) Equal(o Digest) bool { return d.String() == o.String() }

// CID returns the CIDv1 (raw, sha2-256) of the exact bytes that were hashed,
// including any domain prefix.
func (d Digest) CID() (cid.Cid, error) {
	return cidutil.FromSHA256(d.sum)
}

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
