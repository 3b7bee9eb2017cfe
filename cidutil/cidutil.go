package cidutil

import (
	"crypto/sha256"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// FromSHA256 wraps an already computed sha2-256 digest as a CIDv1 (raw).
//
// The result is identical to CIDv1RawSHA256CID over the bytes that produced sum.
func FromSHA256(sum [sha256.Size]byte) (cid.Cid, error) {
	mh, err := multihash.Encode(sum[:], multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// SHA256Of extracts the sha2-256 digest carried by a CID.
//
// It fails for CIDs using any other multihash function.
func SHA256Of(id cid.Cid) ([sha256.Size]byte, error) {
	var out [sha256.Size]byte
	if !id.Defined() {
		return out, fmt.Errorf("cidutil: undefined cid")
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return out, err
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != sha256.Size {
		return out, fmt.Errorf("cidutil: cid %s is not sha2-256", id)
	}
	copy(out[:], dec.Digest)
	return out, nil
}
