// Package storage defines the content-addressed store used to publish and
// resolve canonical artifacts, plus composition helpers over several stores.
//
// Every object is keyed by the CIDv1 (raw, sha2-256) of its bytes, which makes
// the key interchangeable with the bare SHA-256 digest of the same bytes.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (callers supply canonical bytes).
// - Get MUST return ErrNotFound when the CID is absent and ErrCIDMismatch when
//   the stored bytes no longer hash to the CID.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}
