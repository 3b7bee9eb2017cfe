package provenance

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"xdao.co/canonproof/cidutil"
	"xdao.co/canonproof/hashfmt"
	"xdao.co/canonproof/storage"
)

// ErrArtifactNotFound is returned by resolvers for unknown references.
var ErrArtifactNotFound = errors.New("provenance: artifact not found")

// ArtifactResolver fetches the bytes a sha256:<hex> reference was computed over.
type ArtifactResolver interface {
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

// MapResolver resolves from an in-memory map keyed by reference.
type MapResolver map[string][]byte

func (m MapResolver) Resolve(_ context.Context, ref string) ([]byte, error) {
	b, ok := m[ref]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return b, nil
}

// CASResolver resolves references through a content-addressed store. The
// reference's digest is re-encoded as the CIDv1 the store keys objects by.
type CASResolver struct {
	CAS storage.CAS
}

func (r CASResolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	if r.CAS == nil {
		return nil, errors.New("provenance: nil CAS")
	}
	alg, hx, err := hashfmt.Split(ref)
	if err != nil {
		return nil, err
	}
	if alg+":" != hashfmt.Prefix {
		return nil, fmt.Errorf("provenance: %s: CAS keys are sha256 only", ref)
	}
	var sum [32]byte
	if _, err := hex.Decode(sum[:], []byte(hx)); err != nil {
		return nil, fmt.Errorf("provenance: %s: %w", ref, err)
	}
	id, err := cidutil.FromSHA256(sum)
	if err != nil {
		return nil, err
	}
	b, err := r.CAS.Get(ctx, id)
	if storage.IsNotFound(err) {
		return nil, ErrArtifactNotFound
	}
	return b, err
}
