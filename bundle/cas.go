package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/ipfs/go-cid"

	"xdao.co/canonproof/cidutil"
	"xdao.co/canonproof/commit"
	"xdao.co/canonproof/hashfmt"
	"xdao.co/canonproof/storage"
	"xdao.co/canonproof/storage/blocktar"
)

// ArchiveLabel names the manifest block inside a bundle archive.
const ArchiveLabel = "manifest"

// Publish stores every bundle file in cas and returns the manifest CID.
// Projection blocks are content-addressed by the same sha256 the manifest
// records, so Load can find them from the manifest alone.
func Publish(ctx context.Context, cas storage.CAS, b Bundle) (cid.Cid, error) {
	enc, err := b.encode()
	if err != nil {
		return cid.Undef, err
	}
	names := make([]string, 0, len(enc.files))
	for name := range enc.files {
		if name != ManifestFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := cas.Put(ctx, enc.files[name]); err != nil {
			return cid.Undef, fmt.Errorf("bundle: publish %s: %w", name, err)
		}
	}
	id, err := cas.Put(ctx, enc.files[ManifestFile])
	if err != nil {
		return cid.Undef, fmt.Errorf("bundle: publish %s: %w", ManifestFile, err)
	}
	return id, nil
}

// Load fetches a published bundle by its manifest CID.
func Load(ctx context.Context, cas storage.CAS, manifestID cid.Cid) (Bundle, commit.CommitmentHash, error) {
	raw, err := cas.Get(ctx, manifestID)
	if err != nil {
		return Bundle{}, commit.CommitmentHash{}, fmt.Errorf("bundle: load manifest: %w", err)
	}
	var m Manifest
	if err := strictUnmarshal(raw, &m); err != nil {
		return Bundle{}, commit.CommitmentHash{}, fmt.Errorf("%w: %s: %v", ErrInvalidBundle, ManifestFile, err)
	}
	files := map[string][]byte{ManifestFile: raw}
	for _, e := range m.Entries {
		id, err := entryCID(e)
		if err != nil {
			return Bundle{}, commit.CommitmentHash{}, err
		}
		data, err := cas.Get(ctx, id)
		if err != nil {
			return Bundle{}, commit.CommitmentHash{}, fmt.Errorf("bundle: load %s: %w", e.File, err)
		}
		files[e.File] = data
	}
	b, err := decode(files)
	if err != nil {
		return Bundle{}, commit.CommitmentHash{}, err
	}
	h, err := b.ComputeBundleHash()
	if err != nil {
		return Bundle{}, commit.CommitmentHash{}, err
	}
	return b, h, nil
}

func entryCID(e ManifestEntry) (cid.Cid, error) {
	alg, hexDigest, err := hashfmt.Split(e.Hash)
	if err == nil && alg != "sha256" {
		err = fmt.Errorf("unsupported algorithm %q", alg)
	}
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %s: %v", ErrInvalidBundle, e.Kind, err)
	}
	raw, err := hex.DecodeString(hexDigest)
	if err != nil || len(raw) != sha256.Size {
		return cid.Undef, fmt.Errorf("%w: %s: bad digest", ErrInvalidBundle, e.Kind)
	}
	var sum [sha256.Size]byte
	copy(sum[:], raw)
	return cidutil.FromSHA256(sum)
}

// WriteArchive writes b as a deterministic tar of its content-addressed
// blocks with the manifest block labelled ArchiveLabel.
func WriteArchive(ctx context.Context, w io.Writer, b Bundle) (commit.CommitmentHash, error) {
	mem := storage.NewMemoryCAS()
	root, err := Publish(ctx, mem, b)
	if err != nil {
		return commit.CommitmentHash{}, err
	}
	m, err := b.Manifest()
	if err != nil {
		return commit.CommitmentHash{}, err
	}
	ids := []cid.Cid{root}
	for _, e := range m.Entries {
		id, err := entryCID(e)
		if err != nil {
			return commit.CommitmentHash{}, err
		}
		ids = append(ids, id)
	}
	opts := blocktar.ExportOptions{Labels: map[string]cid.Cid{ArchiveLabel: root}, IncludeIndex: true}
	if err := blocktar.Export(ctx, w, mem, ids, opts); err != nil {
		return commit.CommitmentHash{}, err
	}
	return ManifestHash(m)
}

// ReadArchive imports an archive written by WriteArchive into cas (a fresh
// in-memory store when nil) and loads the labelled bundle from it.
func ReadArchive(ctx context.Context, r io.Reader, cas storage.CAS) (Bundle, commit.CommitmentHash, error) {
	if cas == nil {
		cas = storage.NewMemoryCAS()
	}
	idx, err := blocktar.Import(ctx, r, cas, blocktar.ImportOptions{})
	if err != nil {
		return Bundle{}, commit.CommitmentHash{}, err
	}
	root, ok := idx.Lookup(ArchiveLabel)
	if !ok {
		return Bundle{}, commit.CommitmentHash{}, fmt.Errorf("%w: archive has no %q label", ErrInvalidBundle, ArchiveLabel)
	}
	return Load(ctx, cas, root)
}
