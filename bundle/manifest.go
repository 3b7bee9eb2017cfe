// Package bundle assembles a verification bundle: canonical projections of
// a certificate, its provenance closure, an optional promoted artifact and
// a revocation snapshot, tied together by a manifest whose commitment is
// the bundle hash.
//
// Every file in a bundle holds CANONICALIZATION canonical bytes, so a
// bundle written to disk, archived, or published to a CAS and read back
// reproduces the identical bundle hash.
package bundle

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/commit"
)

const SchemaVersion = "bundle.v1"

// File contract for every projection and the manifest itself.
const FileContract = canon.Canonicalization

const (
	KindCertificate        = "certificate"
	KindProvenanceClosure  = "provenance_closure"
	KindPromotedArtifact   = "promoted_artifact"
	KindRevocationSnapshot = "revocation_snapshot"
)

const ManifestFile = "manifest.json"

// fileNames is the fixed layout. Nothing else may appear in a bundle.
var fileNames = map[string]string{
	KindCertificate:        "certificate.json",
	KindProvenanceClosure:  "provenance_closure.json",
	KindPromotedArtifact:   "promoted_artifact.json",
	KindRevocationSnapshot: "revocation_snapshot.json",
}

var (
	ErrInvalidBundle  = errors.New("bundle: invalid bundle")
	ErrSchemaVersion  = errors.New("bundle: unsupported schema version")
	ErrMissingFile    = errors.New("bundle: missing file")
	ErrUnexpectedFile = errors.New("bundle: unexpected file")
	ErrHashMismatch   = errors.New("bundle: file hash mismatch")
	ErrNotCanonical   = errors.New("bundle: file is not canonical")
	ErrExists         = errors.New("bundle: destination exists")
)

type ManifestEntry struct {
	Kind string `json:"kind" validate:"oneof=certificate provenance_closure promoted_artifact revocation_snapshot"`
	File string `json:"file" validate:"required"`
	Hash string `json:"hash" validate:"prefixed_hash"`
}

type Manifest struct {
	SchemaVersion string          `json:"schema_version" validate:"required"`
	Entries       []ManifestEntry `json:"entries" validate:"min=3,dive"`
}

// Entry returns the entry for kind.
func (m Manifest) Entry(kind string) (ManifestEntry, bool) {
	for _, e := range m.Entries {
		if e.Kind == kind {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// Bundle is the in-memory form. Promoted is optional.
type Bundle struct {
	Certificate CertificateProjection
	Provenance  ProvenanceClosure
	Promoted    *PromotedArtifact
	Revocation  RevocationSnapshot
}

// Validate checks the shape of every projection.
func (b Bundle) Validate() error {
	if err := check(b.Certificate); err != nil {
		return fmt.Errorf("%s: %w", KindCertificate, err)
	}
	if err := check(b.Provenance); err != nil {
		return fmt.Errorf("%s: %w", KindProvenanceClosure, err)
	}
	if b.Promoted != nil {
		if err := check(*b.Promoted); err != nil {
			return fmt.Errorf("%s: %w", KindPromotedArtifact, err)
		}
	}
	if err := check(b.Revocation); err != nil {
		return fmt.Errorf("%s: %w", KindRevocationSnapshot, err)
	}
	return nil
}

// files returns the canonical bytes of each projection keyed by kind.
func (b Bundle) files() (map[string][]byte, error) {
	parts := map[string]any{
		KindCertificate:        b.Certificate,
		KindProvenanceClosure:  b.Provenance,
		KindRevocationSnapshot: b.Revocation,
	}
	if b.Promoted != nil {
		parts[KindPromotedArtifact] = *b.Promoted
	}
	out := make(map[string][]byte, len(parts))
	for kind, v := range parts {
		raw, err := canon.Encode(v, FileContract)
		if err != nil {
			return nil, fmt.Errorf("bundle: encode %s: %w", kind, err)
		}
		out[kind] = raw
	}
	return out, nil
}

func fileHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", canon.HashPrefix, sum)
}

func manifestFor(files map[string][]byte) Manifest {
	m := Manifest{SchemaVersion: SchemaVersion}
	for kind, raw := range files {
		m.Entries = append(m.Entries, ManifestEntry{Kind: kind, File: fileNames[kind], Hash: fileHash(raw)})
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Kind < m.Entries[j].Kind })
	return m
}

// Manifest computes the manifest over b's canonical projections.
func (b Bundle) Manifest() (Manifest, error) {
	files, err := b.files()
	if err != nil {
		return Manifest{}, err
	}
	return manifestFor(files), nil
}

// ComputeBundleHash returns commitment(BUNDLE_MANIFEST, manifest).
func (b Bundle) ComputeBundleHash() (commit.CommitmentHash, error) {
	m, err := b.Manifest()
	if err != nil {
		return commit.CommitmentHash{}, err
	}
	return ManifestHash(m)
}

func ManifestHash(m Manifest) (commit.CommitmentHash, error) {
	return commit.Commit(commit.DomainBundleManifest, m)
}

// encoded is the full materialized layout: file name to bytes.
type encoded struct {
	manifest Manifest
	files    map[string][]byte
}

func (b Bundle) encode() (encoded, error) {
	if err := b.Validate(); err != nil {
		return encoded{}, err
	}
	byKind, err := b.files()
	if err != nil {
		return encoded{}, err
	}
	m := manifestFor(byKind)
	raw, err := canon.Encode(m, FileContract)
	if err != nil {
		return encoded{}, fmt.Errorf("bundle: encode manifest: %w", err)
	}
	files := map[string][]byte{ManifestFile: raw}
	for kind, data := range byKind {
		files[fileNames[kind]] = data
	}
	return encoded{manifest: m, files: files}, nil
}

// decode rebuilds a Bundle from a layout, failing closed on anything that
// would not round-trip to the same bytes.
func decode(files map[string][]byte) (Bundle, error) {
	rawManifest, ok := files[ManifestFile]
	if !ok {
		return Bundle{}, fmt.Errorf("%w: %s", ErrMissingFile, ManifestFile)
	}
	var m Manifest
	if err := strictUnmarshal(rawManifest, &m); err != nil {
		return Bundle{}, fmt.Errorf("%w: %s: %v", ErrInvalidBundle, ManifestFile, err)
	}
	if m.SchemaVersion != SchemaVersion {
		return Bundle{}, fmt.Errorf("%w: %q", ErrSchemaVersion, m.SchemaVersion)
	}
	if err := check(m); err != nil {
		return Bundle{}, fmt.Errorf("%s: %w", ManifestFile, err)
	}
	if err := requireCanonical(ManifestFile, rawManifest, m); err != nil {
		return Bundle{}, err
	}

	expected := map[string]bool{ManifestFile: true}
	var b Bundle
	for _, e := range m.Entries {
		want, known := fileNames[e.Kind]
		if !known || e.File != want {
			return Bundle{}, fmt.Errorf("%w: entry %s names file %q", ErrInvalidBundle, e.Kind, e.File)
		}
		if expected[e.File] {
			return Bundle{}, fmt.Errorf("%w: duplicate entry %s", ErrInvalidBundle, e.Kind)
		}
		expected[e.File] = true
		raw, ok := files[e.File]
		if !ok {
			return Bundle{}, fmt.Errorf("%w: %s", ErrMissingFile, e.File)
		}
		if got := fileHash(raw); got != e.Hash {
			return Bundle{}, fmt.Errorf("%w: %s recorded %s, got %s", ErrHashMismatch, e.File, e.Hash, got)
		}
		if err := decodeEntry(&b, e, raw); err != nil {
			return Bundle{}, err
		}
	}
	for name := range files {
		if !expected[name] {
			return Bundle{}, fmt.Errorf("%w: %s", ErrUnexpectedFile, name)
		}
	}
	for _, kind := range []string{KindCertificate, KindProvenanceClosure, KindRevocationSnapshot} {
		if _, ok := m.Entry(kind); !ok {
			return Bundle{}, fmt.Errorf("%w: %s", ErrMissingFile, fileNames[kind])
		}
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

func decodeEntry(b *Bundle, e ManifestEntry, raw []byte) error {
	var target any
	switch e.Kind {
	case KindCertificate:
		target = &b.Certificate
	case KindProvenanceClosure:
		target = &b.Provenance
	case KindPromotedArtifact:
		b.Promoted = &PromotedArtifact{}
		target = b.Promoted
	case KindRevocationSnapshot:
		target = &b.Revocation
	}
	if err := strictUnmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBundle, e.File, err)
	}
	return requireCanonical(e.File, raw, target)
}
