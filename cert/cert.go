// Package cert builds and verifies signed certificates that bind a target
// hash to a policy, an artifact closure and a list of evidence hashes.
//
// certificate_id = sha256:<hex of sha256(canonical GOVERNANCE bytes of Payload)>
//
// The signature block is never part of Payload, so the identity does not
// depend on who signed or whether anyone did.
package cert

import (
	"errors"
	"fmt"
	"sort"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/commit"
	"xdao.co/canonproof/hashfmt"
	"xdao.co/canonproof/sign"
)

// SchemaVersion is the only payload schema this package produces and verifies.
const SchemaVersion = "certificate.v1"

// DefaultKind is used when Input.Kind is empty.
const DefaultKind = "certificate"

// IDContract is the contract used for certificate identities and signatures.
const IDContract = canon.Governance

var (
	ErrMissingDomain = errors.New("cert: domain identifier is required")
	ErrMissingTarget = errors.New("cert: target hash is required")
	ErrInvalidInput  = errors.New("cert: invalid input")
)

// SuiteStatus is the result of one measurement suite.
type SuiteStatus string

const (
	SuitePassed      SuiteStatus = "PASSED"
	SuiteFailed      SuiteStatus = "FAILED"
	SuiteNotMeasured SuiteStatus = "NOT_MEASURED"
)

func (s SuiteStatus) Valid() bool {
	switch s {
	case SuitePassed, SuiteFailed, SuiteNotMeasured:
		return true
	}
	return false
}

// SuiteResult records one suite. ResultHash is empty only for NOT_MEASURED.
type SuiteResult struct {
	Name       string      `json:"name"`
	Status     SuiteStatus `json:"status"`
	ResultHash string      `json:"result_hash,omitempty"`
}

// Summary counts suite results by status.
type Summary struct {
	Total       int `json:"total"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
	NotMeasured int `json:"not_measured"`
}

func summarize(rs []SuiteResult) Summary {
	s := Summary{Total: len(rs)}
	for _, r := range rs {
		switch r.Status {
		case SuitePassed:
			s.Passed++
		case SuiteFailed:
			s.Failed++
		case SuiteNotMeasured:
			s.NotMeasured++
		}
	}
	return s
}

// Payload is every field hashed into the certificate identity.
type Payload struct {
	SchemaVersion  string            `json:"schema_version"`
	Kind           string            `json:"kind"`
	Domain         string            `json:"domain"`
	TargetHash     string            `json:"target_hash"`
	PolicyHash     string            `json:"policy_hash"`
	ClosureHash    string            `json:"closure_hash"`
	EvidenceHashes []string          `json:"evidence_hashes"`
	PinnedInputs   map[string]string `json:"pinned_inputs"`
	SuiteResults   []SuiteResult     `json:"suite_results"`
	Summary        Summary           `json:"summary"`
	Anchors        map[string]string `json:"anchors"`
}

// Certificate is the identity, the hashed payload and an optional signature.
type Certificate struct {
	ID        string               `json:"certificate_id"`
	Payload   Payload              `json:"payload"`
	Signature *sign.SignatureBlock `json:"signature,omitempty"`
}

// ComputeID returns the identity of p.
func ComputeID(p Payload) (string, error) {
	d, err := canon.ComputeContentHash(p, IDContract, "")
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// ArtifactRef is one member of an artifact closure.
type ArtifactRef struct {
	ID     string `json:"artifact_id"`
	Digest string `json:"digest"`
}

// ClosureHash commits to a set of artifacts independent of input order:
// "sha256:" + commitment(ARTIFACT_CLOSURE, {"artifacts": refs sorted by id}).
func ClosureHash(refs []ArtifactRef) (string, error) {
	sorted := append([]ArtifactRef(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i, r := range sorted {
		if r.ID == "" {
			return "", fmt.Errorf("%w: closure artifact with empty id", ErrInvalidInput)
		}
		if i > 0 && sorted[i-1].ID == r.ID {
			return "", fmt.Errorf("%w: duplicate closure artifact %q", ErrInvalidInput, r.ID)
		}
		if err := hashfmt.ValidatePrefixed(r.Digest); err != nil {
			return "", fmt.Errorf("closure artifact %q: %w", r.ID, err)
		}
	}
	h, err := commit.Commit(commit.DomainArtifactClosure, map[string]any{"artifacts": sorted})
	if err != nil {
		return "", err
	}
	return hashfmt.Prefix + h.String(), nil
}
