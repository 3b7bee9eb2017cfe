package bundle

import (
	"sort"

	"xdao.co/canonproof/cert"
	"xdao.co/canonproof/commit"
	"xdao.co/canonproof/provenance"
)

// CertificateProjection is the part of a certificate a third-party
// verifier needs. It never carries the full payload.
type CertificateProjection struct {
	CertificateID string `json:"certificate_id" validate:"prefixed_hash"`
	Kind          string `json:"kind" validate:"required"`
	ClosureHash   string `json:"closure_hash" validate:"prefixed_hash"`
	PolicyHash    string `json:"policy_hash" validate:"prefixed_hash"`
}

func ProjectCertificate(c cert.Certificate) CertificateProjection {
	return CertificateProjection{
		CertificateID: c.ID,
		Kind:          c.Payload.Kind,
		ClosureHash:   c.Payload.ClosureHash,
		PolicyHash:    c.Payload.PolicyHash,
	}
}

type EvidenceRef struct {
	EvidenceHash      string `json:"evidence_hash" validate:"prefixed_hash"`
	SelectionRuleHash string `json:"selection_rule_hash" validate:"prefixed_hash"`
}

// ProvenanceClosure is a provenance chain flattened for the bundle.
type ProvenanceClosure struct {
	ChainHash      string        `json:"chain_hash" validate:"bare_hash"`
	SketchHash     string        `json:"sketch_hash" validate:"prefixed_hash"`
	ParentHash     string        `json:"parent_hash" validate:"prefixed_hash"`
	DeltaHash      string        `json:"delta_hash" validate:"prefixed_hash"`
	Evidence       []EvidenceRef `json:"evidence" validate:"dive"`
	CertificateRef string        `json:"certificate_ref" validate:"prefixed_hash"`
	ClosureHash    string        `json:"closure_hash" validate:"prefixed_hash"`
}

func ProjectProvenance(c provenance.Chain) ProvenanceClosure {
	ev := make([]EvidenceRef, 0, len(c.Evidence))
	for _, e := range c.Evidence {
		ev = append(ev, EvidenceRef{EvidenceHash: e.EvidenceHash, SelectionRuleHash: e.SelectionRuleHash})
	}
	return ProvenanceClosure{
		ChainHash:      c.ChainHash.String(),
		SketchHash:     c.SketchHash,
		ParentHash:     c.ParentHash,
		DeltaHash:      c.DeltaHash,
		Evidence:       ev,
		CertificateRef: c.CertificateRef,
		ClosureHash:    c.ClosureHash,
	}
}

// Chain rebuilds the provenance chain so it can be re-verified.
func (p ProvenanceClosure) Chain() (provenance.Chain, error) {
	h, err := commit.ParseCommitmentHash(p.ChainHash)
	if err != nil {
		return provenance.Chain{}, err
	}
	ev := make([]provenance.EvidenceBinding, 0, len(p.Evidence))
	for _, e := range p.Evidence {
		ev = append(ev, provenance.EvidenceBinding{EvidenceHash: e.EvidenceHash, SelectionRuleHash: e.SelectionRuleHash})
	}
	return provenance.Chain{
		SketchHash:     p.SketchHash,
		ParentHash:     p.ParentHash,
		DeltaHash:      p.DeltaHash,
		Evidence:       ev,
		CertificateRef: p.CertificateRef,
		ClosureHash:    p.ClosureHash,
		ChainHash:      h,
	}, nil
}

// PromotedArtifact describes the artifact the certificate promoted.
type PromotedArtifact struct {
	ArtifactID    string            `json:"artifact_id" validate:"required"`
	Kind          string            `json:"kind" validate:"required"`
	Digest        string            `json:"digest" validate:"prefixed_hash"`
	CertificateID string            `json:"certificate_id" validate:"prefixed_hash"`
	Labels        map[string]string `json:"labels,omitempty"`
}

// RevocationSnapshot lists identifiers revoked as of AsOf, an opaque label
// chosen by the producer (typically an RFC 3339 time or a ledger height).
type RevocationSnapshot struct {
	AsOf                string   `json:"as_of"`
	RevokedCertificates []string `json:"revoked_certificates" validate:"sorted_unique,dive,prefixed_hash"`
	RevokedOperators    []string `json:"revoked_operators" validate:"sorted_unique,dive,required"`
}

// NewRevocationSnapshot sorts and de-duplicates both lists.
func NewRevocationSnapshot(asOf string, certificates, operators []string) RevocationSnapshot {
	return RevocationSnapshot{
		AsOf:                asOf,
		RevokedCertificates: sortedUnique(certificates),
		RevokedOperators:    sortedUnique(operators),
	}
}

func (r RevocationSnapshot) IsCertificateRevoked(id string) bool {
	return contains(r.RevokedCertificates, id)
}

func (r RevocationSnapshot) IsOperatorRevoked(id string) bool {
	return contains(r.RevokedOperators, id)
}

func contains(sorted []string, s string) bool {
	i := sort.SearchStrings(sorted, s)
	return i < len(sorted) && sorted[i] == s
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
