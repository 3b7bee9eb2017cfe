package provenance

import (
	"context"
	"errors"
	"fmt"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/hashfmt"
	"xdao.co/canonproof/verify"
)

// Report is the result of Verify.
type Report struct {
	ChainHash  string           `json:"chain_hash"`
	Outcome    verify.Outcome   `json:"outcome"`
	Resolution verify.Status    `json:"resolution"`
	Findings   []verify.Finding `json:"findings,omitempty"`
}

// Verify checks c without any privileged access:
//   - every hash passes strict validation and evidence is in canonical order,
//   - the chain hash matches recomputation,
//   - with a non-nil resolver, every reference resolves to bytes whose
//     sha256 equals the reference.
//
// A nil resolver leaves resolution NOT_MEASURED. Parents are checked one hop
// deep: the parent reference must resolve, but its own chain is not walked.
// closure_hash is a commitment, not a content address, and is never resolved.
func Verify(ctx context.Context, c Chain, resolver ArtifactResolver) Report {
	var f verify.Findings
	rep := Report{ChainHash: c.ChainHash.String(), Resolution: verify.StatusNotMeasured}

	for _, r := range c.references() {
		if err := hashfmt.ValidatePrefixed(r.value); err != nil {
			f.Addf(verify.CauseStructuralDivergence, r.name, "%v", err)
		}
	}
	for i := 1; i < len(c.Evidence); i++ {
		a, b := c.Evidence[i-1], c.Evidence[i]
		if a.EvidenceHash > b.EvidenceHash || (a.EvidenceHash == b.EvidenceHash && a.SelectionRuleHash >= b.SelectionRuleHash) {
			f.Add(verify.CauseStructuralDivergence, fmt.Sprintf("evidence[%d]", i), "bindings not in ascending order")
		}
	}
	if c.ChainHash.IsZero() {
		f.Add(verify.CauseStructuralDivergence, "chain_hash", "missing")
	}

	if h, err := ComputeChainHash(c); err != nil {
		f.Addf(verify.CauseStructuralDivergence, "chain", "no canonical form: %v", err)
	} else if !c.ChainHash.IsZero() && !h.Equal(c.ChainHash) {
		f.Addf(verify.CauseArtifactHashMismatch, "chain_hash", "recomputed %s, recorded %s", h, c.ChainHash)
	}

	if resolver != nil {
		rep.Resolution = resolveAll(ctx, &f, c, resolver)
	}

	rep.Outcome = f.Outcome()
	rep.Findings = f.All()
	return rep
}

func resolveAll(ctx context.Context, f *verify.Findings, c Chain, resolver ArtifactResolver) verify.Status {
	status := verify.StatusVerified
	for _, r := range c.references() {
		if r.name == "closure_hash" || (r.name == "parent_hash" && c.IsGenesis()) {
			continue
		}
		if !hashfmt.IsPrefixed(r.value) {
			// Already reported as structural.
			status = verify.StatusFailed
			continue
		}
		b, err := resolver.Resolve(ctx, r.value)
		if err != nil {
			if errors.Is(err, ErrArtifactNotFound) {
				f.Addf(verify.CauseMissingArtifact, r.name, "%s not found", r.value)
			} else {
				f.Addf(verify.CauseMissingArtifact, r.name, "%s unreadable: %v", r.value, err)
			}
			if status == verify.StatusVerified {
				status = verify.StatusUnverifiable
			}
			continue
		}
		d, err := canon.Hash(b, canon.Governance, "")
		if err != nil {
			f.Addf(verify.CauseStructuralDivergence, r.name, "%v", err)
			status = verify.StatusFailed
			continue
		}
		if d.String() != r.value {
			f.Addf(verify.CauseArtifactHashMismatch, r.name, "resolved bytes hash to %s, reference is %s", d, r.value)
			status = verify.StatusFailed
		}
	}
	return status
}
