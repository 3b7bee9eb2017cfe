package cert

import (
	"fmt"

	"xdao.co/canonproof/hashfmt"
	"xdao.co/canonproof/sign"
	"xdao.co/canonproof/verify"
)

// VerifyOptions supplies what the verifier can independently check against.
type VerifyOptions struct {
	// Closure, when non-nil, is recomputed and compared with closure_hash,
	// and every evidence hash must appear among its digests.
	Closure []ArtifactRef
	// RequireSignature turns an unsigned certificate into a failure.
	RequireSignature bool
}

// Report is the result of VerifyCertificate. Outcome carries the single
// highest-precedence cause; Findings keeps every problem for diagnostics.
type Report struct {
	CertificateID string           `json:"certificate_id"`
	Outcome       verify.Outcome   `json:"outcome"`
	Signature     sign.Status      `json:"signature"`
	Closure       verify.Status    `json:"closure"`
	Findings      []verify.Finding `json:"findings,omitempty"`
}

// VerifyCertificate re-derives everything c claims. It never returns an
// error: every problem becomes a finding.
func VerifyCertificate(c Certificate, opts VerifyOptions) Report {
	var f verify.Findings
	p := c.Payload
	rep := Report{CertificateID: c.ID, Closure: verify.StatusNotMeasured}

	local := LocalCodecVector()
	if local != CodecVectorDigest {
		f.Addf(verify.CauseImplementationDrift, AnchorCodecVector, "local codec vector %s differs from published %s", local, CodecVectorDigest)
	}
	if anchor, ok := p.Anchors[AnchorCodecVector]; !ok {
		f.Add(verify.CauseStructuralDivergence, AnchorCodecVector, "anchor missing")
	} else if anchor != local {
		f.Addf(verify.CauseImplementationDrift, AnchorCodecVector, "certificate produced with codec vector %s, local is %s", anchor, local)
	}

	if p.SchemaVersion != SchemaVersion {
		f.Addf(verify.CauseSpecDrift, "schema_version", "unsupported schema %q", p.SchemaVersion)
	}

	checkStructure(&f, c)

	if id, err := ComputeID(p); err != nil {
		f.Addf(verify.CauseStructuralDivergence, "payload", "payload has no canonical form: %v", err)
	} else if id != c.ID {
		f.Addf(verify.CauseArtifactHashMismatch, "certificate_id", "recomputed %s, recorded %s", id, c.ID)
	}

	rep.Signature = signatureStatus(c)
	switch rep.Signature {
	case sign.StatusSignedInvalid:
		f.Add(verify.CauseArtifactHashMismatch, "signature", "signature does not match payload")
	case sign.StatusMalformed:
		f.Add(verify.CauseStructuralDivergence, "signature", "signature block is malformed")
	case sign.StatusUnsigned:
		if opts.RequireSignature {
			f.Add(verify.CauseMissingArtifact, "signature", "certificate is unsigned")
		}
	}

	if opts.Closure != nil {
		rep.Closure = checkClosure(&f, p, opts.Closure)
	}

	rep.Outcome = f.Outcome()
	rep.Findings = f.All()
	return rep
}

func checkStructure(f *verify.Findings, c Certificate) {
	p := c.Payload
	if err := hashfmt.ValidatePrefixed(c.ID); err != nil {
		f.Addf(verify.CauseStructuralDivergence, "certificate_id", "%v", err)
	}
	if p.Domain == "" {
		f.Add(verify.CauseStructuralDivergence, "domain", "empty")
	}
	fields := []struct{ name, value string }{
		{"target_hash", p.TargetHash},
		{"policy_hash", p.PolicyHash},
		{"closure_hash", p.ClosureHash},
	}
	for _, fl := range fields {
		if err := hashfmt.ValidatePrefixed(fl.value); err != nil {
			f.Addf(verify.CauseStructuralDivergence, fl.name, "%v", err)
		}
	}
	for i, e := range p.EvidenceHashes {
		if err := hashfmt.ValidatePrefixed(e); err != nil {
			f.Addf(verify.CauseStructuralDivergence, fmt.Sprintf("evidence_hashes[%d]", i), "%v", err)
		}
	}
	for _, r := range p.SuiteResults {
		if err := checkSuite(r); err != nil {
			f.Addf(verify.CauseStructuralDivergence, "suite_results", "%v", err)
		}
	}
	if summarize(p.SuiteResults) != p.Summary {
		f.Add(verify.CauseStructuralDivergence, "summary", "summary does not match suite results")
	}
}

func signatureStatus(c Certificate) sign.Status {
	if c.Signature == nil {
		return sign.StatusUnsigned
	}
	return sign.Verifier{Contract: IDContract}.Status(c.Payload, *c.Signature)
}

func checkClosure(f *verify.Findings, p Payload, closure []ArtifactRef) verify.Status {
	got, err := ClosureHash(closure)
	if err != nil {
		f.Addf(verify.CauseStructuralDivergence, "closure", "%v", err)
		return verify.StatusFailed
	}
	status := verify.StatusVerified
	if got != p.ClosureHash {
		f.Addf(verify.CauseArtifactHashMismatch, "closure_hash", "recomputed %s, recorded %s", got, p.ClosureHash)
		status = verify.StatusFailed
	}
	digests := make(map[string]bool, len(closure))
	for _, r := range closure {
		digests[r.Digest] = true
	}
	for i, e := range p.EvidenceHashes {
		if !digests[e] {
			f.Addf(verify.CauseArtifactHashMismatch, fmt.Sprintf("evidence_hashes[%d]", i), "%s not in closure", e)
			status = verify.StatusFailed
		}
	}
	return status
}
