package bundle

import (
	"context"

	"xdao.co/canonproof/cert"
	"xdao.co/canonproof/provenance"
	"xdao.co/canonproof/verify"
)

type VerifyOptions struct {
	// ExpectedHash, when set, must equal the recomputed bundle hash.
	ExpectedHash string
	// Certificate, when set, is verified in full and must project to the
	// bundled certificate projection.
	Certificate *cert.Certificate
	// RequireSignature applies to Certificate.
	RequireSignature bool
	// Resolver resolves provenance references. Nil leaves resolution
	// NOT_MEASURED.
	Resolver provenance.ArtifactResolver
}

// Report is the result of Verify. Revocation is reported alongside the
// outcome and never changes it: a revoked certificate can still be a
// correctly formed bundle.
type Report struct {
	BundleHash         string            `json:"bundle_hash"`
	Outcome            verify.Outcome    `json:"outcome"`
	Provenance         provenance.Report `json:"provenance"`
	Signature          string            `json:"signature,omitempty"`
	Operator           string            `json:"operator,omitempty"`
	CertificateRevoked bool              `json:"certificate_revoked"`
	OperatorRevoked    bool              `json:"operator_revoked"`
	Findings           []verify.Finding  `json:"findings,omitempty"`
}

// Verify re-derives every projection hash and cross-reference in b.
func Verify(ctx context.Context, b Bundle, opts VerifyOptions) Report {
	var f verify.Findings
	var rep Report

	if err := b.Validate(); err != nil {
		f.Addf(verify.CauseStructuralDivergence, "bundle", "%v", err)
	}
	if h, err := b.ComputeBundleHash(); err != nil {
		f.Addf(verify.CauseStructuralDivergence, "bundle_hash", "%v", err)
	} else {
		rep.BundleHash = h.String()
		if opts.ExpectedHash != "" && opts.ExpectedHash != rep.BundleHash {
			f.Addf(verify.CauseArtifactHashMismatch, "bundle_hash", "recomputed %s, expected %s", rep.BundleHash, opts.ExpectedHash)
		}
	}

	if chain, err := b.Provenance.Chain(); err != nil {
		f.Addf(verify.CauseStructuralDivergence, KindProvenanceClosure+".chain_hash", "%v", err)
	} else {
		rep.Provenance = provenance.Verify(ctx, chain, opts.Resolver)
		merge(&f, KindProvenanceClosure, rep.Provenance.Findings)
	}

	cp := b.Certificate
	if b.Provenance.CertificateRef != cp.CertificateID {
		f.Addf(verify.CauseArtifactHashMismatch, KindProvenanceClosure+".certificate_ref", "references %s, bundle certificate is %s", b.Provenance.CertificateRef, cp.CertificateID)
	}
	if b.Provenance.ClosureHash != cp.ClosureHash {
		f.Addf(verify.CauseArtifactHashMismatch, KindProvenanceClosure+".closure_hash", "closure %s, certificate closure %s", b.Provenance.ClosureHash, cp.ClosureHash)
	}
	if b.Promoted != nil && b.Promoted.CertificateID != cp.CertificateID {
		f.Addf(verify.CauseArtifactHashMismatch, KindPromotedArtifact+".certificate_id", "promoted by %s, bundle certificate is %s", b.Promoted.CertificateID, cp.CertificateID)
	}

	if c := opts.Certificate; c != nil {
		cr := cert.VerifyCertificate(*c, cert.VerifyOptions{RequireSignature: opts.RequireSignature})
		rep.Signature = string(cr.Signature)
		merge(&f, KindCertificate, cr.Findings)
		if ProjectCertificate(*c) != cp {
			f.Add(verify.CauseArtifactHashMismatch, KindCertificate, "full certificate does not match bundled projection")
		}
		if c.Signature != nil && !c.Signature.IsUnsigned() {
			rep.Operator = c.Signature.PublicKeyB64
			rep.OperatorRevoked = b.Revocation.IsOperatorRevoked(rep.Operator)
		}
	}
	rep.CertificateRevoked = b.Revocation.IsCertificateRevoked(cp.CertificateID)

	rep.Outcome = f.Outcome()
	rep.Findings = f.All()
	return rep
}

func merge(f *verify.Findings, prefix string, fs []verify.Finding) {
	for _, it := range fs {
		subject := prefix
		if it.Subject != "" {
			subject += "." + it.Subject
		}
		f.Add(it.Cause, subject, it.Detail)
	}
}
