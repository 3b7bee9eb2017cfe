package cert

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"xdao.co/canonproof/hashfmt"
	"xdao.co/canonproof/keys"
	"xdao.co/canonproof/sign"
	"xdao.co/canonproof/verify"
)

func h(c byte) string { return "sha256:" + strings.Repeat(string(c), 64) }

func testClosure() []ArtifactRef {
	return []ArtifactRef{
		{ID: "episode-2", Digest: h('2')},
		{ID: "episode-1", Digest: h('1')},
		{ID: "policy", Digest: h('c')},
	}
}

func testInput() Input {
	return Input{
		Kind:           "measurement",
		Domain:         "kv-store",
		TargetHash:     h('f'),
		PolicyHash:     h('a'),
		Closure:        testClosure(),
		EvidenceHashes: []string{h('1'), h('2')},
		PinnedInputs:   map[string]string{"seed": "42"},
		SuiteResults: []SuiteResult{
			{Name: "replay", Status: SuiteNotMeasured},
			{Name: "golden", Status: SuitePassed, ResultHash: h('b')},
		},
	}
}

func testBuilder(t *testing.T) Builder {
	t.Helper()
	k, err := keys.NewEd25519FromSeed(bytes.Repeat([]byte{0x11}, 32))
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return Builder{Signer: sign.Signer{Keys: keys.Static(k)}}
}

func TestBuildAndVerify(t *testing.T) {
	c, err := testBuilder(t).Build(testInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := hashfmt.ValidatePrefixed(c.ID); err != nil {
		t.Fatalf("certificate id: %v", err)
	}
	if c.Payload.Summary != (Summary{Total: 2, Passed: 1, NotMeasured: 1}) {
		t.Fatalf("summary: %+v", c.Payload.Summary)
	}
	if c.Payload.SuiteResults[0].Name != "golden" {
		t.Fatalf("suite results not sorted by name")
	}
	if c.Payload.Anchors[AnchorCodecVector] != CodecVectorDigest {
		t.Fatalf("codec anchor: %q", c.Payload.Anchors[AnchorCodecVector])
	}

	rep := VerifyCertificate(c, VerifyOptions{Closure: testClosure(), RequireSignature: true})
	if !rep.Outcome.OK() {
		t.Fatalf("expected verified, got %+v (%v)", rep.Outcome, rep.Findings)
	}
	if rep.Signature != sign.StatusSignedValid || rep.Closure != verify.StatusVerified {
		t.Fatalf("report: %+v", rep)
	}
}

func TestIdentityExcludesSignature(t *testing.T) {
	signed, err := testBuilder(t).Build(testInput())
	if err != nil {
		t.Fatalf("Build signed: %v", err)
	}
	unsigned, err := Builder{}.Build(testInput())
	if err != nil {
		t.Fatalf("Build unsigned: %v", err)
	}
	if signed.ID != unsigned.ID {
		t.Fatalf("signature changed identity: %s vs %s", signed.ID, unsigned.ID)
	}
	if unsigned.Signature == nil || !unsigned.Signature.IsUnsigned() {
		t.Fatalf("expected explicit unsigned block")
	}
	rep := VerifyCertificate(unsigned, VerifyOptions{})
	if !rep.Outcome.OK() || rep.Signature != sign.StatusUnsigned || rep.Closure != verify.StatusNotMeasured {
		t.Fatalf("unsigned report: %+v", rep)
	}
	rep = VerifyCertificate(unsigned, VerifyOptions{RequireSignature: true})
	if rep.Outcome.Cause != verify.CauseMissingArtifact {
		t.Fatalf("RequireSignature: %+v", rep.Outcome)
	}
}

func TestTamperedEvidenceListFails(t *testing.T) {
	c, err := testBuilder(t).Build(testInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tampered := c
	tampered.Payload.EvidenceHashes = []string{h('1'), h('3')}
	rep := VerifyCertificate(tampered, VerifyOptions{Closure: testClosure()})
	if rep.Outcome.Status != verify.StatusFailed || rep.Outcome.Cause != verify.CauseArtifactHashMismatch {
		t.Fatalf("expected ARTIFACT_HASH_MISMATCH, got %+v", rep.Outcome)
	}

	dropped := c
	dropped.Payload.EvidenceHashes = c.Payload.EvidenceHashes[:1]
	if rep := VerifyCertificate(dropped, VerifyOptions{}); rep.Outcome.Cause != verify.CauseArtifactHashMismatch {
		t.Fatalf("dropped evidence: %+v", rep.Outcome)
	}
}

func TestTamperedUnsignedEvidenceWithRecomputedID(t *testing.T) {
	c, err := Builder{}.Build(testInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c.Payload.EvidenceHashes = []string{h('1'), h('9')}
	if c.ID, err = ComputeID(c.Payload); err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	block, err := sign.Signer{Contract: IDContract}.Sign(c.Payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	c.Signature = &block
	rep := VerifyCertificate(c, VerifyOptions{Closure: testClosure()})
	if rep.Signature != sign.StatusUnsigned {
		t.Fatalf("signature = %s, want UNSIGNED", rep.Signature)
	}
	if rep.Outcome.Status != verify.StatusFailed || rep.Outcome.Cause != verify.CauseArtifactHashMismatch {
		t.Fatalf("outcome = %+v, want FAILED/ARTIFACT_HASH_MISMATCH", rep.Outcome)
	}
	if rep.Outcome.Subject != "evidence_hashes[1]" || rep.Closure != verify.StatusFailed {
		t.Fatalf("subject = %q closure = %s", rep.Outcome.Subject, rep.Closure)
	}
}

func TestTamperedClosureFails(t *testing.T) {
	c, _ := testBuilder(t).Build(testInput())
	other := append(testClosure(), ArtifactRef{ID: "extra", Digest: h('e')})
	rep := VerifyCertificate(c, VerifyOptions{Closure: other})
	if rep.Outcome.Cause != verify.CauseArtifactHashMismatch || rep.Closure != verify.StatusFailed {
		t.Fatalf("closure mismatch: %+v", rep)
	}
	partial := testClosure()[:1]
	rep = VerifyCertificate(c, VerifyOptions{Closure: partial})
	if rep.Outcome.Cause != verify.CauseArtifactHashMismatch {
		t.Fatalf("partial closure: %+v", rep.Outcome)
	}
}

func TestPrecedenceInCertificateVerification(t *testing.T) {
	c, _ := testBuilder(t).Build(testInput())

	drift := c
	drift.Payload.Anchors = map[string]string{AnchorCodecVector: h('0')}
	if rep := VerifyCertificate(drift, VerifyOptions{}); rep.Outcome.Cause != verify.CauseImplementationDrift {
		t.Fatalf("expected IMPLEMENTATION_DRIFT, got %+v", rep.Outcome)
	}

	schema := c
	schema.Payload.SchemaVersion = "certificate.v2"
	schema.Payload.PolicyHash = strings.ToUpper(c.Payload.PolicyHash)
	if rep := VerifyCertificate(schema, VerifyOptions{}); rep.Outcome.Cause != verify.CauseSpecDrift {
		t.Fatalf("expected SPEC_DRIFT, got %+v", rep.Outcome)
	}

	structural := c
	structural.Payload.PolicyHash = strings.TrimPrefix(c.Payload.PolicyHash, "sha256:")
	rep := VerifyCertificate(structural, VerifyOptions{})
	if rep.Outcome.Cause != verify.CauseStructuralDivergence {
		t.Fatalf("expected STRUCTURAL_DIVERGENCE, got %+v", rep.Outcome)
	}
	if len(rep.Findings) < 2 {
		t.Fatalf("expected the id mismatch to be recorded as well: %v", rep.Findings)
	}
}

func TestBuildFailsClosed(t *testing.T) {
	in := testInput()
	in.Domain = ""
	if _, err := (Builder{}).Build(in); !errors.Is(err, ErrMissingDomain) {
		t.Fatalf("expected ErrMissingDomain, got %v", err)
	}
	in = testInput()
	in.TargetHash = ""
	if _, err := (Builder{}).Build(in); !errors.Is(err, ErrMissingTarget) {
		t.Fatalf("expected ErrMissingTarget, got %v", err)
	}
	in = testInput()
	in.EvidenceHashes = []string{strings.Repeat("1", 64)}
	if _, err := (Builder{}).Build(in); !hashfmt.IsFormatError(err) {
		t.Fatalf("expected format error for bare evidence hash, got %v", err)
	}
	in = testInput()
	in.ClosureHash = h('9')
	if _, err := (Builder{}).Build(in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected closure mismatch error, got %v", err)
	}
	in = testInput()
	in.SuiteResults = []SuiteResult{{Name: "x", Status: "SKIPPED"}}
	if _, err := (Builder{}).Build(in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid suite status error, got %v", err)
	}
}

func TestEvidenceOrderPreserved(t *testing.T) {
	a := testInput()
	b := testInput()
	b.EvidenceHashes = []string{h('2'), h('1')}
	ca, _ := Builder{}.Build(a)
	cb, _ := Builder{}.Build(b)
	if cb.Payload.EvidenceHashes[0] != h('2') {
		t.Fatalf("evidence order was not preserved")
	}
	if ca.ID == cb.ID {
		t.Fatalf("evidence order must be part of the identity")
	}
}

func TestClosureHashOrderIndependent(t *testing.T) {
	refs := testClosure()
	a, err := ClosureHash(refs)
	if err != nil {
		t.Fatalf("ClosureHash: %v", err)
	}
	rev := []ArtifactRef{refs[2], refs[0], refs[1]}
	b, _ := ClosureHash(rev)
	if a != b {
		t.Fatalf("closure hash depends on order")
	}
	if _, err := ClosureHash([]ArtifactRef{refs[0], refs[0]}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestJSONRoundTripVerifies(t *testing.T) {
	c, _ := testBuilder(t).Build(testInput())
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Certificate
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rep := VerifyCertificate(back, VerifyOptions{Closure: testClosure()}); !rep.Outcome.OK() {
		t.Fatalf("round-tripped certificate failed: %+v", rep.Outcome)
	}
}
