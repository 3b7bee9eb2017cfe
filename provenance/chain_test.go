package provenance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/storage"
	"xdao.co/canonproof/verify"
)

// artifact returns bytes and the reference a resolver must map them to.
func artifact(t *testing.T, body string) (string, []byte) {
	t.Helper()
	b := []byte(body)
	d, err := canon.Hash(b, canon.Governance, "")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return d.String(), b
}

type fixture struct {
	in       Input
	resolver MapResolver
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	res := MapResolver{}
	add := func(body string) string {
		ref, b := artifact(t, body)
		res[ref] = b
		return ref
	}
	in := Input{
		SketchHash: add(`{"sketch":1}`),
		ParentHash: add(`{"hypothesis":"parent"}`),
		DeltaHash:  add(`{"delta":"swap"}`),
		Evidence: []EvidenceBinding{
			{EvidenceHash: add(`{"episode":"b"}`), SelectionRuleHash: add(`{"rule":"b"}`)},
			{EvidenceHash: add(`{"episode":"a"}`), SelectionRuleHash: add(`{"rule":"a"}`)},
			{EvidenceHash: add(`{"episode":"c"}`), SelectionRuleHash: add(`{"rule":"c"}`)},
		},
		CertificateRef: add(`{"certificate":"x"}`),
		ClosureHash:    "sha256:" + strings.Repeat("ab", 32),
	}
	return fixture{in: in, resolver: res}
}

func TestBuildSortsEvidence(t *testing.T) {
	fx := newFixture(t)
	c, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 1; i < len(c.Evidence); i++ {
		if c.Evidence[i-1].EvidenceHash >= c.Evidence[i].EvidenceHash {
			t.Fatalf("evidence not sorted at %d: %+v", i, c.Evidence)
		}
	}
	if len(fx.in.Evidence) != 3 || fx.in.Evidence[0].EvidenceHash == "" {
		t.Fatalf("Build must not mutate its input")
	}
}

func TestChainHashInvariantToEvidenceOrder(t *testing.T) {
	fx := newFixture(t)
	base, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		in := fx.in
		in.Evidence = []EvidenceBinding{fx.in.Evidence[p[0]], fx.in.Evidence[p[1]], fx.in.Evidence[p[2]]}
		c, err := Build(in)
		if err != nil {
			t.Fatalf("Build(%v): %v", p, err)
		}
		if !c.ChainHash.Equal(base.ChainHash) {
			t.Fatalf("permutation %v: chain hash %s, want %s", p, c.ChainHash, base.ChainHash)
		}
	}
}

func TestBuildRejectsMalformedAndDuplicate(t *testing.T) {
	fx := newFixture(t)

	bad := fx.in
	bad.DeltaHash = strings.TrimPrefix(bad.DeltaHash, "sha256:")
	if _, err := Build(bad); !errors.Is(err, ErrInvalidChain) {
		t.Fatalf("bare delta hash: got %v want ErrInvalidChain", err)
	}

	empty := fx.in
	empty.ParentHash = ""
	if _, err := Build(empty); !errors.Is(err, ErrInvalidChain) {
		t.Fatalf("empty parent: got %v want ErrInvalidChain", err)
	}

	dup := fx.in
	dup.Evidence = append([]EvidenceBinding{fx.in.Evidence[0]}, fx.in.Evidence...)
	if _, err := Build(dup); !errors.Is(err, ErrInvalidChain) {
		t.Fatalf("duplicate binding: got %v want ErrInvalidChain", err)
	}
}

func TestSelectionRuleIsBound(t *testing.T) {
	fx := newFixture(t)
	a, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := fx.in
	in.Evidence = append([]EvidenceBinding(nil), fx.in.Evidence...)
	in.Evidence[0].SelectionRuleHash = in.Evidence[1].SelectionRuleHash
	b, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.ChainHash.Equal(b.ChainHash) {
		t.Fatalf("changing a selection rule must change the chain hash")
	}
}

func TestVerifyAllResolved(t *testing.T) {
	fx := newFixture(t)
	c, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rep := Verify(context.Background(), c, fx.resolver)
	if !rep.Outcome.OK() || rep.Resolution != verify.StatusVerified {
		t.Fatalf("Verify = %+v", rep)
	}
}

func TestVerifyWithoutResolverIsNotMeasured(t *testing.T) {
	fx := newFixture(t)
	c, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rep := Verify(context.Background(), c, nil)
	if !rep.Outcome.OK() {
		t.Fatalf("outcome = %+v", rep.Outcome)
	}
	if rep.Resolution != verify.StatusNotMeasured {
		t.Fatalf("resolution = %s, want NOT_MEASURED", rep.Resolution)
	}
}

func TestVerifyTamperedChainHash(t *testing.T) {
	fx := newFixture(t)
	c, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c.DeltaHash = c.SketchHash
	rep := Verify(context.Background(), c, nil)
	if rep.Outcome.Cause != verify.CauseArtifactHashMismatch || rep.Outcome.Subject != "chain_hash" {
		t.Fatalf("outcome = %+v, want ARTIFACT_HASH_MISMATCH on chain_hash", rep.Outcome)
	}
}

func TestVerifyUnsortedEvidenceIsStructural(t *testing.T) {
	fx := newFixture(t)
	c, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c.Evidence[0], c.Evidence[1] = c.Evidence[1], c.Evidence[0]
	rep := Verify(context.Background(), c, fx.resolver)
	// The chain hash still matches because hashing sorts, but the stored
	// order violates the canonical form.
	if rep.Outcome.Cause != verify.CauseStructuralDivergence {
		t.Fatalf("outcome = %+v, want STRUCTURAL_DIVERGENCE", rep.Outcome)
	}
}

func TestVerifyMissingArtifactIsUnverifiable(t *testing.T) {
	fx := newFixture(t)
	c, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	delete(fx.resolver, c.Evidence[1].SelectionRuleHash)
	rep := Verify(context.Background(), c, fx.resolver)
	if rep.Outcome.Status != verify.StatusUnverifiable || rep.Outcome.Cause != verify.CauseMissingArtifact {
		t.Fatalf("outcome = %+v", rep.Outcome)
	}
	if rep.Resolution != verify.StatusUnverifiable {
		t.Fatalf("resolution = %s", rep.Resolution)
	}
}

func TestVerifySubstitutedArtifact(t *testing.T) {
	fx := newFixture(t)
	c, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	fx.resolver[c.SketchHash] = []byte(`{"sketch":2}`)
	rep := Verify(context.Background(), c, fx.resolver)
	if rep.Outcome.Cause != verify.CauseArtifactHashMismatch || rep.Outcome.Subject != "sketch_hash" {
		t.Fatalf("outcome = %+v, want ARTIFACT_HASH_MISMATCH on sketch_hash", rep.Outcome)
	}
}

func TestGenesisParentIsNotResolved(t *testing.T) {
	fx := newFixture(t)
	delete(fx.resolver, fx.in.ParentHash)
	fx.in.ParentHash = GenesisParent
	c, err := Build(fx.in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !c.IsGenesis() {
		t.Fatalf("expected genesis chain")
	}
	rep := Verify(context.Background(), c, fx.resolver)
	if !rep.Outcome.OK() {
		t.Fatalf("genesis chain outcome = %+v", rep.Outcome)
	}
}

func TestCASResolver(t *testing.T) {
	ctx := context.Background()
	cas := storage.NewMemoryCAS()
	ref, body := artifact(t, `{"stored":true}`)
	if _, err := cas.Put(ctx, body); err != nil {
		t.Fatalf("Put: %v", err)
	}
	r := CASResolver{CAS: cas}
	got, err := r.Resolve(ctx, ref)
	if err != nil || string(got) != string(body) {
		t.Fatalf("Resolve = (%q, %v)", got, err)
	}
	missing, _ := artifact(t, `{"stored":false}`)
	if _, err := r.Resolve(ctx, missing); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("Resolve(missing) = %v, want ErrArtifactNotFound", err)
	}
	if _, err := r.Resolve(ctx, "sha3-256:"+strings.Repeat("0", 64)); err == nil {
		t.Fatalf("expected error for non-sha256 reference")
	}
}
