package verify

import "testing"

func TestPrecedenceOrder(t *testing.T) {
	cs := Causes()
	for i := 1; i < len(cs); i++ {
		if !cs[i-1].Outranks(cs[i]) {
			t.Fatalf("%s should outrank %s", cs[i-1], cs[i])
		}
	}
}

func TestOnlyHighestCauseReported(t *testing.T) {
	var f Findings
	f.Add(CauseMissingArtifact, "evidence[2]", "not found")
	f.Add(CauseArtifactHashMismatch, "closure_hash", "recomputed differs")
	f.Add(CauseStructuralDivergence, "policy_hash", "uppercase hex")
	f.Add(CauseArtifactHashMismatch, "certificate_id", "recomputed differs")

	out := f.Outcome()
	if out.Status != StatusFailed || out.Cause != CauseStructuralDivergence || out.Subject != "policy_hash" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.Len() != 4 || len(f.All()) != 4 {
		t.Fatalf("findings lost")
	}

	f.Add(CauseImplementationDrift, "codec_vector", "golden vector differs")
	if got := f.Outcome(); got.Cause != CauseImplementationDrift {
		t.Fatalf("implementation drift must win, got %s", got.Cause)
	}
}

func TestTiesGoToEarliest(t *testing.T) {
	var f Findings
	f.Add(CauseArtifactHashMismatch, "first", "")
	f.Add(CauseArtifactHashMismatch, "second", "")
	if p, _ := f.Primary(); p.Subject != "first" {
		t.Fatalf("tie broken wrongly: %s", p.Subject)
	}
}

func TestStatusMapping(t *testing.T) {
	var empty Findings
	if out := empty.Outcome(); !out.OK() || out.Cause != "" {
		t.Fatalf("empty findings: %+v", out)
	}
	var missing Findings
	missing.Addf(CauseMissingArtifact, "x", "cid %s", "bafy")
	if out := missing.Outcome(); out.Status != StatusUnverifiable || out.Detail != "cid bafy" {
		t.Fatalf("missing only: %+v", out)
	}
	if out := NotMeasured("subprocess mode disabled"); out.Status != StatusNotMeasured || out.OK() {
		t.Fatalf("NotMeasured: %+v", out)
	}
}
