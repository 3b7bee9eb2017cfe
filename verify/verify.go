// Package verify defines verification outcomes shared by every verifier.
//
// A failed verification is a value, not an error. When several problems are
// found only the highest-precedence cause is reported:
//
//	IMPLEMENTATION_DRIFT > SPEC_DRIFT > STRUCTURAL_DIVERGENCE > ARTIFACT_HASH_MISMATCH > MISSING_ARTIFACT
package verify

import "fmt"

// Cause is the closed set of verification failure causes.
type Cause string

const (
	// CauseImplementationDrift means this implementation no longer reproduces
	// the reference vectors the artifact was produced against.
	CauseImplementationDrift Cause = "IMPLEMENTATION_DRIFT"
	// CauseSpecDrift means the artifact was produced under a schema or
	// contract version this verifier does not implement.
	CauseSpecDrift Cause = "SPEC_DRIFT"
	// CauseStructuralDivergence means the artifact is malformed: bad hash
	// strings, wrong ordering or missing required fields.
	CauseStructuralDivergence Cause = "STRUCTURAL_DIVERGENCE"
	// CauseArtifactHashMismatch means a recomputed hash differs from the recorded one.
	CauseArtifactHashMismatch Cause = "ARTIFACT_HASH_MISMATCH"
	// CauseMissingArtifact means a referenced artifact could not be resolved or read.
	CauseMissingArtifact Cause = "MISSING_ARTIFACT"
)

var causeRank = map[Cause]int{
	CauseImplementationDrift:  5,
	CauseSpecDrift:            4,
	CauseStructuralDivergence: 3,
	CauseArtifactHashMismatch: 2,
	CauseMissingArtifact:      1,
}

// Causes lists all causes from highest to lowest precedence.
func Causes() []Cause {
	return []Cause{
		CauseImplementationDrift,
		CauseSpecDrift,
		CauseStructuralDivergence,
		CauseArtifactHashMismatch,
		CauseMissingArtifact,
	}
}

// Rank is the cause's precedence; unknown causes rank 0.
func (c Cause) Rank() int { return causeRank[c] }

// Outranks reports whether c takes precedence over o.
func (c Cause) Outranks(o Cause) bool { return c.Rank() > o.Rank() }

// Status is the explicit, named result of a check. "Unknown" is never
// represented by an empty value.
type Status string

const (
	StatusVerified     Status = "VERIFIED"
	StatusFailed       Status = "FAILED"
	StatusUnverifiable Status = "UNVERIFIABLE"
	StatusNotMeasured  Status = "NOT_MEASURED"
)

// Finding is one detected problem.
type Finding struct {
	Cause   Cause  `json:"cause"`
	Subject string `json:"subject,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func (f Finding) String() string {
	if f.Subject == "" {
		return fmt.Sprintf("%s: %s", f.Cause, f.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", f.Cause, f.Subject, f.Detail)
}

// Outcome is the single reportable result of a verification.
type Outcome struct {
	Status  Status `json:"status"`
	Cause   Cause  `json:"cause,omitempty"`
	Subject string `json:"subject,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// OK reports whether the outcome is VERIFIED.
func (o Outcome) OK() bool { return o.Status == StatusVerified }

func Verified() Outcome { return Outcome{Status: StatusVerified} }

// NotMeasured is the outcome for checks that were deliberately not run.
func NotMeasured(detail string) Outcome {
	return Outcome{Status: StatusNotMeasured, Detail: detail}
}

// Findings collects problems during a verification pass.
// The zero value is ready to use; it is not safe for concurrent use.
type Findings struct {
	items []Finding
}

func (f *Findings) Add(c Cause, subject, detail string) {
	f.items = append(f.items, Finding{Cause: c, Subject: subject, Detail: detail})
}

func (f *Findings) Addf(c Cause, subject, format string, args ...any) {
	f.Add(c, subject, fmt.Sprintf(format, args...))
}

func (f *Findings) Len() int { return len(f.items) }

// All returns every finding in insertion order.
func (f *Findings) All() []Finding { return append([]Finding(nil), f.items...) }

// Primary returns the highest-precedence finding; ties go to the earliest.
func (f *Findings) Primary() (Finding, bool) {
	if len(f.items) == 0 {
		return Finding{}, false
	}
	best := f.items[0]
	for _, it := range f.items[1:] {
		if it.Cause.Outranks(best.Cause) {
			best = it
		}
	}
	return best, true
}

// Outcome reduces the findings to one result. No findings is VERIFIED.
// A missing artifact alone is UNVERIFIABLE; every other cause is FAILED.
func (f *Findings) Outcome() Outcome {
	p, ok := f.Primary()
	if !ok {
		return Verified()
	}
	st := StatusFailed
	if p.Cause == CauseMissingArtifact {
		st = StatusUnverifiable
	}
	return Outcome{Status: st, Cause: p.Cause, Subject: p.Subject, Detail: p.Detail}
}
