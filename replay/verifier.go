package replay

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/commit"
)

// Status is the result of a replay check.
type Status string

const (
	StatusDeterministic    Status = "DETERMINISTIC"
	StatusNondeterministic Status = "NONDETERMINISTIC"
	StatusNotMeasured      Status = "NOT_MEASURED"
)

// Report describes one replay check.
type Report struct {
	// RunID identifies this check; it is observational and never hashed.
	RunID     string                `json:"run_id"`
	Mode      string                `json:"mode"`
	Status    Status                `json:"status"`
	StateHash commit.CommitmentHash `json:"state_hash"`
	// ClaimsHash commits to the claim fields when every claim was produced
	// and the runs agree.
	ClaimsHash string `json:"claims_hash,omitempty"`
	// Divergent lists claim fields whose canonical bytes differ.
	Divergent []string `json:"divergent,omitempty"`
	// Missing lists claim fields absent from both runs. Any missing claim
	// makes the check NOT_MEASURED.
	Missing []string `json:"missing,omitempty"`
	// Unclassified lists output fields that are neither claims nor observations.
	Unclassified []string `json:"unclassified,omitempty"`
	// ObservationDelta lists observational fields that varied; informational only.
	ObservationDelta []string `json:"observation_delta,omitempty"`
	Detail           string   `json:"detail,omitempty"`
}

// Verifier runs the capture, execute, restore, re-execute, compare protocol.
type Verifier struct {
	Fields   Fields
	Executor Executor
}

// Verify captures rng, runs the executor twice from that state and compares
// claims. rng itself is not advanced. Invalid configuration is an error; a
// run that fails is reported as NOT_MEASURED.
func (v Verifier) Verify(ctx context.Context, rng RNG) (Report, error) {
	if err := v.Fields.Validate(); err != nil {
		return Report{}, err
	}
	if v.Executor == nil {
		return Report{}, errors.New("replay: nil executor")
	}
	snap, err := Capture(rng)
	if err != nil {
		return Report{}, err
	}
	rep := Report{RunID: uuid.NewString(), Mode: v.Executor.Mode(), StateHash: snap.Hash}

	first, err := v.Executor.Execute(ctx, snap)
	if err != nil {
		rep.Status, rep.Detail = StatusNotMeasured, "first run: "+err.Error()
		return rep, nil
	}
	second, err := v.Executor.Execute(ctx, snap)
	if err != nil {
		rep.Status, rep.Detail = StatusNotMeasured, "second run: "+err.Error()
		return rep, nil
	}
	return v.compare(rep, first, second)
}

func (v Verifier) compare(rep Report, first, second Record) (Report, error) {
	c1, o1, u1 := v.Fields.Partition(first)
	c2, o2, u2 := v.Fields.Partition(second)
	rep.Unclassified = union(u1, u2)

	for _, name := range v.Fields.Claims {
		a, okA := c1[name]
		b, okB := c2[name]
		switch {
		case !okA && !okB:
			rep.Missing = append(rep.Missing, name)
		case okA != okB:
			rep.Divergent = append(rep.Divergent, name)
		default:
			same, err := sameCanonical(a, b)
			if err != nil {
				return Report{}, err
			}
			if !same {
				rep.Divergent = append(rep.Divergent, name)
			}
		}
	}
	sort.Strings(rep.Divergent)
	sort.Strings(rep.Missing)

	for _, name := range v.Fields.Observations {
		a, okA := o1[name]
		b, okB := o2[name]
		if okA != okB {
			rep.ObservationDelta = append(rep.ObservationDelta, name)
			continue
		}
		if same, err := sameCanonical(a, b); err == nil && !same {
			rep.ObservationDelta = append(rep.ObservationDelta, name)
		}
	}
	sort.Strings(rep.ObservationDelta)

	switch {
	case len(rep.Divergent) > 0:
		rep.Status = StatusNondeterministic
	case len(rep.Missing) == len(v.Fields.Claims):
		rep.Status, rep.Detail = StatusNotMeasured, "no claim field was produced"
	case len(rep.Missing) > 0:
		rep.Status = StatusNotMeasured
		rep.Detail = "claim fields not produced by either run: " + strings.Join(rep.Missing, ", ")
	default:
		rep.Status = StatusDeterministic
		d, err := canon.ComputeContentHash(c1, canon.Governance, "")
		if err != nil {
			return Report{}, err
		}
		rep.ClaimsHash = d.String()
	}
	return rep, nil
}

// sameCanonical compares two values by their PROOFS canonical bytes, so
// map ordering and integer widths cannot cause false divergence.
func sameCanonical(a, b any) (bool, error) {
	ba, err := canon.Encode(a, canon.Proofs)
	if err != nil {
		return false, err
	}
	bb, err := canon.Encode(b, canon.Proofs)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ba, bb), nil
}

func union(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
