package replay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func seeded() *rand.ChaCha8 {
	var seed [32]byte
	copy(seed[:], "canonproof replay test seed.....")
	return rand.NewChaCha8(seed)
}

func TestSnapshotRestoreReproducesSequence(t *testing.T) {
	src := seeded()
	src.Uint64() // advance so the snapshot is not the seed state
	snap, err := Capture(src)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	want := []uint64{src.Uint64(), src.Uint64(), src.Uint64()}

	restored := new(rand.ChaCha8)
	if err := snap.Restore(restored); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got := []uint64{restored.Uint64(), restored.Uint64(), restored.Uint64()}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("restored sequence %v, want %v", got, want)
	}
}

func TestSnapshotHashIsStable(t *testing.T) {
	a, err := Capture(seeded())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	b, err := Capture(seeded())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !a.Hash.Equal(b.Hash) {
		t.Fatalf("same state hashed differently: %s vs %s", a.Hash, b.Hash)
	}
	other := seeded()
	other.Uint64()
	c, err := Capture(other)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if a.Hash.Equal(c.Hash) {
		t.Fatalf("different states share a hash")
	}
}

func TestSnapshotTamperDetected(t *testing.T) {
	snap, err := Capture(seeded())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	snap.State = append([]byte(nil), snap.State...)
	snap.State[len(snap.State)-1] ^= 0xff
	if err := snap.Restore(new(rand.ChaCha8)); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("Restore tampered: got %v want ErrSnapshotCorrupt", err)
	}
}

func TestSnapshotWrongAlgorithm(t *testing.T) {
	snap, err := Capture(seeded())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := snap.Restore(rand.NewPCG(1, 2)); err == nil {
		t.Fatalf("expected error restoring ChaCha8 state into PCG")
	}
}

func TestFieldsValidate(t *testing.T) {
	cases := []struct {
		name   string
		fields Fields
		ok     bool
	}{
		{"valid", Fields{Claims: []string{"a"}, Observations: []string{"t"}}, true},
		{"no claims", Fields{Observations: []string{"t"}}, false},
		{"overlap", Fields{Claims: []string{"a"}, Observations: []string{"a"}}, false},
		{"duplicate claim", Fields{Claims: []string{"a", "a"}}, false},
		{"empty name", Fields{Claims: []string{""}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fields.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, ok want %v", err, tc.ok)
			}
		})
	}
}

func TestPartition(t *testing.T) {
	s := Fields{Claims: []string{"score"}, Observations: []string{"elapsed_ns"}}
	claims, obs, extra := s.Partition(Record{"score": 1, "elapsed_ns": 5, "zeta": true, "alpha": nil})
	if len(claims) != 1 || len(obs) != 1 {
		t.Fatalf("claims=%v obs=%v", claims, obs)
	}
	if !reflect.DeepEqual(extra, []string{"alpha", "zeta"}) {
		t.Fatalf("unclassified = %v", extra)
	}
}

func pureMeasurement(_ context.Context, rng *rand.Rand) (Record, error) {
	return Record{
		"draw":       rng.Uint64(),
		"sample":     []int{rng.IntN(100), rng.IntN(100), rng.IntN(100)},
		"elapsed_ns": time.Now().UnixNano(),
		"debug":      "trace",
	}, nil
}

// hiddenCalls is process-global state that leaks between in-process runs.
var hiddenCalls int

func leakyMeasurement(_ context.Context, rng *rand.Rand) (Record, error) {
	hiddenCalls++
	return Record{
		"draw":  rng.Uint64(),
		"score": rng.IntN(1000) + hiddenCalls,
	}, nil
}

func TestInProcessDeterministic(t *testing.T) {
	v := Verifier{
		Fields:   Fields{Claims: []string{"draw", "sample"}, Observations: []string{"elapsed_ns"}},
		Executor: InProcess{Fn: pureMeasurement},
	}
	src := seeded()
	rep, err := v.Verify(context.Background(), src)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Status != StatusDeterministic {
		t.Fatalf("status = %s (%+v)", rep.Status, rep)
	}
	if rep.ClaimsHash == "" || rep.StateHash.IsZero() || rep.RunID == "" {
		t.Fatalf("report missing hashes or run id: %+v", rep)
	}
	if !reflect.DeepEqual(rep.Unclassified, []string{"debug"}) {
		t.Fatalf("unclassified = %v", rep.Unclassified)
	}
	if rep.Mode != "in_process" {
		t.Fatalf("mode = %q", rep.Mode)
	}

	// The caller's RNG is not advanced by verification.
	if got, want := src.Uint64(), seeded().Uint64(); got != want {
		t.Fatalf("Verify advanced the caller's RNG")
	}
}

func TestInProcessDetectsHiddenState(t *testing.T) {
	v := Verifier{
		Fields:   Fields{Claims: []string{"draw", "score"}},
		Executor: InProcess{Fn: leakyMeasurement},
	}
	rep, err := v.Verify(context.Background(), seeded())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Status != StatusNondeterministic {
		t.Fatalf("status = %s, want NONDETERMINISTIC", rep.Status)
	}
	if !reflect.DeepEqual(rep.Divergent, []string{"score"}) {
		t.Fatalf("divergent = %v, want [score]", rep.Divergent)
	}
	if rep.ClaimsHash != "" {
		t.Fatalf("claims hash must be empty for a nondeterministic run")
	}
}

func TestExecutorFailureIsNotMeasured(t *testing.T) {
	v := Verifier{
		Fields: Fields{Claims: []string{"x"}},
		Executor: InProcess{Fn: func(context.Context, *rand.Rand) (Record, error) {
			return nil, fmt.Errorf("measurement crashed")
		}},
	}
	rep, err := v.Verify(context.Background(), seeded())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Status != StatusNotMeasured || rep.Detail == "" {
		t.Fatalf("report = %+v, want NOT_MEASURED with detail", rep)
	}
}

func TestPartialClaimsAreNotMeasured(t *testing.T) {
	v := Verifier{
		Fields:   Fields{Claims: []string{"draw", "absent"}},
		Executor: InProcess{Fn: pureMeasurement},
	}
	rep, err := v.Verify(context.Background(), seeded())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Status != StatusNotMeasured || rep.ClaimsHash != "" {
		t.Fatalf("report = %+v, want NOT_MEASURED without a claims hash", rep)
	}
	if !reflect.DeepEqual(rep.Missing, []string{"absent"}) || len(rep.Divergent) != 0 {
		t.Fatalf("missing = %v divergent = %v", rep.Missing, rep.Divergent)
	}
	if !strings.Contains(rep.Detail, "absent") {
		t.Fatalf("detail %q does not name the missing claim", rep.Detail)
	}
}

func TestNoClaimProducedIsNotMeasured(t *testing.T) {
	v := Verifier{
		Fields:   Fields{Claims: []string{"absent"}},
		Executor: InProcess{Fn: pureMeasurement},
	}
	rep, err := v.Verify(context.Background(), seeded())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Status != StatusNotMeasured || !reflect.DeepEqual(rep.Missing, []string{"absent"}) {
		t.Fatalf("report = %+v", rep)
	}
}

func TestVerifyRejectsBadConfig(t *testing.T) {
	if _, err := (Verifier{Executor: InProcess{Fn: pureMeasurement}}).Verify(context.Background(), seeded()); err == nil {
		t.Fatalf("expected error for empty field set")
	}
	if _, err := (Verifier{Fields: Fields{Claims: []string{"a"}}}).Verify(context.Background(), seeded()); err == nil {
		t.Fatalf("expected error for nil executor")
	}
}

func helperSubprocess() Subprocess {
	return Subprocess{
		Path: os.Args[0],
		Args: []string{"-test.run=^TestHelperProcess$", "--"},
		Env:  []string{"CANONPROOF_REPLAY_HELPER=1"},
	}
}

func TestSubprocessIsolatesHiddenState(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns subprocesses")
	}
	v := Verifier{
		Fields:   Fields{Claims: []string{"draw", "score"}},
		Executor: helperSubprocess(),
	}
	rep, err := v.Verify(context.Background(), seeded())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Status != StatusDeterministic {
		t.Fatalf("status = %s (%+v), want DETERMINISTIC", rep.Status, rep)
	}
	if rep.Mode != "subprocess" {
		t.Fatalf("mode = %q", rep.Mode)
	}
}

func TestSubprocessFailureIsNotMeasured(t *testing.T) {
	v := Verifier{
		Fields:   Fields{Claims: []string{"draw"}},
		Executor: Subprocess{Path: os.Args[0], Args: []string{"-test.run=^TestHelperProcess$", "--"}},
	}
	// Without the helper env var the child runs the helper test as a no-op
	// and prints the test framework's output, which is not a record.
	rep, err := v.Verify(context.Background(), seeded())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Status != StatusNotMeasured {
		t.Fatalf("status = %s, want NOT_MEASURED", rep.Status)
	}
}

// TestHelperProcess is the child side of the subprocess tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("CANONPROOF_REPLAY_HELPER") != "1" {
		return
	}
	if err := ServeSubprocess(context.Background(), leakyMeasurement, nil, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(0)
}
