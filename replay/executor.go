package replay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/exec"
	"strings"
)

// StateEnv carries the JSON-encoded Snapshot to a subprocess.
const StateEnv = "CANONPROOF_RNG_STATE"

// Func is a measurement. It must draw all randomness from rng.
type Func func(ctx context.Context, rng *rand.Rand) (Record, error)

// Executor runs a measurement once from a snapshot.
type Executor interface {
	Mode() string
	Execute(ctx context.Context, snap Snapshot) (Record, error)
}

// InProcess runs Fn in the calling process. It is fast but shares process
// memory, so hidden global state can make two runs look alike or differ.
type InProcess struct {
	Fn     Func
	NewRNG func() RNG
}

func (InProcess) Mode() string { return "in_process" }

func (e InProcess) Execute(ctx context.Context, snap Snapshot) (Record, error) {
	if e.Fn == nil {
		return nil, errors.New("replay: InProcess.Fn is nil")
	}
	src, err := restore(snap, e.NewRNG)
	if err != nil {
		return nil, err
	}
	return e.Fn(ctx, rand.New(src))
}

func restore(snap Snapshot, newRNG func() RNG) (RNG, error) {
	if newRNG == nil {
		newRNG = NewChaCha8
	}
	src := newRNG()
	if err := snap.Restore(src); err != nil {
		return nil, err
	}
	return src, nil
}

// Subprocess re-executes a program for every run, which catches state that
// leaks between runs inside one process. The program must call
// ServeSubprocess and print nothing else on stdout.
type Subprocess struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
}

func (Subprocess) Mode() string { return "subprocess" }

func (e Subprocess) Execute(ctx context.Context, snap Snapshot) (Record, error) {
	if e.Path == "" {
		return nil, errors.New("replay: Subprocess.Path is empty")
	}
	enc, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Env = append(append(os.Environ(), e.Env...), StateEnv+"="+base64.StdEncoding.EncodeToString(enc))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("replay: subprocess %s: %w: %s", e.Path, err, strings.TrimSpace(stderr.String()))
	}
	return decodeRecord(stdout.Bytes())
}

func decodeRecord(b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("replay: decode subprocess record: %w", err)
	}
	if r == nil {
		return nil, errors.New("replay: subprocess returned null record")
	}
	return r, nil
}

// ServeSubprocess is the child side of Subprocess: it restores the snapshot
// from the environment, runs fn and writes the record to w as JSON.
func ServeSubprocess(ctx context.Context, fn Func, newRNG func() RNG, w io.Writer) error {
	raw := os.Getenv(StateEnv)
	if raw == "" {
		return fmt.Errorf("replay: %s is not set", StateEnv)
	}
	enc, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("replay: %s: %w", StateEnv, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(enc, &snap); err != nil {
		return fmt.Errorf("replay: %s: %w", StateEnv, err)
	}
	src, err := restore(snap, newRNG)
	if err != nil {
		return err
	}
	rec, err := fn(ctx, rand.New(src))
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(rec)
}
