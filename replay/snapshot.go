// Package replay proves that a measurement is deterministic by running it
// twice from the same captured RNG state and comparing its claim fields.
//
// The package owns RNG-state hashing and the claim/observation partition.
// Running the measurement is delegated to an Executor.
package replay

import (
	"encoding"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"

	"xdao.co/canonproof/commit"
)

// RNG is a random source whose full state can be serialized.
// *rand.ChaCha8 and *rand.PCG from math/rand/v2 satisfy it.
type RNG interface {
	rand.Source
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// NewChaCha8 is the default RNG constructor used to restore snapshots.
func NewChaCha8() RNG { return new(rand.ChaCha8) }

var ErrSnapshotCorrupt = errors.New("replay: snapshot hash does not match state")

// Snapshot is an opaque, hashable capture of an RNG's state.
type Snapshot struct {
	Algorithm string                `json:"algorithm"`
	State     []byte                `json:"state"`
	Hash      commit.CommitmentHash `json:"hash"`
}

// Capture serializes r without disturbing it.
func Capture(r RNG) (Snapshot, error) {
	state, err := r.MarshalBinary()
	if err != nil {
		return Snapshot{}, fmt.Errorf("replay: capture: %w", err)
	}
	s := Snapshot{Algorithm: fmt.Sprintf("%T", r), State: state}
	h, err := s.computeHash()
	if err != nil {
		return Snapshot{}, err
	}
	s.Hash = h
	return s, nil
}

func (s Snapshot) computeHash() (commit.CommitmentHash, error) {
	return commit.Commit(commit.DomainReplayState, map[string]string{
		"algorithm": s.Algorithm,
		"state":     base64.StdEncoding.EncodeToString(s.State),
	})
}

// Verify checks that State still matches Hash.
func (s Snapshot) Verify() error {
	h, err := s.computeHash()
	if err != nil {
		return err
	}
	if !h.Equal(s.Hash) {
		return ErrSnapshotCorrupt
	}
	return nil
}

// Restore loads the snapshot into r after checking its hash.
func (s Snapshot) Restore(r RNG) error {
	if err := s.Verify(); err != nil {
		return err
	}
	if got := fmt.Sprintf("%T", r); got != s.Algorithm {
		return fmt.Errorf("replay: snapshot of %s cannot restore %s", s.Algorithm, got)
	}
	if err := r.UnmarshalBinary(s.State); err != nil {
		return fmt.Errorf("replay: restore: %w", err)
	}
	return nil
}
