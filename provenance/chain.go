// Package provenance binds an artifact to its lineage: the sketch it came
// from, its parent hypothesis, the delta applied, and the evidence slices
// (each justified by a selection rule) that were consumed to produce it.
//
// chain_hash = commitment(PROVENANCE_CHAIN, every field except chain_hash),
// with evidence bindings sorted ascending by evidence hash first.
package provenance

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"xdao.co/canonproof/commit"
	"xdao.co/canonproof/hashfmt"
)

// GenesisParent is the parent hash of a root chain. An empty parent is
// never valid.
var GenesisParent = hashfmt.Prefix + strings.Repeat("0", hashfmt.HexLen)

var ErrInvalidChain = errors.New("provenance: invalid chain")

// EvidenceBinding pins which semantic slice of a prior artifact was consumed.
type EvidenceBinding struct {
	EvidenceHash      string `json:"evidence_hash"`
	SelectionRuleHash string `json:"selection_rule_hash"`
}

// Input holds the fields of a chain before its hash is computed.
type Input struct {
	SketchHash     string
	ParentHash     string
	DeltaHash      string
	Evidence       []EvidenceBinding
	CertificateRef string
	ClosureHash    string
}

// Chain is an immutable provenance record. Construct it with Build.
type Chain struct {
	SketchHash     string                `json:"sketch_hash"`
	ParentHash     string                `json:"parent_hash"`
	DeltaHash      string                `json:"delta_hash"`
	Evidence       []EvidenceBinding     `json:"evidence"`
	CertificateRef string                `json:"certificate_ref"`
	ClosureHash    string                `json:"closure_hash"`
	ChainHash      commit.CommitmentHash `json:"chain_hash"`
}

// IsGenesis reports whether the chain has no parent.
func (c Chain) IsGenesis() bool { return c.ParentHash == GenesisParent }

// chainFields is the hashed shape. Keeping it separate from Chain means
// chain_hash can never feed into itself.
type chainFields struct {
	SketchHash     string            `json:"sketch_hash"`
	ParentHash     string            `json:"parent_hash"`
	DeltaHash      string            `json:"delta_hash"`
	Evidence       []EvidenceBinding `json:"evidence"`
	CertificateRef string            `json:"certificate_ref"`
	ClosureHash    string            `json:"closure_hash"`
}

// Build validates in, sorts its evidence and computes the chain hash.
// Every hash must be in strict sha256:<hex> form.
func Build(in Input) (Chain, error) {
	c := Chain{
		SketchHash:     in.SketchHash,
		ParentHash:     in.ParentHash,
		DeltaHash:      in.DeltaHash,
		Evidence:       SortEvidence(in.Evidence),
		CertificateRef: in.CertificateRef,
		ClosureHash:    in.ClosureHash,
	}
	if err := validate(c); err != nil {
		return Chain{}, err
	}
	h, err := ComputeChainHash(c)
	if err != nil {
		return Chain{}, err
	}
	c.ChainHash = h
	return c, nil
}

// SortEvidence returns a copy of bs ordered by evidence hash, then by
// selection rule hash.
func SortEvidence(bs []EvidenceBinding) []EvidenceBinding {
	out := append([]EvidenceBinding{}, bs...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].EvidenceHash != out[j].EvidenceHash {
			return out[i].EvidenceHash < out[j].EvidenceHash
		}
		return out[i].SelectionRuleHash < out[j].SelectionRuleHash
	})
	return out
}

// ComputeChainHash recomputes the commitment over c's fields. The stored
// ChainHash is ignored and the evidence order does not matter.
func ComputeChainHash(c Chain) (commit.CommitmentHash, error) {
	return commit.Commit(commit.DomainProvenanceChain, chainFields{
		SketchHash:     c.SketchHash,
		ParentHash:     c.ParentHash,
		DeltaHash:      c.DeltaHash,
		Evidence:       SortEvidence(c.Evidence),
		CertificateRef: c.CertificateRef,
		ClosureHash:    c.ClosureHash,
	})
}

type namedHash struct{ name, value string }

func (c Chain) references() []namedHash {
	refs := []namedHash{
		{"sketch_hash", c.SketchHash},
		{"parent_hash", c.ParentHash},
		{"delta_hash", c.DeltaHash},
	}
	for i, e := range c.Evidence {
		refs = append(refs,
			namedHash{fmt.Sprintf("evidence[%d].evidence_hash", i), e.EvidenceHash},
			namedHash{fmt.Sprintf("evidence[%d].selection_rule_hash", i), e.SelectionRuleHash},
		)
	}
	return append(refs,
		namedHash{"certificate_ref", c.CertificateRef},
		namedHash{"closure_hash", c.ClosureHash},
	)
}

func validate(c Chain) error {
	for _, r := range c.references() {
		if err := hashfmt.ValidatePrefixed(r.value); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidChain, r.name, err)
		}
	}
	for i := 1; i < len(c.Evidence); i++ {
		if c.Evidence[i] == c.Evidence[i-1] {
			return fmt.Errorf("%w: duplicate evidence binding %s", ErrInvalidChain, c.Evidence[i].EvidenceHash)
		}
	}
	return nil
}
