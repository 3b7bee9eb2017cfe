package cert

import (
	"fmt"
	"sort"

	"xdao.co/canonproof/hashfmt"
	"xdao.co/canonproof/sign"
)

// Input is what a caller supplies to build a certificate. All hashes use the
// strict "sha256:<hex>" form.
type Input struct {
	Kind       string
	Domain     string
	TargetHash string
	PolicyHash string
	// ClosureHash may be left empty when Closure is given.
	ClosureHash string
	Closure     []ArtifactRef
	// EvidenceHashes keeps the caller's order.
	EvidenceHashes []string
	PinnedInputs   map[string]string
	SuiteResults   []SuiteResult
	// Anchors are extra reproducibility anchors. AnchorCodecVector is always
	// set by the builder and cannot be overridden.
	Anchors map[string]string
}

// Builder assembles certificates. Signer decides whether they are signed.
type Builder struct {
	Signer sign.Signer
}

// Build validates in, computes the identity and signs the payload.
//
// An empty Domain or TargetHash fails immediately with ErrMissingDomain or
// ErrMissingTarget.
func (b Builder) Build(in Input) (Certificate, error) {
	p, err := payloadFrom(in)
	if err != nil {
		return Certificate{}, err
	}
	id, err := ComputeID(p)
	if err != nil {
		return Certificate{}, err
	}
	s := b.Signer
	s.Contract = IDContract
	block, err := s.Sign(p)
	if err != nil {
		return Certificate{}, err
	}
	return Certificate{ID: id, Payload: p, Signature: &block}, nil
}

func payloadFrom(in Input) (Payload, error) {
	if in.Domain == "" {
		return Payload{}, ErrMissingDomain
	}
	if in.TargetHash == "" {
		return Payload{}, ErrMissingTarget
	}
	if err := hashfmt.ValidatePrefixed(in.TargetHash); err != nil {
		return Payload{}, fmt.Errorf("target_hash: %w", err)
	}
	if err := hashfmt.ValidatePrefixed(in.PolicyHash); err != nil {
		return Payload{}, fmt.Errorf("policy_hash: %w", err)
	}

	closure := in.ClosureHash
	if len(in.Closure) > 0 {
		computed, err := ClosureHash(in.Closure)
		if err != nil {
			return Payload{}, err
		}
		if closure != "" && closure != computed {
			return Payload{}, fmt.Errorf("%w: closure_hash does not match closure", ErrInvalidInput)
		}
		closure = computed
	}
	if err := hashfmt.ValidatePrefixed(closure); err != nil {
		return Payload{}, fmt.Errorf("closure_hash: %w", err)
	}

	evidence := append([]string{}, in.EvidenceHashes...)
	for i, e := range evidence {
		if err := hashfmt.ValidatePrefixed(e); err != nil {
			return Payload{}, fmt.Errorf("evidence_hashes[%d]: %w", i, err)
		}
	}

	suites := append([]SuiteResult{}, in.SuiteResults...)
	sort.Slice(suites, func(i, j int) bool { return suites[i].Name < suites[j].Name })
	for i, r := range suites {
		if err := checkSuite(r); err != nil {
			return Payload{}, err
		}
		if i > 0 && suites[i-1].Name == r.Name {
			return Payload{}, fmt.Errorf("%w: duplicate suite %q", ErrInvalidInput, r.Name)
		}
	}

	kind := in.Kind
	if kind == "" {
		kind = DefaultKind
	}
	return Payload{
		SchemaVersion:  SchemaVersion,
		Kind:           kind,
		Domain:         in.Domain,
		TargetHash:     in.TargetHash,
		PolicyHash:     in.PolicyHash,
		ClosureHash:    closure,
		EvidenceHashes: evidence,
		PinnedInputs:   copyMap(in.PinnedInputs),
		SuiteResults:   suites,
		Summary:        summarize(suites),
		Anchors:        anchorsWithCodec(in.Anchors),
	}, nil
}

func checkSuite(r SuiteResult) error {
	if r.Name == "" {
		return fmt.Errorf("%w: suite with empty name", ErrInvalidInput)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: suite %q has unknown status %q", ErrInvalidInput, r.Name, r.Status)
	}
	if r.Status == SuiteNotMeasured {
		if r.ResultHash != "" {
			return fmt.Errorf("%w: suite %q is NOT_MEASURED but has a result hash", ErrInvalidInput, r.Name)
		}
		return nil
	}
	if err := hashfmt.ValidatePrefixed(r.ResultHash); err != nil {
		return fmt.Errorf("suite %q result_hash: %w", r.Name, err)
	}
	return nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
