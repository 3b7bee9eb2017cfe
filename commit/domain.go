package commit

import "fmt"

// Domain is the closed set of artifact kinds that can be committed to.
//
// Each value has a fixed literal mixed into the hash input so identical
// payloads of different kinds never share a commitment. Literals MUST NOT
// change once published; new kinds get new values.
type Domain uint8

const (
	DomainCertificate Domain = iota + 1
	DomainProvenanceChain
	DomainArtifactClosure
	DomainBundleManifest
	DomainRevocationSnapshot
	DomainReplayState
	DomainSuiteResult
	DomainEpisode
	DomainOperator
	DomainPolicy
)

var domainLiterals = map[Domain]string{
	DomainCertificate:        "CANONPROOF::CERTIFICATE::V1",
	DomainProvenanceChain:    "CANONPROOF::PROVENANCE_CHAIN::V1",
	DomainArtifactClosure:    "CANONPROOF::ARTIFACT_CLOSURE::V1",
	DomainBundleManifest:     "CANONPROOF::BUNDLE_MANIFEST::V1",
	DomainRevocationSnapshot: "CANONPROOF::REVOCATION_SNAPSHOT::V1",
	DomainReplayState:        "CANONPROOF::REPLAY_STATE::V1",
	DomainSuiteResult:        "CANONPROOF::SUITE_RESULT::V1",
	DomainEpisode:            "CANONPROOF::EPISODE::V1",
	DomainOperator:           "CANONPROOF::OPERATOR::V1",
	DomainPolicy:             "CANONPROOF::POLICY::V1",
}

// Domains returns every domain in declaration order.
func Domains() []Domain {
	out := make([]Domain, 0, len(domainLiterals))
	for d := DomainCertificate; d <= DomainPolicy; d++ {
		out = append(out, d)
	}
	return out
}

// Literal returns the exact bytes prefixed to commitment input (without the "|" separator).
func (d Domain) Literal() (string, bool) {
	l, ok := domainLiterals[d]
	return l, ok
}

func (d Domain) Valid() bool {
	_, ok := domainLiterals[d]
	return ok
}

func (d Domain) String() string {
	if l, ok := domainLiterals[d]; ok {
		return l
	}
	return fmt.Sprintf("Domain(%d)", uint8(d))
}

// ParseDomain resolves a domain from its literal.
func ParseDomain(literal string) (Domain, error) {
	for d, l := range domainLiterals {
		if l == literal {
			return d, nil
		}
	}
	return 0, fmt.Errorf("commit: unknown domain %q", literal)
}
