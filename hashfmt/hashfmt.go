// Package hashfmt validates and rewrites SHA-256 hash strings.
//
// Two tiers exist. Strict validators (Validate*) accept exactly one form and
// are used wherever a hash defines identity. Permissive normalizers
// (Normalize*) coerce near-miss input into one canonical shape and are for
// ingestion and reporting only; never compare identities through them.
package hashfmt

import (
	"strings"
)

const (
	// Prefix is the only algorithm prefix accepted by the strict tier.
	Prefix = "sha256:"
	// HexLen is the length of a hex-encoded SHA-256 digest.
	HexLen = 64
)

// ValidatePrefixed requires exactly "sha256:" followed by 64 lowercase hex characters.
func ValidatePrefixed(s string) error {
	if !strings.HasPrefix(s, Prefix) {
		if len(s) >= len(Prefix) && strings.EqualFold(s[:len(Prefix)], Prefix) {
			return formatError("HASH-FMT-007", "hash prefix must be lowercase \"sha256:\"", s)
		}
		if isHex(s) {
			return formatError("HASH-FMT-004", "bare hex where a \"sha256:\" prefix is required", s)
		}
		return formatError("HASH-FMT-004", "missing \"sha256:\" prefix", s)
	}
	return validateHex(s[len(Prefix):], s)
}

// ValidateBare requires exactly 64 lowercase hex characters and no prefix.
func ValidateBare(s string) error {
	if strings.Contains(s, ":") {
		return formatError("HASH-FMT-006", "unexpected algorithm prefix on bare hash", s)
	}
	return validateHex(s, s)
}

func validateHex(h, input string) error {
	if hasFoldPrefix(h, Prefix) {
		return formatError("HASH-FMT-003", "double \"sha256:\" prefix", input)
	}
	if len(h) != HexLen {
		return formatError("HASH-FMT-001", "hash must be exactly 64 hex characters", input)
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
			return formatError("HASH-FMT-002", "hash hex must be lowercase", input)
		default:
			return formatError("HASH-FMT-005", "hash contains non-hex characters", input)
		}
	}
	return nil
}

// NormalizePrefixed accepts prefixed or bare hex in any case, with
// surrounding whitespace, and returns "sha256:<lowercase hex>".
//
// Double prefixes are still rejected: they indicate a composition bug upstream,
// not a formatting accident.
func NormalizePrefixed(s string) (string, error) {
	h, err := normalizeHex(s)
	if err != nil {
		return "", err
	}
	return Prefix + h, nil
}

// NormalizeBare is NormalizePrefixed without the prefix.
func NormalizeBare(s string) (string, error) {
	return normalizeHex(s)
}

func normalizeHex(s string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.TrimPrefix(t, Prefix)
	if err := validateHex(t, s); err != nil {
		return "", err
	}
	return t, nil
}

// Split breaks a strict "<algorithm>:<hex>" string into its parts.
//
// The algorithm tag must be lowercase letters, digits or '-'; the hex part must
// be 64 lowercase hex characters.
func Split(s string) (alg, hex string, err error) {
	alg, hex, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", formatError("HASH-FMT-004", "missing algorithm prefix", s)
	}
	if alg == "" || !validAlg(alg) {
		return "", "", formatError("HASH-FMT-007", "algorithm tag must be lowercase alphanumeric", s)
	}
	if strings.Contains(hex, ":") {
		return "", "", formatError("HASH-FMT-003", "double algorithm prefix", s)
	}
	if err := validateHex(hex, s); err != nil {
		return "", "", err
	}
	return alg, hex, nil
}

// IsPrefixed reports whether s passes ValidatePrefixed.
func IsPrefixed(s string) bool { return ValidatePrefixed(s) == nil }

// IsBare reports whether s passes ValidateBare.
func IsBare(s string) bool { return ValidateBare(s) == nil }

func validAlg(a string) bool {
	for i := 0; i < len(a); i++ {
		c := a[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	if len(s) != HexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
