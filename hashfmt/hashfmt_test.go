package hashfmt

import (
	"strings"
	"testing"
)

const hex64 = "7d9fd2051fc32b32feab10946fab6bb91426ab7e39aa5439289ed892864aa91d"

func TestValidatePrefixed(t *testing.T) {
	cases := []struct {
		in   string
		rule string
	}{
		{"sha256:" + hex64, ""},
		{hex64, "HASH-FMT-004"},
		{"sha256:sha256:" + hex64, "HASH-FMT-003"},
		{"SHA256:" + hex64, "HASH-FMT-007"},
		{"Sha256:" + hex64, "HASH-FMT-007"},
		{"sha256:" + strings.ToUpper(hex64), "HASH-FMT-002"},
		{"sha256:" + hex64[:63], "HASH-FMT-001"},
		{"sha256:" + hex64 + "0", "HASH-FMT-001"},
		{"sha256:" + hex64[:63] + "g", "HASH-FMT-005"},
		{"md5:" + hex64, "HASH-FMT-004"},
		{"", "HASH-FMT-004"},
	}
	for _, tc := range cases {
		err := ValidatePrefixed(tc.in)
		if tc.rule == "" {
			if err != nil {
				t.Fatalf("ValidatePrefixed(%q): %v", tc.in, err)
			}
			continue
		}
		if !IsFormatError(err) {
			t.Fatalf("ValidatePrefixed(%q): expected format error, got %v", tc.in, err)
		}
		if got := RuleID(err); got != tc.rule {
			t.Fatalf("ValidatePrefixed(%q): rule %q want %q", tc.in, got, tc.rule)
		}
	}
}

func TestValidateBare(t *testing.T) {
	if err := ValidateBare(hex64); err != nil {
		t.Fatalf("ValidateBare: %v", err)
	}
	for _, in := range []string{"sha256:" + hex64, strings.ToUpper(hex64), hex64[:10], " " + hex64} {
		if err := ValidateBare(in); !IsFormatError(err) {
			t.Fatalf("ValidateBare(%q): expected format error, got %v", in, err)
		}
	}
}

func TestNormalizersIdempotent(t *testing.T) {
	inputs := []string{
		hex64,
		"sha256:" + hex64,
		"  SHA256:" + strings.ToUpper(hex64) + "\n",
		strings.ToUpper(hex64),
	}
	for _, in := range inputs {
		p, err := NormalizePrefixed(in)
		if err != nil {
			t.Fatalf("NormalizePrefixed(%q): %v", in, err)
		}
		if p != "sha256:"+hex64 {
			t.Fatalf("NormalizePrefixed(%q) = %q", in, p)
		}
		pp, err := NormalizePrefixed(p)
		if err != nil || pp != p {
			t.Fatalf("NormalizePrefixed not idempotent: %q -> %q (%v)", p, pp, err)
		}
		if err := ValidatePrefixed(p); err != nil {
			t.Fatalf("normalized output fails strict tier: %v", err)
		}

		b, err := NormalizeBare(in)
		if err != nil {
			t.Fatalf("NormalizeBare(%q): %v", in, err)
		}
		bb, err := NormalizeBare(b)
		if err != nil || bb != b || b != hex64 {
			t.Fatalf("NormalizeBare not idempotent: %q -> %q (%v)", b, bb, err)
		}
	}
}

func TestNormalizeRejectsDoublePrefix(t *testing.T) {
	for _, in := range []string{"sha256:sha256:" + hex64, "SHA256:sha256:" + hex64} {
		if _, err := NormalizePrefixed(in); RuleID(err) != "HASH-FMT-003" {
			t.Fatalf("NormalizePrefixed(%q): expected double prefix error, got %v", in, err)
		}
	}
	if _, err := NormalizeBare("xyz"); !IsFormatError(err) {
		t.Fatalf("expected format error")
	}
}

func TestSplit(t *testing.T) {
	alg, h, err := Split("sha256:" + hex64)
	if err != nil || alg != "sha256" || h != hex64 {
		t.Fatalf("Split: %q %q %v", alg, h, err)
	}
	alg, h, err = Split("sha3-256:" + hex64)
	if err != nil || alg != "sha3-256" || h != hex64 {
		t.Fatalf("Split sha3: %q %q %v", alg, h, err)
	}
	for _, in := range []string{hex64, "SHA256:" + hex64, "sha256:sha256:" + hex64, ":" + hex64} {
		if _, _, err := Split(in); !IsFormatError(err) {
			t.Fatalf("Split(%q): expected format error, got %v", in, err)
		}
	}
}
