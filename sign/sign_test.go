package sign

import (
	"bytes"
	"encoding/base64"
	"errors"
	"math"
	"testing"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/keys"
)

func ed25519Signer(t *testing.T) Signer {
	t.Helper()
	k, err := keys.NewEd25519FromSeed(bytes.Repeat([]byte{5}, 32))
	if err != nil {
		t.Fatalf("NewEd25519FromSeed: %v", err)
	}
	return Signer{Keys: keys.Static(k)}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := map[string]any{"policy_hash": "sha256:00", "evidence": []any{"a", "b"}}
	block, err := ed25519Signer(t).Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if block.Algorithm != keys.AlgEd25519 || block.SignatureB64 == "" || block.PublicKeyB64 == "" {
		t.Fatalf("unexpected block %+v", block)
	}
	want, _ := canon.ComputeContentHash(payload, canon.Governance, "")
	if block.PayloadHash != want.String() {
		t.Fatalf("payload hash: got %s want %s", block.PayloadHash, want)
	}
	var v Verifier
	if !v.Verify(payload, block) {
		t.Fatalf("signature did not verify")
	}
	if got := v.Status(payload, block); got != StatusSignedValid {
		t.Fatalf("Status: %s", got)
	}
}

func TestMutatedPayloadFailsVerification(t *testing.T) {
	s := ed25519Signer(t)
	payload := map[string]any{"n": 1, "s": "abc"}
	block, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	canonical, _ := canon.Encode(payload, canon.Governance)
	var v Verifier
	for i := range canonical {
		mutated := append([]byte(nil), canonical...)
		mutated[i] ^= 0x01
		if v.StatusCanonical(mutated, block) == StatusSignedValid {
			t.Fatalf("mutation at byte %d still verifies", i)
		}
	}
	if v.Verify(map[string]any{"n": 2, "s": "abc"}, block) {
		t.Fatalf("different payload verified")
	}
}

func TestTamperedSignatureIsInvalid(t *testing.T) {
	payload := map[string]any{"x": 1}
	block, _ := ed25519Signer(t).Sign(payload)
	sig, _ := base64.StdEncoding.DecodeString(block.SignatureB64)
	sig[0] ^= 0xff
	block.SignatureB64 = base64.StdEncoding.EncodeToString(sig)
	if got := (Verifier{}).Status(payload, block); got != StatusSignedInvalid {
		t.Fatalf("Status: %s", got)
	}
}

func TestDilithium3Signer(t *testing.T) {
	k, err := keys.NewDilithium3FromSeed(bytes.Repeat([]byte{8}, 32))
	if err != nil {
		t.Fatalf("NewDilithium3FromSeed: %v", err)
	}
	s := Signer{Keys: keys.Static(k), Contract: canon.Proofs}
	payload := map[string]any{"name": "José"}
	block, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	v := Verifier{Contract: canon.Proofs}
	if !v.Verify(payload, block) {
		t.Fatalf("dilithium3 signature did not verify")
	}
	if (Verifier{Contract: canon.Governance}).Verify(payload, block) {
		t.Fatalf("signature verified under a different contract")
	}
}

func TestUnsignedBlock(t *testing.T) {
	payload := map[string]any{"x": 1}
	for _, s := range []Signer{{}, {Keys: keys.Static(nil)}} {
		block, err := s.Sign(payload)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if !block.IsUnsigned() || block.SignatureB64 != "" || block.PayloadHash == "" {
			t.Fatalf("unexpected unsigned block %+v", block)
		}
		var v Verifier
		if v.Verify(payload, block) {
			t.Fatalf("unsigned block must not verify")
		}
		if got := v.Status(payload, block); got != StatusUnsigned {
			t.Fatalf("Status: %s", got)
		}
		if got := v.Status(map[string]any{"x": 2}, block); got != StatusMalformed {
			t.Fatalf("mismatched unsigned Status: %s", got)
		}
	}
}

func TestProviderErrorsPropagate(t *testing.T) {
	boom := errors.New("hsm offline")
	s := Signer{Keys: keys.ProviderFunc(func() (keys.Key, error) { return nil, boom })}
	if _, err := s.Sign(map[string]any{}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestMalformedBlocksNeverPanic(t *testing.T) {
	payload := map[string]any{"x": 1}
	good, _ := ed25519Signer(t).Sign(payload)
	cases := []SignatureBlock{
		{},
		{Algorithm: "rsa", PayloadHash: good.PayloadHash, SignatureB64: good.SignatureB64, PublicKeyB64: good.PublicKeyB64},
		{Algorithm: keys.AlgEd25519, PayloadHash: good.PayloadHash, SignatureB64: "!!!", PublicKeyB64: good.PublicKeyB64},
		{Algorithm: keys.AlgEd25519, PayloadHash: good.PayloadHash, SignatureB64: good.SignatureB64, PublicKeyB64: "AAAA"},
		{Algorithm: AlgNone, PayloadHash: good.PayloadHash, SignatureB64: good.SignatureB64},
	}
	var v Verifier
	for i, b := range cases {
		if v.Verify(payload, b) {
			t.Fatalf("case %d verified", i)
		}
	}
	if got := v.Status(map[string]any{"f": math.NaN()}, good); got != StatusMalformed {
		t.Fatalf("non-canonical payload Status: %s", got)
	}
}
