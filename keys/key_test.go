package keys

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func testSeed(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestEd25519SignVerify(t *testing.T) {
	k, err := NewEd25519FromSeed(testSeed(1))
	if err != nil {
		t.Fatalf("NewEd25519FromSeed: %v", err)
	}
	msg := []byte(`{"a":1}`)
	sig, err := k.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(AlgEd25519, k.PublicKey(), msg, sig) {
		t.Fatalf("signature did not verify")
	}
	if Verify(AlgEd25519, k.PublicKey(), []byte(`{"a":2}`), sig) {
		t.Fatalf("signature verified over different message")
	}
}

func TestDilithium3SignVerify(t *testing.T) {
	k, err := GenerateDilithium3(&deterministicReader{})
	if err != nil {
		t.Fatalf("GenerateDilithium3: %v", err)
	}
	msg := []byte("hello")
	sig, err := k.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != mode3.SignatureSize {
		t.Fatalf("unexpected signature size: got %d want %d", len(sig), mode3.SignatureSize)
	}
	if !Verify(AlgDilithium3, k.PublicKey(), msg, sig) {
		t.Fatalf("signature did not verify")
	}

	a, err := NewDilithium3FromSeed(testSeed(7))
	if err != nil {
		t.Fatalf("NewDilithium3FromSeed: %v", err)
	}
	b, _ := NewDilithium3FromSeed(testSeed(7))
	if !bytes.Equal(a.PublicKey(), b.PublicKey()) {
		t.Fatalf("seeded dilithium3 keys differ")
	}
}

func TestVerifyNeverPanics(t *testing.T) {
	cases := []struct {
		alg           string
		pub, msg, sig []byte
	}{
		{AlgEd25519, nil, nil, nil},
		{AlgEd25519, []byte("short"), []byte("m"), []byte("s")},
		{AlgDilithium3, []byte("short"), []byte("m"), make([]byte, mode3.SignatureSize)},
		{"rsa", make([]byte, 32), []byte("m"), make([]byte, 64)},
	}
	for _, tc := range cases {
		if Verify(tc.alg, tc.pub, tc.msg, tc.sig) {
			t.Fatalf("Verify(%s) accepted malformed input", tc.alg)
		}
	}
}

func TestStaticProvider(t *testing.T) {
	if _, err := Static(nil).SigningKey(); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
	k, _ := NewEd25519FromSeed(testSeed(2))
	got, err := Static(k).SigningKey()
	if err != nil || got != Key(k) {
		t.Fatalf("Static provider returned %v %v", got, err)
	}
	if _, err := KeyFromSeed("rsa", testSeed(1)); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
}
