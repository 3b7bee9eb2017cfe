package versioned

import (
	"crypto/sha256"
	"errors"
	"sync"
	"testing"

	"xdao.co/canonproof/hashfmt"
)

const (
	nameTestHex  = "7d9fd2051fc32b32feab10946fab6bb91426ab7e39aa5439289ed892864aa91d"
	chainedV2Hex = "f8a312b0f995f9ed99d480f22032611e1d8965de2bf3c1492e7de5a338ee559f"
	v3Hex        = "6860e1c7203ec5a2db29c9261017e65c77c446a7143ed91e02e8b0718031eb1a"
	chainedV3Hex = "b0e2c825e8f84b1a2f07c0e8e3fe6f805fdd6c41ac9eb6a1c46f73a03fe0bec8"
)

func newHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestHashVectors(t *testing.T) {
	h := newHasher(t, Config{})
	content := map[string]any{"name": "test"}

	got, err := h.Hash(content)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if got != "v2:sha256:"+nameTestHex {
		t.Fatalf("Hash: got %s", got)
	}
	v1, _ := h.HashWithVersion(content, "v1")
	if v1 != "v1:sha256:"+nameTestHex {
		t.Fatalf("v1: got %s", v1)
	}
	v3, _ := h.HashWithVersion(content, "v3")
	if v3 != "v3:sha3-256:"+v3Hex {
		t.Fatalf("v3: got %s", v3)
	}
	c2, err := h.HashChained(content, "v2", "sha256:"+nameTestHex)
	if err != nil {
		t.Fatalf("HashChained v2: %v", err)
	}
	if c2 != "v2:sha256:"+chainedV2Hex {
		t.Fatalf("chained v2: got %s", c2)
	}
	c3, err := h.HashChained(content, "v3", "v1:sha256:"+nameTestHex)
	if err != nil {
		t.Fatalf("HashChained v3: %v", err)
	}
	if c3 != "v3:sha3-256:"+chainedV3Hex {
		t.Fatalf("chained v3: got %s", c3)
	}
}

func TestVerifyAcrossVersions(t *testing.T) {
	h := newHasher(t, Config{Current: "v3"})
	content := map[string]any{"name": "test"}
	for _, stored := range []string{
		"v1:sha256:" + nameTestHex,
		"v2:sha256:" + nameTestHex,
		"v3:sha3-256:" + v3Hex,
		"sha256:" + nameTestHex,
		nameTestHex,
	} {
		ok, err := h.Verify(content, stored)
		if err != nil {
			t.Fatalf("Verify(%s): %v", stored, err)
		}
		if !ok {
			t.Fatalf("Verify(%s): mismatch", stored)
		}
	}
	ok, err := h.Verify(map[string]any{"name": "other"}, "v2:sha256:"+nameTestHex)
	if err != nil || ok {
		t.Fatalf("tampered content verified: %v %v", ok, err)
	}
	ok, err = h.VerifyChained(content, "v2:sha256:"+chainedV2Hex, nameTestHex)
	if err != nil || !ok {
		t.Fatalf("VerifyChained: %v %v", ok, err)
	}
}

func TestUntaggedDefaultsToOldest(t *testing.T) {
	h := newHasher(t, Config{})
	tg, err := h.Parse("sha256:" + nameTestHex)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tg.Version != "v1" || !tg.Untagged {
		t.Fatalf("expected untagged v1, got %+v", tg)
	}
}

func TestMalformedTags(t *testing.T) {
	h := newHasher(t, Config{})
	content := map[string]any{"name": "test"}
	cases := []string{
		"V2:sha256:" + nameTestHex,
		"2:sha256:" + nameTestHex,
		"v2:sha256:sha256:" + nameTestHex,
		"v2:SHA256:" + nameTestHex,
		"v2:sha3-256:" + nameTestHex,
		"v2:sha256:" + nameTestHex[:60],
	}
	for _, stored := range cases {
		if _, err := h.Verify(content, stored); !hashfmt.IsFormatError(err) {
			t.Fatalf("Verify(%q): expected format error, got %v", stored, err)
		}
	}
	if _, err := h.Verify(content, "v9:sha256:"+nameTestHex); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestChainingUnsupportedOnV1(t *testing.T) {
	h := newHasher(t, Config{})
	_, err := h.HashChained(map[string]any{"a": 1}, "v1", nameTestHex)
	if !errors.Is(err, ErrChainingUnsupported) {
		t.Fatalf("expected ErrChainingUnsupported, got %v", err)
	}
}

func TestRegistryIsAdditive(t *testing.T) {
	r := StandardRegistry()
	err := r.Register(Scheme{Version: "v1", Algorithm: "sha256", New: sha256.New})
	if !errors.Is(err, ErrVersionExists) {
		t.Fatalf("expected ErrVersionExists, got %v", err)
	}
	if err := r.Register(Scheme{Version: "v4", Algorithm: "sha256", Chaining: true, New: sha256.New}); err != nil {
		t.Fatalf("Register v4: %v", err)
	}
	if got := r.Versions(); len(got) != 4 || got[0] != "v1" || got[3] != "v4" {
		t.Fatalf("Versions: %v", got)
	}
	if err := r.Register(Scheme{Version: "latest", Algorithm: "sha256", New: sha256.New}); !errors.Is(err, ErrInvalidScheme) {
		t.Fatalf("expected ErrInvalidScheme, got %v", err)
	}
	if _, err := New(Config{Current: "v7"}); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion for unknown current, got %v", err)
	}
}

func TestIndependentHashersConcurrently(t *testing.T) {
	a := newHasher(t, Config{Current: "v1"})
	b := newHasher(t, Config{Current: "v3"})
	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if got, _ := a.Hash(map[string]any{"name": "test"}); got != "v1:sha256:"+nameTestHex {
				errs <- errors.New("hasher a cross-contaminated: " + got)
			}
		}()
		go func() {
			defer wg.Done()
			if got, _ := b.Hash(map[string]any{"name": "test"}); got != "v3:sha3-256:"+v3Hex {
				errs <- errors.New("hasher b cross-contaminated: " + got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
