package keys

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKeyStoreRootAndRole(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}
	seed := testSeed(9)
	root, err := ks.InitializeRootKey("alice", AlgEd25519, seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	info, err := os.Stat(root.Path)
	if err != nil {
		t.Fatalf("stat root key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("root key permissions: %v", info.Mode().Perm())
	}
	if _, err := ks.InitializeRootKey("alice", AlgEd25519, seed, false); err == nil {
		t.Fatalf("expected refusal to overwrite root key")
	}

	exported, err := ks.ExportKey("alice", "", "")
	if err != nil || exported != root.PublicKey {
		t.Fatalf("ExportKey: %q %v (want %q)", exported, err, root.PublicKey)
	}

	role, err := ks.DeriveKeyFromRole("alice", "certifier", false)
	if err != nil {
		t.Fatalf("DeriveKeyFromRole: %v", err)
	}
	if role.PublicKey == root.PublicKey {
		t.Fatalf("role key equals root key")
	}
	if filepath.Base(role.Path) != "certifier.key" || role.Algorithm != AlgEd25519 {
		t.Fatalf("unexpected role key %+v", role)
	}

	entries, err := ks.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "alice" || entries[0].PublicKey != root.PublicKey ||
		len(entries[0].Roles) != 1 || entries[0].Roles[0].Role != "certifier" || entries[0].Roles[0].PublicKey != role.PublicKey {
		t.Fatalf("ListKeys: %+v", entries)
	}

	k, err := ks.Provider("alice", "certifier", "").SigningKey()
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if EncodePublicKey(k) != role.PublicKey {
		t.Fatalf("provider key does not match derived role key")
	}
}

func TestSeedRecordIsCanonicalJSON(t *testing.T) {
	ks, _ := CreateKeyStore(t.TempDir())
	k, err := ks.InitializeRootKey("bob", AlgDilithium3, testSeed(4), false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	data, err := os.ReadFile(k.Path)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	want := `{"algorithm":"dilithium3","seed":"` + hex.EncodeToString(testSeed(4)) + `"}` + "\n"
	if string(data) != want {
		t.Fatalf("record = %q, want %q", data, want)
	}
	role, err := ks.DeriveKeyFromRole("bob", "release", false)
	if err != nil {
		t.Fatalf("DeriveKeyFromRole: %v", err)
	}
	data, _ = os.ReadFile(role.Path)
	if !strings.Contains(string(data), `"role":"release"`) || !strings.Contains(string(data), `"root":"bob"`) {
		t.Fatalf("role record = %s", data)
	}
}

func TestPinnedAlgorithm(t *testing.T) {
	ks, _ := CreateKeyStore(t.TempDir())
	root, err := ks.InitializeRootKey("carol", AlgDilithium3, testSeed(5), false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	if !strings.HasPrefix(root.PublicKey, AlgDilithium3+":") {
		t.Fatalf("public key %q not dilithium3", root.PublicKey)
	}
	role, err := ks.DeriveKeyFromRole("carol", "ops", false)
	if err != nil {
		t.Fatalf("DeriveKeyFromRole: %v", err)
	}
	if role.Algorithm != AlgDilithium3 {
		t.Fatalf("role key did not inherit the pin: %+v", role)
	}
	k, err := ks.Provider("carol", "ops", "").SigningKey()
	if err != nil || k.Algorithm() != AlgDilithium3 {
		t.Fatalf("Provider: %v %v", k, err)
	}
	if _, err := ks.ExportKey("carol", "", AlgEd25519); !errors.Is(err, ErrAlgorithmMismatch) {
		t.Fatalf("expected ErrAlgorithmMismatch, got %v", err)
	}
	if _, err := ks.Provider("carol", "ops", AlgEd25519).SigningKey(); !errors.Is(err, ErrAlgorithmMismatch) {
		t.Fatalf("expected ErrAlgorithmMismatch from provider, got %v", err)
	}
	if _, err := ks.InitializeRootKey("dave", "rsa", testSeed(6), false); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
}

func TestBareHexSeedFilesAreUnpinned(t *testing.T) {
	dir := t.TempDir()
	ks, _ := CreateKeyStore(dir)
	seed := testSeed(7)
	path := filepath.Join(dir, "erin", "root.key")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ed, err := ks.ExportKey("erin", "", "")
	if err != nil || !strings.HasPrefix(ed, AlgEd25519+":") {
		t.Fatalf("default export: %q %v", ed, err)
	}
	dil, err := ks.ExportKey("erin", "", AlgDilithium3)
	if err != nil || !strings.HasPrefix(dil, AlgDilithium3+":") {
		t.Fatalf("dilithium3 export: %q %v", dil, err)
	}
	entries, err := ks.ListKeys()
	if err != nil || len(entries) != 1 || entries[0].Algorithm != "" || entries[0].PublicKey != ed {
		t.Fatalf("ListKeys: %+v %v", entries, err)
	}
}

func TestResolveSources(t *testing.T) {
	dir := t.TempDir()
	ks, _ := CreateKeyStore(dir)
	seed := testSeed(3)
	want, _ := KeyFromSeed(AlgEd25519, seed)

	got, err := ks.Resolve(SeedSource{Hex: "0x" + hex.EncodeToString(seed)})
	if err != nil || EncodePublicKey(got) != EncodePublicKey(want) {
		t.Fatalf("Resolve hex: %v", err)
	}

	file := filepath.Join(dir, "seed.hex")
	if err := os.WriteFile(file, []byte(hex.EncodeToString(seed)), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = ks.Resolve(SeedSource{File: file, Algorithm: AlgDilithium3})
	if err != nil || got.Algorithm() != AlgDilithium3 {
		t.Fatalf("Resolve file: %v", err)
	}

	if _, err := ks.Resolve(SeedSource{}); err == nil {
		t.Fatalf("expected error with no signer")
	}
	if _, err := ks.Resolve(SeedSource{Name: "bad/name"}); err == nil {
		t.Fatalf("expected invalid name error")
	}
	if _, err := ks.Resolve(SeedSource{Name: "ghost"}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
