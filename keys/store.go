package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/canonproof/canon"
)

// KeyStore keeps signing seeds on the local filesystem, each pinned to the
// algorithm it was created for.
//
// EXPERIMENTAL: this storage surface is a CLI convenience, not part of the
// signing contract.
//
// Layout:
//
//	<dir>/<name>/root.key         seed record of the root key
//	<dir>/<name>/roles/<role>.key seed record derived with DeriveRoleSeed
//
// A seed record is canonical JSON (governance contract). Files holding a bare
// hex seed are still read; they carry no algorithm pin.
type KeyStore struct {
	Directory string
}

// ErrAlgorithmMismatch is returned when a caller asks for a stored seed under
// a different algorithm than the one it is pinned to.
var ErrAlgorithmMismatch = errors.New("keys: algorithm does not match stored key")

// seedRecord is the on-disk form of one stored seed.
type seedRecord struct {
	Algorithm string `json:"algorithm"`
	Seed      string `json:"seed"`
	Root      string `json:"root,omitempty"`
	Role      string `json:"role,omitempty"`
}

// StoredKey describes one seed in the store without exposing the seed.
type StoredKey struct {
	Name string
	Role string
	// Algorithm is the pin; empty for bare hex seed files.
	Algorithm string
	PublicKey string
	Path      string
}

// KeyEntry is one root key with the role keys derived from it.
type KeyEntry struct {
	StoredKey
	Roles []StoredKey
}

// SeedSource names where signing material comes from. The first non-empty of
// Hex, File and Name wins. Algorithm is the requested algorithm; empty means
// the pinned one, or Ed25519 for unpinned seeds.
type SeedSource struct {
	Hex       string
	File      string
	Name      string
	Role      string
	Algorithm string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".canonproof", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) path(name, role string) string {
	if role == "" {
		return filepath.Join(ks.Directory, name, "root.key")
	}
	return filepath.Join(ks.Directory, name, "roles", role+".key")
}

func checkIdent(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	for _, char := range s {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", char, what)
	}
	return nil
}

func CheckKeyName(name string) error { return checkIdent("identifier", name) }

func CheckRole(role string) error { return checkIdent("role", role) }

func checkRef(name, role string) error {
	if err := CheckKeyName(name); err != nil {
		return err
	}
	if role != "" {
		return CheckRole(role)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func checkAlgorithm(alg string) error {
	switch alg {
	case AlgEd25519, AlgDilithium3:
		return nil
	}
	return fmt.Errorf("keys: unsupported algorithm %q", alg)
}

func (ks *KeyStore) writeRecord(path string, rec seedRecord, overwrite bool) error {
	data, err := canon.Encode(rec, canon.Governance)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return err
	}
	return file.Close()
}

// readRecord loads a seed record or a bare hex seed file.
func readRecord(path string) (seedRecord, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seedRecord{}, nil, err
	}
	text := strings.TrimSpace(string(data))
	if !strings.HasPrefix(text, "{") {
		seed, err := ParseSeedHex(text)
		return seedRecord{Seed: text}, seed, err
	}
	var rec seedRecord
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return seedRecord{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := checkAlgorithm(rec.Algorithm); err != nil {
		return seedRecord{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	seed, err := ParseSeedHex(rec.Seed)
	if err != nil {
		return seedRecord{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, seed, nil
}

// pick settles the algorithm for a record: a request must agree with a pin.
func pick(rec seedRecord, requested string) (string, error) {
	switch {
	case rec.Algorithm == "" && requested == "":
		return AlgEd25519, nil
	case rec.Algorithm == "":
		return requested, checkAlgorithm(requested)
	case requested == "" || requested == rec.Algorithm:
		return rec.Algorithm, nil
	}
	return "", fmt.Errorf("%w: stored %s, requested %s", ErrAlgorithmMismatch, rec.Algorithm, requested)
}

func describe(name, role, path string, rec seedRecord, seed []byte) (StoredKey, error) {
	alg, err := pick(rec, "")
	if err != nil {
		return StoredKey{}, err
	}
	pub, err := publicKeyFromSeed(alg, seed)
	if err != nil {
		return StoredKey{}, err
	}
	return StoredKey{Name: name, Role: role, Algorithm: rec.Algorithm, PublicKey: pub, Path: path}, nil
}

// InitializeRootKey stores seed as the root key of name, pinned to alg.
func (ks *KeyStore) InitializeRootKey(name, alg string, seed []byte, overwrite bool) (StoredKey, error) {
	if err := CheckKeyName(name); err != nil {
		return StoredKey{}, err
	}
	if alg == "" {
		alg = AlgEd25519
	}
	if err := checkAlgorithm(alg); err != nil {
		return StoredKey{}, err
	}
	if len(seed) != ed25519.SeedSize {
		return StoredKey{}, fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	rec := seedRecord{Algorithm: alg, Seed: hex.EncodeToString(seed)}
	path := ks.path(name, "")
	if err := ks.writeRecord(path, rec, overwrite); err != nil {
		return StoredKey{}, err
	}
	return describe(name, "", path, rec, seed)
}

// DeriveKeyFromRole derives and stores the role seed of an existing root key.
// The role key inherits the root's algorithm; an unpinned root yields an
// Ed25519 role key.
func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (StoredKey, error) {
	if err := CheckKeyName(from); err != nil {
		return StoredKey{}, err
	}
	if err := CheckRole(role); err != nil {
		return StoredKey{}, err
	}
	root, rootSeed, err := readRecord(ks.path(from, ""))
	if err != nil {
		return StoredKey{}, err
	}
	alg, err := pick(root, "")
	if err != nil {
		return StoredKey{}, err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return StoredKey{}, err
	}
	rec := seedRecord{Algorithm: alg, Seed: hex.EncodeToString(roleSeed), Root: from, Role: role}
	path := ks.path(from, role)
	if err := ks.writeRecord(path, rec, overwrite); err != nil {
		return StoredKey{}, err
	}
	return describe(from, role, path, rec, roleSeed)
}

// ExportKey returns the public key string ("<alg>:<base64>") of a stored
// seed. An empty alg exports under the pinned algorithm.
func (ks *KeyStore) ExportKey(name, role, alg string) (string, error) {
	k, err := ks.Resolve(SeedSource{Name: name, Role: role, Algorithm: alg})
	if err != nil {
		return "", err
	}
	return EncodePublicKey(k), nil
}

// Resolve turns a SeedSource into a signing key.
func (ks *KeyStore) Resolve(src SeedSource) (Key, error) {
	var rec seedRecord
	var seed []byte
	var err error
	switch {
	case src.Hex != "":
		seed, err = ParseSeedHex(src.Hex)
	case src.File != "":
		rec, seed, err = readRecord(src.File)
	case src.Name != "":
		if err := checkRef(src.Name, src.Role); err != nil {
			return nil, err
		}
		rec, seed, err = readRecord(ks.path(src.Name, src.Role))
	default:
		return nil, errors.New("no signer provided")
	}
	if err != nil {
		return nil, err
	}
	alg, err := pick(rec, src.Algorithm)
	if err != nil {
		return nil, err
	}
	return KeyFromSeed(alg, seed)
}

// ListKeys reports every root key with its derived roles, sorted by name.
// Entries that cannot be read are returned as errors rather than skipped.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	dirs, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var result []KeyEntry
	for _, d := range dirs {
		if !d.IsDir() || CheckKeyName(d.Name()) != nil {
			continue
		}
		name := d.Name()
		rootPath := ks.path(name, "")
		rec, seed, err := readRecord(rootPath)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		root, err := describe(name, "", rootPath, rec, seed)
		if err != nil {
			return nil, err
		}
		entry := KeyEntry{StoredKey: root}
		roleFiles, _ := filepath.Glob(filepath.Join(ks.Directory, name, "roles", "*.key"))
		for _, p := range roleFiles {
			role := strings.TrimSuffix(filepath.Base(p), ".key")
			if CheckRole(role) != nil {
				continue
			}
			rec, seed, err := readRecord(p)
			if err != nil {
				return nil, err
			}
			rk, err := describe(name, role, p, rec, seed)
			if err != nil {
				return nil, err
			}
			entry.Roles = append(entry.Roles, rk)
		}
		sort.Slice(entry.Roles, func(i, j int) bool { return entry.Roles[i].Role < entry.Roles[j].Role })
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Provider returns a key Provider that reads the seed from disk on every
// SigningKey call, so the private key lives only as long as one operation.
func (ks *KeyStore) Provider(name, role, alg string) Provider {
	src := SeedSource{Name: name, Role: role, Algorithm: alg}
	return ProviderFunc(func() (Key, error) { return ks.Resolve(src) })
}

func publicKeyFromSeed(alg string, seed []byte) (string, error) {
	k, err := KeyFromSeed(alg, seed)
	if err != nil {
		return "", err
	}
	return EncodePublicKey(k), nil
}
