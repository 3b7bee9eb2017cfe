package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"xdao.co/canonproof/commit"
)

const maxFileBytes = 16 << 20

// ToDirectory writes b to path, which must not exist. Files are written into
// a sibling temporary directory that is renamed into place only after every
// file is synced, so a failure never leaves a partial bundle at path. The
// rename refuses to replace anything created at path in the meantime.
func ToDirectory(b Bundle, path string) (commit.CommitmentHash, error) {
	enc, err := b.encode()
	if err != nil {
		return commit.CommitmentHash{}, err
	}
	if _, err := os.Lstat(path); err == nil {
		return commit.CommitmentHash{}, fmt.Errorf("%w: %s", ErrExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return commit.CommitmentHash{}, err
	}

	parent := filepath.Dir(path)
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return commit.CommitmentHash{}, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = os.RemoveAll(tmp)
		}
	}()

	names := make([]string, 0, len(enc.files))
	for name := range enc.files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeSynced(filepath.Join(tmp, name), enc.files[name]); err != nil {
			return commit.CommitmentHash{}, err
		}
	}
	if err := os.Chmod(tmp, 0o755); err != nil {
		return commit.CommitmentHash{}, err
	}
	if err := renameNoReplace(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return commit.CommitmentHash{}, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return commit.CommitmentHash{}, err
	}
	ok = true
	return ManifestHash(enc.manifest)
}

// reserveAndMove is the portable form of renameNoReplace. Mkdir claims dst
// or fails if anything is there; the files of src are then moved in and src
// is removed. On failure dst is removed again.
func reserveAndMove(src, dst string) (err error) {
	if err := os.Mkdir(dst, 0o700); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dst)
		}
	}()
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	if err := os.Chmod(dst, 0o755); err != nil {
		return err
	}
	return os.Remove(src)
}

func writeSynced(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// FromDirectory reads a bundle written by ToDirectory. It fails closed:
// extra files, subdirectories, missing files, hash mismatches and
// non-canonical bytes are all errors.
func FromDirectory(path string) (Bundle, commit.CommitmentHash, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return Bundle{}, commit.CommitmentHash{}, err
	}
	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			return Bundle{}, commit.CommitmentHash{}, fmt.Errorf("%w: %s", ErrUnexpectedFile, e.Name())
		}
		info, err := e.Info()
		if err != nil {
			return Bundle{}, commit.CommitmentHash{}, err
		}
		if info.Size() > maxFileBytes {
			return Bundle{}, commit.CommitmentHash{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidBundle, e.Name(), maxFileBytes)
		}
		raw, err := os.ReadFile(filepath.Join(path, e.Name()))
		if err != nil {
			return Bundle{}, commit.CommitmentHash{}, err
		}
		files[e.Name()] = raw
	}
	b, err := decode(files)
	if err != nil {
		return Bundle{}, commit.CommitmentHash{}, err
	}
	h, err := b.ComputeBundleHash()
	if err != nil {
		return Bundle{}, commit.CommitmentHash{}, err
	}
	return b, h, nil
}
