package bundle

import (
	"errors"

	"golang.org/x/sys/unix"
)

// renameNoReplace renames src to dst, failing with an fs.ErrExist error when
// dst exists, even as an empty directory. Filesystems without renameat2
// support fall back to reserveAndMove.
func renameNoReplace(src, dst string) error {
	err := unix.Renameat2(unix.AT_FDCWD, src, unix.AT_FDCWD, dst, unix.RENAME_NOREPLACE)
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS) {
		return reserveAndMove(src, dst)
	}
	return err
}
