//go:build !linux

package bundle

func renameNoReplace(src, dst string) error { return reserveAndMove(src, dst) }
