//go:build windows

package fsutil

// CopyOwner is a no-op on Windows: ownership is ACL-based, not a simple
// uid/gid pair, and spec §4.G's copy_owner is a POSIX-clone concern.
func CopyOwner(src, dst string) error { return nil }
