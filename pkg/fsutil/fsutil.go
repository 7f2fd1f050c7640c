// Package fsutil provides the filesystem primitives used by the executor's
// operations: directory/file creation, permission and flag management,
// buffered copy, hard/symbolic linking, and atomic move. Mirrors the
// teacher's pkg/fsutil package.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
)

// File and directory permission constants used consistently by the
// executor's filesystem operations.
const (
	FileModeDefault = 0o644 // -rw-r--r--: default for regular files
	FileModeSecure  = 0o640 // -rw-r-----: sensitive files
	FileModeExec    = 0o755 // -rwxr-xr-x: executable files

	DirModeDefault = 0o755 // drwxr-xr-x: default for directories
	DirModeSecure  = 0o750 // drwxr-x---: sensitive directories
	DirModePrivate = 0o700 // drwx------: private directories

	// CopyBufferSize is the buffer size used by CopyFile, matching spec
	// §4.G's 256 KiB buffered copy_file primitive.
	CopyBufferSize = 256 * 1024
)

// MkdirAll creates path and all necessary parents, mirroring the
// mkdirs(p, exist_ok) signature from spec §4.G. When existOK is false and
// path already exists, it returns an error wrapping os.ErrExist; when
// existOK is true, an existing path is accepted.
func MkdirAll(path string, existOK bool) error {
	if !existOK {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists: %w", path, os.ErrExist)
		}
	}
	return os.MkdirAll(path, DirModeDefault)
}

// Chmod sets the given mode on path.
func Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

// Unlink removes a single file or symlink.
func Unlink(path string) error {
	return os.Remove(path)
}

// RemoveTree removes path and everything under it.
func RemoveTree(path string) error {
	return os.RemoveAll(path)
}

// CopyStat copies mode and modification time from src to dst.
func CopyStat(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := os.Chmod(dst, info.Mode()); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("chtimes %s: %w", dst, err)
	}
	return nil
}

// CopyFile copies src to dst using a 256 KiB buffer, per spec §4.G.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), DirModeDefault); err != nil {
		return fmt.Errorf("mkdir for %s: %w", dst, err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileModeDefault)
	if err != nil {
		return fmt.Errorf("create destination %s: %w", dst, err)
	}
	defer func() { _ = out.Close() }()

	buf := make([]byte, CopyBufferSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Link creates a hard link from dst to src.
func Link(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), DirModeDefault); err != nil {
		return fmt.Errorf("mkdir for %s: %w", dst, err)
	}
	return os.Link(src, dst)
}

// Symlink creates a symbolic link at linkPath pointing to target.
func Symlink(target, linkPath string) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), DirModeDefault); err != nil {
		return fmt.Errorf("mkdir for %s: %w", linkPath, err)
	}
	return os.Symlink(target, linkPath)
}

// Readlink returns the target of a symbolic link.
func Readlink(linkPath string) (string, error) {
	return os.Readlink(linkPath)
}

// SameFile reports whether two paths refer to the same inode (used by
// RsyncClone's per-file skip logic in spec §4.G).
func SameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// SameSizeAndModTime reports whether two paths have identical size and
// modification time (the other half of RsyncClone's skip logic).
func SameSizeAndModTime(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return ai.Size() == bi.Size() && ai.ModTime().Equal(bi.ModTime())
}

// Move moves src to dst, trying an atomic rename first and falling back to
// copy+delete across filesystem boundaries.
func Move(src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("source and destination paths cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dst), DirModeDefault); err != nil {
		return fmt.Errorf("mkdir for %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return fmt.Errorf("rename %s to %s: %w", src, dst, err)
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	if err := CopyStat(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errno, ok := linkErr.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return isCrossDevice(pathErr.Err)
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cross-device") || (runtime.GOOS == "windows" && strings.Contains(msg, "device"))
}

// Exists reports whether path exists, following symlinks.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ScanDir lists the immediate entries of a directory, sorted by name.
func ScanDir(path string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}
	return entries, nil
}
