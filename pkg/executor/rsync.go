package executor

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/instl-run/instl/pkg/fsutil"
)

// RsyncCloneOptions configures the copy engine described in spec §4.G.
type RsyncCloneOptions struct {
	IgnorePatterns     []string
	NoHardLinkPatterns []string
	NoFlagsPatterns    []string
	PreferHardLinks    bool
	CopyStat           bool
	CopyOwner          bool
	DeleteExtraneous   bool
	SymlinksAsSymlinks bool
	IgnoreDanglingSymlinks bool
	DryRun             bool
	AvoidCopyMarkers   []string // marker filenames that short-circuit a whole directory copy
}

// NewRsyncCloneStep builds the callable copy-engine step described in spec
// §4.G: per-file skip on same-inode/same-size-and-mtime, hard-link
// preference with run-sticky fallback to copy on first `link` failure (spec
// §7 LinkFailure), no_flags_patterns/delete_extraneous_files passes, a
// symlinks_as_symlinks preservation branch, and a directory-level
// avoid_copy_markers short-circuit.
func NewRsyncCloneStep(src, dst string, opts RsyncCloneOptions) *Step {
	return &Step{
		Name:             "RsyncClone",
		Essential:        true,
		CallCall:         true,
		OwnProgressCount: 1,
		CallSelf: func(ctx *Context) error {
			ctx.Doing = "cloning " + src + " -> " + dst
			if opts.DryRun {
				return nil
			}
			if markerShortCircuits(src, dst, opts.AvoidCopyMarkers) {
				return nil
			}
			run := &cloneRun{opts: opts}
			return run.cloneTree(src, dst)
		},
	}
}

// markerShortCircuits reports whether a marker file present in both src and
// dst with matching content means the whole directory copy can be skipped.
func markerShortCircuits(src, dst string, markers []string) bool {
	for _, marker := range markers {
		srcMarker := filepath.Join(src, marker)
		dstMarker := filepath.Join(dst, marker)
		if !fsutil.Exists(srcMarker) || !fsutil.Exists(dstMarker) {
			continue
		}
		srcData, srcErr := os.ReadFile(srcMarker)
		dstData, dstErr := os.ReadFile(dstMarker)
		if srcErr == nil && dstErr == nil && bytes.Equal(srcData, dstData) {
			return true
		}
	}
	return false
}

// cloneRun carries the options plus the one mutable piece of state that must
// survive across the whole recursive tree walk: once a hard-link attempt
// fails, hard-linking is disabled for the rest of the run (spec §7
// LinkFailure), not just for the file that failed.
type cloneRun struct {
	opts              RsyncCloneOptions
	hardLinksDisabled bool
}

func (r *cloneRun) cloneTree(src, dst string) error {
	entries, err := fsutil.ScanDir(src)
	if err != nil {
		return err
	}
	if err := fsutil.MkdirAll(dst, true); err != nil {
		return err
	}

	kept := make(map[string]bool, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if matchesAny(r.opts.IgnorePatterns, name) {
			// ignored, not extraneous: leave whatever's at dst alone.
			kept[name] = true
			continue
		}
		kept[name] = true
		srcPath := filepath.Join(src, name)
		dstPath := filepath.Join(dst, name)

		if entry.Type()&os.ModeSymlink != 0 && r.opts.SymlinksAsSymlinks {
			if err := r.cloneSymlink(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if entry.IsDir() {
			if err := r.cloneTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := r.cloneFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	if r.opts.DeleteExtraneous {
		if err := r.deleteExtraneous(dst, kept); err != nil {
			return err
		}
	}
	return nil
}

// deleteExtraneous removes every entry under dst that wasn't just copied or
// recursed into, implementing delete_extraneous_files.
func (r *cloneRun) deleteExtraneous(dst string, kept map[string]bool) error {
	entries, err := fsutil.ScanDir(dst)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if kept[entry.Name()] {
			continue
		}
		if err := fsutil.RemoveTree(filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// cloneSymlink recreates src's symlink at dst rather than following it,
// honouring ignore_dangling_symlinks.
func (r *cloneRun) cloneSymlink(src, dst string) error {
	target, err := fsutil.Readlink(src)
	if err != nil {
		return err
	}
	if r.opts.IgnoreDanglingSymlinks {
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(src), resolved)
		}
		if !fsutil.Exists(resolved) {
			return nil
		}
	}
	_ = fsutil.Unlink(dst)
	return fsutil.Symlink(target, dst)
}

func (r *cloneRun) cloneFile(src, dst string) error {
	if fsutil.SameFile(src, dst) || fsutil.SameSizeAndModTime(src, dst) {
		return nil
	}

	if fsutil.Exists(dst) {
		mode := os.FileMode(fsutil.FileModeDefault)
		if matchesAny(r.opts.NoFlagsPatterns, filepath.Base(src)) {
			mode = 0o666 // clear flags: force a+rw before overwrite
		}
		_ = fsutil.Chmod(dst, mode)
	}

	if r.opts.PreferHardLinks && !r.hardLinksDisabled && !matchesAny(r.opts.NoHardLinkPatterns, filepath.Base(src)) {
		if err := fsutil.Link(src, dst); err == nil {
			return nil
		}
		r.hardLinksDisabled = true
	}

	if err := fsutil.CopyFile(src, dst); err != nil {
		return err
	}
	if r.opts.CopyStat {
		if err := fsutil.CopyStat(src, dst); err != nil {
			return err
		}
	}
	if r.opts.CopyOwner {
		return fsutil.CopyOwner(src, dst)
	}
	return nil
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
