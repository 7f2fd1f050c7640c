package executor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"

	"github.com/instl-run/instl/pkg/fsutil"
)

// NewUnwtarStep builds the step that unpacks a downloaded wtar archive into
// destDir, scheduled by the sync planner whenever a download's path ends in
// the wtar marker suffix (spec §4.E step 6).
func NewUnwtarStep(archivePath, destDir string) *Step {
	return &Step{
		Name:             "Unwtar",
		Essential:        true,
		CallCall:         true,
		OwnProgressCount: 1,
		CallSelf: func(ctx *Context) error {
			ctx.Doing = "unpacking " + archivePath
			return unwtar(context.Background(), archivePath, destDir)
		},
	}
}

func unwtar(ctx context.Context, archivePath, destDir string) error {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return fmt.Errorf("open wtar archive %s: %w", archivePath, err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := fsutil.MkdirAll(destDir, true); err != nil {
		return err
	}

	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		return extractEntry(fsys, path, destDir, d)
	})
}

func extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) error {
	target := filepath.Join(destDir, path)
	if d.IsDir() {
		return fsutil.MkdirAll(target, true)
	}

	src, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", path, err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(target), fsutil.DirModeDefault); err != nil {
		return fmt.Errorf("mkdir for %s: %w", target, err)
	}
	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("stat archive entry %s: %w", path, err)
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("copy archive entry %s: %w", path, err)
	}
	return os.Chtimes(target, info.ModTime(), info.ModTime())
}
