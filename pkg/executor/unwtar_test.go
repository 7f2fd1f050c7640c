package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mholt/archives"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createWtar(t *testing.T, sourceDir, archivePath string) {
	t.Helper()
	ctx := context.Background()
	abs, err := filepath.Abs(sourceDir)
	require.NoError(t, err)

	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		abs + string(os.PathSeparator): "",
	})
	require.NoError(t, err)

	out, err := os.Create(archivePath)
	require.NoError(t, err)
	defer func() { _ = out.Close() }()

	format := archives.CompressedArchive{Compression: archives.Gz{}, Archival: archives.Tar{}}
	require.NoError(t, format.Archive(ctx, out, files))
}

func TestUnwtarExtractsNestedFiles(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "source")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "b", "file.txt"), []byte("payload"), 0o644))

	archivePath := filepath.Join(tmp, "bundle.tar.gz")
	createWtar(t, src, archivePath)

	dst := filepath.Join(tmp, "out")
	step := NewUnwtarStep(archivePath, dst)
	require.NoError(t, runStep(t, step))

	got, err := os.ReadFile(filepath.Join(dst, "a", "b", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestUnwtarMissingArchiveErrors(t *testing.T) {
	dst := t.TempDir()
	err := unwtar(context.Background(), filepath.Join(dst, "nope.tar.gz"), dst)
	assert.Error(t, err)
}
