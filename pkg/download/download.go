// Package download defines the transport capability the sync planner and
// executor depend on to fetch remote files, and a default HTTP-backed
// implementation. Mirrors the shape of the teacher's pkg/download package.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/instl-run/instl/pkg/xerrors"
)

//go:generate go run go.uber.org/mock/mockgen -source=download.go -destination=download_mock.go -package=download

// Downloader fetches a single remote URL to a local path, and reports a
// file's checksum for skip/verify decisions. Implementations must be safe
// for concurrent use by the parallel runner.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
	Checksum(path string) (string, error)
}

// HTTPDownloader is the default Downloader, backed by net/http.
type HTTPDownloader struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPDownloader returns an HTTPDownloader with the given timeout.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{Client: &http.Client{Timeout: timeout}, Timeout: timeout}
}

// Download fetches url into dest, creating parent directories as needed.
func (d *HTTPDownloader) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrors.Wrapf(err, "build request for %s", url)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return xerrors.Wrapf(xerrors.ErrDownloadFailed, "%s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return xerrors.Wrapf(xerrors.ErrDownloadFailed, "%s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return xerrors.Wrapf(err, "mkdir for %s", dest)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return xerrors.Wrapf(err, "create %s", tmp)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return xerrors.Wrapf(xerrors.ErrDownloadFailed, "copy body for %s: %v", url, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return xerrors.Wrapf(err, "close %s", tmp)
	}
	return os.Rename(tmp, dest)
}

// Checksum returns the hex SHA-256 digest of path.
func (d *HTTPDownloader) Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", xerrors.Wrapf(xerrors.ErrFileNotFound, "%s: %v", path, err)
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", xerrors.Wrap(err, "hash "+path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
