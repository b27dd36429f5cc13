package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blang/semver"
	"github.com/spf13/afero"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
)

// cacheDirPermissions restricts the staging directory to the updater.
const cacheDirPermissions os.FileMode = 0o700

var (
	// ErrDownload wraps transport failures while fetching a file.
	ErrDownload = errors.New("download failed")
	// ErrCacheWrite wraps filesystem failures while staging a file.
	ErrCacheWrite = errors.New("could not write cache file")
)

// Downloader streams a URL into a writer.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Verifier validates a staged artifact against its staged signature.
type Verifier interface {
	VerifyFiles(artifactPath, signaturePath string, expected semver.Version) error
}

// Cache stages the packages of one system.
type Cache struct {
	fs         afero.Fs
	system     *system.System
	downloader Downloader
	verifier   Verifier
}

// NewCache creates a cache rooted at sys.CacheDir.
func NewCache(fs afero.Fs, sys *system.System, downloader Downloader, verifier Verifier) *Cache {
	return &Cache{
		fs:         fs,
		system:     sys,
		downloader: downloader,
		verifier:   verifier,
	}
}

// Fetch makes sure a verified copy of pkg at version v is staged in the cache.
func (c *Cache) Fetch(ctx context.Context, pkg system.Package, remote *system.Remote, v semver.Version) error {
	ctx = logger.WithKV(ctx, "package", pkg.Name, "version", v.String())

	var (
		fileURL = c.system.ArtifactURL(pkg, remote.DistURL, v)
		fileDst = c.system.CachePath(pkg)
		sigURL  = c.system.SignatureURL(pkg, remote.DistURL, v)
		sigDst  = c.system.CacheSignaturePath(pkg)
	)

	if c.reusable(ctx, fileDst, sigDst, v) {
		logger.InfoKV(ctx, "Reusing successfully downloaded and verified file", "path", fileDst)
		return nil
	}

	if err := c.fs.MkdirAll(c.system.CacheDir, cacheDirPermissions); err != nil {
		return fmt.Errorf("%w: create cache directory '%s': %w", ErrCacheWrite, c.system.CacheDir, err)
	}

	if err := c.downloadFile(ctx, fileURL, fileDst); err != nil {
		return err
	}

	if err := c.downloadFile(ctx, sigURL, sigDst); err != nil {
		return err
	}

	if err := c.verifier.VerifyFiles(fileDst, sigDst, v); err != nil {
		return fmt.Errorf("downloaded %s: %w", pkg.Name, err)
	}

	logger.InfoKV(ctx, "Successfully downloaded and verified file", "path", fileDst)

	return nil
}

// Remove deletes the staged artifact and signature of pkg.
// Failures are logged and otherwise ignored: the files were already consumed.
func (c *Cache) Remove(ctx context.Context, pkg system.Package) {
	for _, path := range []string{c.system.CachePath(pkg), c.system.CacheSignaturePath(pkg)} {
		if err := c.fs.Remove(path); err != nil {
			logger.WarnKV(ctx, "Could not remove temporary file", "path", path, "error", err)
			continue
		}

		logger.DebugKV(ctx, "Removed temporary file", "path", path)
	}
}

// reusable reports whether a previous run already staged valid files for v.
func (c *Cache) reusable(ctx context.Context, fileDst, sigDst string, v semver.Version) bool {
	for _, path := range []string{fileDst, sigDst} {
		exists, err := afero.Exists(c.fs, path)
		if err != nil || !exists {
			return false
		}
	}

	if err := c.verifier.VerifyFiles(fileDst, sigDst, v); err != nil {
		logger.DebugKV(ctx, "Invalid or incomplete previous download", "error", err)
		return false
	}

	return true
}

// downloadFile fetches url into dst, truncating any previous content.
func (c *Cache) downloadFile(ctx context.Context, url, dst string) error {
	logger.DebugKV(ctx, "Downloading", "url", url, "path", dst)

	file, err := c.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrCacheWrite, dst, err)
	}

	out := &recordingWriter{w: file}

	_, err = c.downloader.Download(ctx, url, out)

	closeErr := file.Close()

	switch {
	case out.err != nil:
		return fmt.Errorf("%w '%s': %w", ErrCacheWrite, dst, out.err)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrDownload, err)
	case closeErr != nil:
		return fmt.Errorf("%w '%s': %w", ErrCacheWrite, dst, closeErr)
	}

	return nil
}

// recordingWriter remembers the first write error, telling a full disk apart
// from a broken connection once the copy fails.
type recordingWriter struct {
	w   io.Writer
	err error
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	if err != nil && r.err == nil {
		r.err = err
	}

	return n, err
}
