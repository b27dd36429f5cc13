package bootentry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/blang/semver"
	"github.com/spf13/afero"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
)

const (
	// stagingSuffix is appended to the final entry name while it is being written.
	stagingSuffix = ".new"

	entryPermissions = 0o644
)

var (
	// ErrListEntries is returned when the boot entries directory cannot be read.
	ErrListEntries = errors.New("could not list boot entries")
	// ErrRemoveEntry is returned when a stale entry cannot be removed.
	ErrRemoveEntry = errors.New("could not remove boot entry")
	// ErrStageEntry is returned when the new entry cannot be copied next to its final name.
	ErrStageEntry = errors.New("could not stage boot entry")
	// ErrSync is returned when storage could not be flushed before the commit.
	ErrSync = errors.New("could not flush storage")
	// ErrCommitEntry is returned when the staged entry cannot be renamed into place.
	ErrCommitEntry = errors.New("could not commit boot entry")
)

// Swapper clears and publishes boot entries in one directory.
type Swapper struct {
	fs     afero.Fs
	dir    string
	osName string
	sync   func() error
}

// Option configures a Swapper.
type Option func(*Swapper)

// WithSync replaces the storage flush issued before the commit rename.
func WithSync(sync func() error) Option {
	return func(s *Swapper) {
		s.sync = sync
	}
}

// NewSwapper creates a swapper for the entries of osName in dir.
func NewSwapper(fs afero.Fs, dir, osName string, opts ...Option) *Swapper {
	s := &Swapper{
		fs:     fs,
		dir:    dir,
		osName: osName,
		sync:   syncFilesystems,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EntryName is the file name of the entry booting version v.
func (s *Swapper) EntryName(v semver.Version) string {
	return system.BootEntryFileName(s.osName, v)
}

// EntryPath is the full path of the entry booting version v.
func (s *Swapper) EntryPath(v semver.Version) string {
	return filepath.Join(s.dir, s.EntryName(v))
}

// Entries returns the regular file names in the directory, sorted.
func (s *Swapper) Entries() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", ErrListEntries, s.dir, err)
	}

	names := make([]string, 0, len(infos))

	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}

	return names, nil
}

// ClearStale removes every entry except the one booting the running version,
// and returns the removed names. Leftover staged entries are removed as well.
// Sub-directories are never touched.
func (s *Swapper) ClearStale(ctx context.Context, running semver.Version) ([]string, error) {
	keep := s.EntryName(running)

	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", ErrListEntries, s.dir, err)
	}

	var removed []string

	for _, info := range infos {
		name := info.Name()

		switch {
		case name == keep:
			logger.DebugKV(ctx, "Keeping boot entry of running version", "entry", name)
			continue
		case info.IsDir():
			logger.WarnKV(ctx, "Skipping directory in boot entries directory", "path", filepath.Join(s.dir, name))
			continue
		case !utf8.ValidString(name):
			logger.WarnKV(ctx, "Removing boot entry with a non UTF-8 name", "name", fmt.Sprintf("%q", name))
		}

		path := filepath.Join(s.dir, name)
		if err = s.fs.Remove(path); err != nil {
			return removed, fmt.Errorf("%w: '%s': %w", ErrRemoveEntry, path, err)
		}

		logger.InfoKV(ctx, "Removed boot entry", "entry", name)

		removed = append(removed, name)
	}

	return removed, nil
}

// Publish installs stagedPath as the entry booting target.
// The entry only becomes visible through the final rename.
func (s *Swapper) Publish(ctx context.Context, stagedPath string, target semver.Version) (string, error) {
	final := s.EntryPath(target)
	staging := final + stagingSuffix

	if err := s.stage(stagedPath, staging); err != nil {
		_ = s.fs.Remove(staging)
		return "", err
	}

	logger.DebugKV(ctx, "Staged boot entry", "path", staging)

	if err := s.sync(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSync, err)
	}

	if err := s.fs.Rename(staging, final); err != nil {
		return "", fmt.Errorf("%w: '%s' to '%s': %w", ErrCommitEntry, staging, final, err)
	}

	logger.InfoKV(ctx, "Published boot entry", "path", final)

	return final, nil
}

// IsStaging reports whether name is a staged, uncommitted entry.
func IsStaging(name string) bool {
	return strings.HasSuffix(name, stagingSuffix)
}

func (s *Swapper) stage(src, dst string) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return fmt.Errorf("%w: '%s': %w", ErrStageEntry, src, err)
	}
	defer in.Close()

	out, err := s.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entryPermissions)
	if err != nil {
		return fmt.Errorf("%w: '%s': %w", ErrStageEntry, dst, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: '%s' to '%s': %w", ErrStageEntry, src, dst, err)
	}

	if err = out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: '%s': %w", ErrStageEntry, dst, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("%w: '%s': %w", ErrStageEntry, dst, err)
	}

	return nil
}
