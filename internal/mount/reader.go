package mount

import (
	"context"
	"errors"
	"fmt"

	"github.com/moby/sys/mountinfo"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
)

var (
	// ErrMountTable is returned when the mount table cannot be read or parsed.
	ErrMountTable = errors.New("could not read mount table")
	// ErrNoRootMount is returned when nothing is mounted at "/".
	ErrNoRootMount = errors.New("no filesystem mounted at '/'")
)

// TableFunc lists the mount table of the calling process, like mountinfo.GetMounts.
type TableFunc func(filter mountinfo.FilterFunc) ([]*mountinfo.Info, error)

// Reader returns the current mount table.
type Reader struct {
	table TableFunc
}

// NewReader creates a reader. A nil table reads /proc/self/mountinfo.
func NewReader(table TableFunc) *Reader {
	if table == nil {
		table = mountinfo.GetMounts
	}

	return &Reader{table: table}
}

// CurrentMounts returns every mount entry with its source as the kernel
// reports it, pseudo filesystems included. Device names are not resolved.
// It fails when the table has no root entry: callers rely on it to know which
// device must never be written to.
func (r *Reader) CurrentMounts(ctx context.Context) ([]system.MountEntry, error) {
	infos, err := r.table(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMountTable, err)
	}

	entries := make([]system.MountEntry, 0, len(infos))

	for _, info := range infos {
		entries = append(entries, system.MountEntry{
			Source:     info.Source,
			MountPoint: info.Mountpoint,
		})
	}

	roots := system.RootSources(entries)
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrMountTable, ErrNoRootMount)
	}

	logger.DebugKV(ctx, "Read mount table", "entries", len(entries), "root", roots)

	return entries, nil
}
