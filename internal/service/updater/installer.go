package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blang/semver"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
	"github.com/oshokin/os-updater/internal/repository/state"
)

// errTargetIsRunning is returned when asked to install the running version.
// Publishing its entry would replace the only entry known to boot.
var errTargetIsRunning = errors.New("target version is the running version")

// Fetcher stages verified packages.
type Fetcher interface {
	Fetch(ctx context.Context, pkg system.Package, remote *system.Remote, v semver.Version) error
	Remove(ctx context.Context, pkg system.Package)
}

// VolumeSelector picks the volume receiving the core image.
type VolumeSelector interface {
	Select(ctx context.Context, pkg system.Package, running, target semver.Version) (system.Volume, error)
}

// ImageWriter copies the core image to a volume.
type ImageWriter interface {
	Write(ctx context.Context, imagePath string, volume system.Volume) (int64, error)
}

// BootEntries clears and publishes boot entries.
type BootEntries interface {
	ClearStale(ctx context.Context, running semver.Version) ([]string, error)
	Publish(ctx context.Context, stagedPath string, target semver.Version) (string, error)
}

// Result describes a completed install.
type Result struct {
	// Volume received the core image.
	Volume system.Volume
	// BootEntry is the committed entry path.
	BootEntry string
	// RemovedEntries are the stale entries removed before the write.
	RemovedEntries []string
	// Written is the number of bytes copied to the volume.
	Written int64
}

// Installer runs the install sequence for one system.
type Installer struct {
	system   *system.System
	fetcher  Fetcher
	selector VolumeSelector
	writer   ImageWriter
	entries  BootEntries
	journal  state.Repository[state.Journal]
	notifier Notifier
	now      func() time.Time

	phase  Phase
	record state.Journal
}

// InstallerDeps are the collaborators of an Installer.
type InstallerDeps struct {
	Fetcher  Fetcher
	Selector VolumeSelector
	Writer   ImageWriter
	Entries  BootEntries
	// Journal records the install while a volume is being written. Optional.
	Journal state.Repository[state.Journal]
	// Notifier receives every phase transition. Optional.
	Notifier Notifier
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewInstaller creates an installer for sys.
func NewInstaller(sys *system.System, deps InstallerDeps) *Installer {
	i := &Installer{
		system:   sys,
		fetcher:  deps.Fetcher,
		selector: deps.Selector,
		writer:   deps.Writer,
		entries:  deps.Entries,
		journal:  deps.Journal,
		notifier: deps.Notifier,
		now:      deps.Now,
		phase:    PhaseStart,
	}

	if i.notifier == nil {
		i.notifier = NotifierFunc(func(context.Context, string) {})
	}

	if i.now == nil {
		i.now = time.Now
	}

	return i
}

// Phase returns the phase the installer is in.
func (i *Installer) Phase() Phase {
	return i.phase
}

// Update installs target. It never retries: a failed run is re-run as a whole.
func (i *Installer) Update(ctx context.Context, remote *system.Remote, target semver.Version) (*Result, error) {
	var (
		running = i.system.Version
		result  = new(Result)
		err     error
	)

	ctx = logger.WithKV(ctx, "from", running.String(), "to", target.String())

	i.enter(ctx, PhaseStart)

	if target.Equals(running) {
		return nil, i.fail(ctx, fmt.Errorf("%w: %s", errTargetIsRunning, target))
	}

	i.enter(ctx, PhaseFetchingEfiboot)

	if err = i.fetcher.Fetch(ctx, i.system.Efiboot, remote, target); err != nil {
		return nil, i.fail(ctx, err)
	}

	i.enter(ctx, PhaseFetchingCore)

	if err = i.fetcher.Fetch(ctx, i.system.Core, remote, target); err != nil {
		return nil, i.fail(ctx, err)
	}

	i.enter(ctx, PhaseSelectingVolume)

	if result.Volume, err = i.selector.Select(ctx, i.system.Core, running, target); err != nil {
		return nil, i.fail(ctx, err)
	}

	// The journal starts once a volume is chosen: a failed selection leaves
	// nothing to report, and a journal from an earlier run stays untouched.
	i.record = state.Journal{
		OSName:    i.system.OSName,
		From:      running.String(),
		Target:    target.String(),
		Volume:    result.Volume.Path(),
		StartedAt: i.now().UTC(),
	}

	i.enter(ctx, PhaseClearingStaleEntries)

	if err = i.saveJournal(ctx); err != nil {
		return nil, i.fail(ctx, err)
	}

	if result.RemovedEntries, err = i.entries.ClearStale(ctx, running); err != nil {
		return nil, i.fail(ctx, err)
	}

	i.enter(ctx, PhaseWritingCore)

	if err = i.saveJournal(ctx); err != nil {
		return nil, i.fail(ctx, err)
	}

	if result.Written, err = i.writer.Write(ctx, i.system.CachePath(i.system.Core), result.Volume); err != nil {
		return nil, i.fail(ctx, err)
	}

	i.enter(ctx, PhasePublishingBoot)

	if err = i.saveJournal(ctx); err != nil {
		return nil, i.fail(ctx, err)
	}

	if result.BootEntry, err = i.entries.Publish(ctx, i.system.CachePath(i.system.Efiboot), target); err != nil {
		return nil, i.fail(ctx, err)
	}

	i.enter(ctx, PhaseCleaningUp)
	i.cleanup(ctx)
	i.enter(ctx, PhaseDone)

	logger.InfoKV(ctx, "Successfully updated", "volume", result.Volume.Path(), "entry", result.BootEntry)

	return result, nil
}

func (i *Installer) enter(ctx context.Context, phase Phase) {
	i.phase = phase

	logger.DebugKV(ctx, "Entering phase", "phase", string(phase))
	i.notifier.Notify(ctx, string(phase))
}

func (i *Installer) fail(ctx context.Context, err error) error {
	failed := &PhaseError{Phase: i.phase, Err: err}

	i.phase = PhaseFailed
	i.notifier.Notify(ctx, "Failed: "+failed.Error())

	return failed
}

func (i *Installer) saveJournal(ctx context.Context) error {
	if i.journal == nil {
		return nil
	}

	i.record.Phase = string(i.phase)
	i.record.UpdatedAt = i.now().UTC()

	if err := i.journal.Save(ctx, &i.record); err != nil {
		return fmt.Errorf("save install journal: %w", err)
	}

	return nil
}

// cleanup runs after the commit point; nothing in it may fail the update.
func (i *Installer) cleanup(ctx context.Context) {
	i.fetcher.Remove(ctx, i.system.Core)
	i.fetcher.Remove(ctx, i.system.Efiboot)

	if i.journal == nil {
		return
	}

	if err := i.journal.Remove(ctx); err != nil {
		logger.WarnKV(ctx, "Could not remove install journal", "error", err)
	}
}
