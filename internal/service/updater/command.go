package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/blang/semver"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/os-updater/internal/bootentry"
	"github.com/oshokin/os-updater/internal/config"
	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/fetch"
	"github.com/oshokin/os-updater/internal/logger"
	"github.com/oshokin/os-updater/internal/lvm"
	"github.com/oshokin/os-updater/internal/mount"
	"github.com/oshokin/os-updater/internal/repository/state"
	"github.com/oshokin/os-updater/internal/service/common"
	"github.com/oshokin/os-updater/internal/service/power"
	"github.com/oshokin/os-updater/internal/trust"
	"github.com/oshokin/os-updater/internal/version"
	"github.com/oshokin/os-updater/internal/volume"
)

// DefaultMarkerPath is the completion marker checked by the update service unit.
const DefaultMarkerPath = "/run/update_ready"

var errUpdaterAlreadyRunning = errors.New("the updater is already running")

// Options are inputs accepted by the updater entry points.
type Options struct {
	// Paths locate the configuration inputs and the cache.
	Paths config.Paths
	// MarkerPath is the completion marker. Empty means DefaultMarkerPath.
	MarkerPath string
	// Force ignores an existing completion marker.
	Force bool
	// Timeout bounds every request; zero means no deadline.
	Timeout time.Duration
	// Reboot restarts the machine once the update is committed.
	Reboot bool

	// The fields below replace host access; nil uses the host.

	// Fs is the filesystem holding configuration, cache, devices and entries.
	Fs afero.Fs
	// LVMRunner executes LVM commands.
	LVMRunner lvm.Runner
	// MountTable lists the mount table.
	MountTable mount.TableFunc
	// Processes lists running processes for the single-instance guard.
	Processes common.ProcessLister
	// Sync flushes storage before the boot entry commit.
	Sync func() error
	// Notifier receives phase transitions; nil notifies systemd.
	Notifier Notifier
	// Starter starts the reboot command.
	Starter power.Starter
}

// Status is what `status` reports.
type Status struct {
	// Running is the installed version.
	Running string `yaml:"running"`
	// RebootRequired is set when an update waits for a reboot.
	RebootRequired bool `yaml:"reboot_required"`
	// Marker is the completion marker, if any.
	Marker *state.Marker `yaml:"marker,omitempty"`
	// Journal is an interrupted install, if any.
	Journal *state.Journal `yaml:"journal,omitempty"`
	// BootEntries lists the committed entries.
	BootEntries []string `yaml:"boot_entries"`
	// StagedEntries are entries copied but never committed.
	StagedEntries []string `yaml:"staged_entries,omitempty"`
}

// Run checks for an update and installs it. "No update" and "reboot pending"
// are successful outcomes.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, version.Name)
	opts = withDefaults(opts)

	logger.Info(ctx, "Starting updater")

	if err := ensureSingleInstance(opts); err != nil {
		return err
	}

	marker := state.NewFileRepository[state.Marker](opts.Fs, opts.MarkerPath)

	pending, err := marker.Exists(ctx)
	if err != nil {
		return err
	}

	if pending && !opts.Force {
		logger.InfoKV(ctx, "An update is already installed, reboot required", "marker", marker.Path())
		return nil
	}

	sys, remote, err := config.Load(opts.Fs, opts.Paths)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Currently running", "os", sys.OSName, "version", sys.Version.String())

	client, err := common.NewClient(remote, common.WithCallTimeout(opts.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	journal := state.NewFileRepository[state.Journal](opts.Fs, sys.JournalPath())
	reportInterruptedInstall(ctx, journal)

	logger.InfoKV(ctx, "Looking for updates", "url", remote.UpdateURL)

	target, err := CheckUpdate(ctx, client, sys, remote)
	if err != nil {
		return err
	}

	if target == nil {
		logger.Info(ctx, "No update found")
		return nil
	}

	logger.InfoKV(ctx, "Found update", "version", target.String())

	installer := newInstaller(opts, sys, client, journal)

	result, err := installer.Update(ctx, remote, *target)
	if err != nil {
		logger.ErrorKV(ctx, "Update failed", "error", err)
		return err
	}

	record := &state.Marker{
		OSName:      sys.OSName,
		From:        sys.Version.String(),
		To:          target.String(),
		BootEntry:   result.BootEntry,
		CompletedAt: time.Now().UTC(),
	}

	// The update is committed; a missing marker only means the next run checks again.
	if err = marker.Save(ctx, record); err != nil {
		logger.WarnKV(ctx, "Could not write completion marker", "marker", marker.Path(), "error", err)
	}

	if !opts.Reboot {
		logger.Info(ctx, "Reboot required to use the new version")
		return nil
	}

	if err = power.Reboot(ctx, opts.Starter); err != nil {
		logger.WarnKV(ctx, "Could not reboot, reboot manually to use the new version", "error", err)
	}

	return nil
}

// Check returns the available update, or nil when the system is up to date.
func Check(ctx context.Context, opts *Options) (*semver.Version, error) {
	ctx = logger.WithName(ctx, version.Name)
	opts = withDefaults(opts)

	sys, remote, err := config.Load(opts.Fs, opts.Paths)
	if err != nil {
		return nil, err
	}

	client, err := common.NewClient(remote, common.WithCallTimeout(opts.Timeout))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = client.Close()
	}()

	return CheckUpdate(ctx, client, sys, remote)
}

// WriteStatus prints the local update state as YAML. It needs no network.
func WriteStatus(ctx context.Context, opts *Options, w io.Writer) error {
	opts = withDefaults(opts)

	cfg, err := config.LoadConfig(opts.Fs, filepath.Join(opts.Paths.ConfigDir, config.ConfigFilename))
	if err != nil {
		return err
	}

	running, err := config.LoadRunningVersion(opts.Fs, opts.Paths.OSRelease)
	if err != nil {
		return err
	}

	sys := &system.System{OSName: cfg.OSName, Version: running, CacheDir: opts.Paths.CacheDir}
	status := Status{Running: running.String()}

	status.Marker, err = loadOptional(ctx, state.NewFileRepository[state.Marker](opts.Fs, opts.MarkerPath))
	if err != nil {
		return err
	}

	status.RebootRequired = status.Marker != nil

	status.Journal, err = loadOptional(ctx, state.NewFileRepository[state.Journal](opts.Fs, sys.JournalPath()))
	if err != nil {
		return err
	}

	entries, err := bootentry.NewSwapper(opts.Fs, cfg.Efiboot.Destination, cfg.OSName).Entries()
	if err != nil {
		logger.WarnKV(ctx, "Could not list boot entries", "error", err)
	}

	for _, entry := range entries {
		if bootentry.IsStaging(entry) {
			status.StagedEntries = append(status.StagedEntries, entry)
			continue
		}

		status.BootEntries = append(status.BootEntries, entry)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err = encoder.Encode(&status); err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	return encoder.Close()
}

func newInstaller(
	opts *Options,
	sys *system.System,
	client *common.Client,
	journal state.Repository[state.Journal],
) *Installer {
	var swapperOpts []bootentry.Option
	if opts.Sync != nil {
		swapperOpts = append(swapperOpts, bootentry.WithSync(opts.Sync))
	}

	return NewInstaller(sys, InstallerDeps{
		Fetcher:  fetch.NewCache(opts.Fs, sys, client, trust.NewVerifier(opts.Fs, sys.PublicKey)),
		Selector: volume.NewSelector(lvm.NewManager(opts.LVMRunner), mount.NewReader(opts.MountTable)),
		Writer:   volume.NewWriter(opts.Fs),
		Entries:  bootentry.NewSwapper(opts.Fs, sys.Efiboot.Destination, sys.OSName, swapperOpts...),
		Journal:  journal,
		Notifier: opts.Notifier,
	})
}

func ensureSingleInstance(opts *Options) error {
	running, err := common.AnotherInstanceRunning(common.ExecutableName(), opts.Processes)
	if err != nil {
		return err
	}

	if running {
		return errUpdaterAlreadyRunning
	}

	return nil
}

// reportInterruptedInstall logs a journal left by a run that died before its commit point.
// The volume it names is unreferenced and is fully overwritten by the next install.
func reportInterruptedInstall(ctx context.Context, journal *state.FileRepository[state.Journal]) {
	record, err := journal.Load(ctx)

	switch {
	case errors.Is(err, state.ErrNotFound):
		return
	case err != nil:
		logger.WarnKV(ctx, "Could not read install journal", "path", journal.Path(), "error", err)
	default:
		logger.WarnKV(ctx, "Previous install was interrupted",
			"phase", record.Phase, "target", record.Target, "volume", record.Volume)
	}
}

func loadOptional[T any](ctx context.Context, repo *state.FileRepository[T]) (*T, error) {
	record, err := repo.Load(ctx)
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil //nolint:nilnil // Absence is a valid status.
	}

	return record, err
}

func withDefaults(opts *Options) *Options {
	o := Options{}
	if opts != nil {
		o = *opts
	}

	o.Paths = config.WithDefaults(o.Paths)

	if o.MarkerPath == "" {
		o.MarkerPath = DefaultMarkerPath
	}

	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}

	if o.Notifier == nil {
		o.Notifier = SystemdNotifier{}
	}

	return &o
}
