package volume

import (
	"context"
	"errors"
	"fmt"

	"github.com/blang/semver"
	"github.com/dustin/go-humanize"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
)

// ErrVgNotFound is returned when the configured volume group does not exist.
var ErrVgNotFound = errors.New("could not find destination VG")

// Manager is the subset of volume management the selector needs.
type Manager interface {
	GroupExists(ctx context.Context, group string) (bool, error)
	ListVolumes(ctx context.Context, group string) ([]system.Volume, error)
	CreateVolume(ctx context.Context, group, name string, size uint64) (system.Volume, error)
	RenameVolume(ctx context.Context, volume system.Volume, newName string) (system.Volume, error)
}

// MountReader returns the live mount table.
type MountReader interface {
	CurrentMounts(ctx context.Context) ([]system.MountEntry, error)
}

// Selector picks the destination volume of a core update.
type Selector struct {
	manager Manager
	mounts  MountReader
	resolve func(path string) string
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithPathResolver replaces how device paths are canonicalized before they
// are compared with the root mount source.
func WithPathResolver(resolve func(path string) string) SelectorOption {
	return func(s *Selector) {
		s.resolve = resolve
	}
}

// NewSelector creates a selector.
func NewSelector(manager Manager, mounts MountReader, opts ...SelectorOption) *Selector {
	s := &Selector{
		manager: manager,
		mounts:  mounts,
		resolve: CanonicalPath,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Select returns a volume named after target, ready to be overwritten.
// An inactive volume is reused when one exists, otherwise a new one is created.
func (s *Selector) Select(
	ctx context.Context,
	pkg system.Package,
	running, target semver.Version,
) (system.Volume, error) {
	ctx = logger.WithKV(ctx, "vg", pkg.Destination)

	exists, err := s.manager.GroupExists(ctx, pkg.Destination)
	if err != nil {
		return system.Volume{}, fmt.Errorf("could not list VGs: %w", err)
	}

	if !exists {
		return system.Volume{}, fmt.Errorf("%w: '%s'", ErrVgNotFound, pkg.Destination)
	}

	mounts, err := s.mounts.CurrentMounts(ctx)
	if err != nil {
		return system.Volume{}, err
	}

	volumes, err := s.manager.ListVolumes(ctx, pkg.Destination)
	if err != nil {
		return system.Volume{}, fmt.Errorf("could not list LVs: %w", err)
	}

	candidates := Filter(ctx, &FilterInput{
		Package:     pkg,
		Running:     running,
		RootSources: system.RootSources(mounts),
		Resolve:     s.resolve,
	}, volumes)

	targetName := pkg.VolumeName(target.String())

	if len(candidates) == 0 {
		return s.create(ctx, pkg, targetName)
	}

	if len(candidates) > 1 {
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			names = append(names, c.Volume.Name)
		}

		logger.WarnKV(ctx, "Found more than one candidate LV, using the first one", "candidates", names)
	}

	chosen := candidates[0].Volume
	if chosen.Name == targetName {
		logger.InfoKV(ctx, "Reusing LV already named after target", "lv", chosen.Name)
		return chosen, nil
	}

	renamed, err := s.manager.RenameVolume(ctx, chosen, targetName)
	if err != nil {
		return system.Volume{}, fmt.Errorf("could not rename LV '%s' to '%s': %w", chosen.Name, targetName, err)
	}

	logger.InfoKV(ctx, "Renamed LV", "from", chosen.Name, "to", renamed.Name)

	return renamed, nil
}

func (s *Selector) create(ctx context.Context, pkg system.Package, name string) (system.Volume, error) {
	size, err := ParseSize(pkg.Size)
	if err != nil {
		return system.Volume{}, err
	}

	logger.InfoKV(ctx, "No candidate LV found, creating a new one", "lv", name, "size", humanize.IBytes(size))

	created, err := s.manager.CreateVolume(ctx, pkg.Destination, name, size)
	if err != nil {
		return system.Volume{}, fmt.Errorf("could not create LV '%s': %w", name, err)
	}

	return created, nil
}
