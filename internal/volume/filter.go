package volume

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/blang/semver"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
)

// ReservedSuffixes name volumes that are never part of the A/B rotation.
//
//nolint:gochecknoglobals // Read-only lookup table.
var ReservedSuffixes = map[string]struct{}{
	"state": {},
	"swap":  {},
}

// Candidate is a volume that passed some or all of the predicates.
type Candidate struct {
	// Volume is the volume as listed by the manager.
	Volume system.Volume
	// Suffix is the part of the name after the first underscore.
	Suffix string
	// Version is Suffix parsed, set by the version predicate.
	Version semver.Version
}

// FilterInput is the fixed context every predicate is evaluated against.
type FilterInput struct {
	// Package is the core package whose volumes are filtered.
	Package system.Package
	// Running is the version of the running system.
	Running semver.Version
	// RootSources are the devices mounted at "/".
	RootSources []string
	// Resolve maps a device path to its canonical node. Nil compares paths as given.
	Resolve func(path string) string
}

func (in *FilterInput) resolve(path string) string {
	if in.Resolve == nil {
		return path
	}

	return in.Resolve(path)
}

// Predicate keeps or drops one candidate.
type Predicate struct {
	// Name identifies the predicate in logs.
	Name string
	// Keep returns false to drop the candidate.
	Keep func(ctx context.Context, in *FilterInput, c *Candidate) bool
}

// Predicates returns the chain in evaluation order.
func Predicates() []Predicate {
	return []Predicate{
		{Name: "prefix", Keep: HasPackagePrefix},
		{Name: "reserved", Keep: NotReserved},
		{Name: "version", Keep: ParsesAsVersion},
		{Name: "running", Keep: NotRunningVersion},
		{Name: "mounted", Keep: NotMountedAsRoot},
	}
}

// Filter runs every volume through the predicate chain and returns the
// survivors in listing order.
func Filter(ctx context.Context, in *FilterInput, volumes []system.Volume) []Candidate {
	chain := Predicates()
	candidates := make([]Candidate, 0, len(volumes))

	for _, volume := range volumes {
		c := &Candidate{Volume: volume}
		kept := true

		for _, predicate := range chain {
			if !predicate.Keep(ctx, in, c) {
				logger.DebugKV(ctx, "Ignoring LV", "lv", volume.Name, "predicate", predicate.Name)

				kept = false

				break
			}
		}

		if kept {
			candidates = append(candidates, *c)
		}
	}

	return candidates
}

// HasPackagePrefix keeps volumes named "<package>_..." and records the suffix.
func HasPackagePrefix(_ context.Context, in *FilterInput, c *Candidate) bool {
	suffix, found := strings.CutPrefix(c.Volume.Name, in.Package.VolumePrefix())
	if !found {
		return false
	}

	c.Suffix = suffix

	return true
}

// NotReserved drops the state and swap volumes.
func NotReserved(_ context.Context, _ *FilterInput, c *Candidate) bool {
	_, reserved := ReservedSuffixes[c.Suffix]

	return !reserved
}

// ParsesAsVersion drops volumes whose suffix is not a version.
// Such names should not exist, so they are reported but never fatal.
func ParsesAsVersion(ctx context.Context, _ *FilterInput, c *Candidate) bool {
	v, err := system.ParseVersion(c.Suffix)
	if err != nil {
		logger.WarnKV(ctx, "Could not parse LV suffix as a version", "lv", c.Volume.Name, "suffix", c.Suffix)
		return false
	}

	c.Version = v

	return true
}

// NotRunningVersion drops the volume labelled with the running version.
func NotRunningVersion(ctx context.Context, in *FilterInput, c *Candidate) bool {
	logger.DebugKV(ctx, "Comparing versions", "lv", c.Version.String(), "running", in.Running.String())

	return !c.Version.Equals(in.Running)
}

// NotMountedAsRoot drops the volume whose mapped device is mounted at "/".
// This holds even when the version labels disagree with what is mounted.
// Both sides are compared by name and by canonical node, since udev links
// /dev/mapper and /dev/<vg> names to /dev/dm-N.
func NotMountedAsRoot(ctx context.Context, in *FilterInput, c *Candidate) bool {
	mapped := in.Package.MappedDeviceName(c.Volume.Name, c.Suffix)
	path := c.Volume.Path()
	devices := []string{mapped, path, in.resolve(mapped), in.resolve(path)}

	for _, source := range in.RootSources {
		if slices.Contains(devices, source) || slices.Contains(devices, in.resolve(source)) {
			logger.WarnKV(ctx, "Ignoring destination currently in use", "lv", c.Volume.Name, "device", source)
			return false
		}
	}

	return true
}

// CanonicalPath resolves symbolic links in a device path. Paths that cannot be
// resolved, like devices that do not exist yet, are returned cleaned.
func CanonicalPath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return filepath.Clean(path)
	}

	return resolved
}
