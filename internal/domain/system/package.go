package system

import (
	"strings"
)

// Kind enumerates the packages the updater knows how to install.
type Kind int

const (
	// KindCore is the root filesystem image written to a logical volume.
	KindCore Kind = iota
	// KindEfiboot is the EFI boot binary published as a boot entry.
	KindEfiboot
)

const (
	// DefaultCoreSize is used when the configuration does not set a core volume size.
	DefaultCoreSize = "500M"

	// DefaultMappedDevice is the device-mapper name template of a verity-mapped core volume.
	// {name} is replaced by the volume name and {version} by its version suffix.
	DefaultMappedDevice = "/dev/mapper/verity_{name}_{version}"
)

// String returns the package name derived from the kind.
func (k Kind) String() string {
	switch k {
	case KindCore:
		return "core"
	case KindEfiboot:
		return "efiboot"
	default:
		return "unknown"
	}
}

// Package describes one installable artifact of the system.
type Package struct {
	// Kind selects the installation strategy.
	Kind Kind
	// Name is derived from Kind and used in file, URL and volume names.
	Name string
	// Destination is the volume group (core) or the boot entries directory (efiboot).
	Destination string
	// Size is the allocation for a newly created core volume, LVM notation.
	Size string
	// MappedDevice is the mapped device name template for core volumes.
	MappedDevice string
}

// NewPackage creates a package descriptor for the given kind.
// Size and the mapped device template only apply to core packages.
func NewPackage(kind Kind, destination, size string) Package {
	pkg := Package{
		Kind:        kind,
		Name:        kind.String(),
		Destination: destination,
	}

	if kind == KindCore {
		pkg.Size = size
		if pkg.Size == "" {
			pkg.Size = DefaultCoreSize
		}

		pkg.MappedDevice = DefaultMappedDevice
	}

	return pkg
}

// WithMappedDevice returns a copy of the package using another mapped device template.
func (p Package) WithMappedDevice(template string) Package {
	if template != "" {
		p.MappedDevice = template
	}

	return p
}

// VolumePrefix is the prefix shared by every versioned volume of the package.
func (p Package) VolumePrefix() string {
	return p.Name + "_"
}

// VolumeName returns the volume name holding the given version of the package.
func (p Package) VolumeName(version string) string {
	return p.VolumePrefix() + version
}

// MappedDeviceName returns the kernel-visible device of a volume once the
// integrity mapping layer is set up on top of it.
func (p Package) MappedDeviceName(volumeName, suffix string) string {
	template := p.MappedDevice
	if template == "" {
		template = DefaultMappedDevice
	}

	return strings.NewReplacer("{name}", volumeName, "{version}", suffix).Replace(template)
}
