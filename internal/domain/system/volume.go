package system

// RootMountPoint is the mount point of the running root filesystem.
const RootMountPoint = "/"

// Volume is a logical volume as reported by the volume manager.
type Volume struct {
	// Name is the volume name inside its group.
	Name string
	// Group is the owning volume group.
	Group string
	// Size is the capacity in bytes, zero when unknown.
	Size uint64
}

// Path returns the device path of the volume.
func (v Volume) Path() string {
	return "/dev/" + v.Group + "/" + v.Name
}

// MountEntry is one line of the live mount table.
type MountEntry struct {
	// Source is the mounted device.
	Source string
	// MountPoint is where the device is mounted.
	MountPoint string
}

// RootSources returns every device mounted at the root mount point.
// Stacked mounts can show more than one.
func RootSources(entries []MountEntry) []string {
	var sources []string

	for _, entry := range entries {
		if entry.MountPoint == RootMountPoint {
			sources = append(sources, entry.Source)
		}
	}

	return sources
}
