package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/moby/sys/mountinfo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/os-updater/internal/lvm"
)

// lvmHost simulates LVM: volumes live in memory and their block devices are
// files of the shared filesystem.
type lvmHost struct {
	mu       sync.Mutex
	fs       afero.Fs
	group    string
	volumes  []hostVolume
	commands []string
}

type hostVolume struct {
	name string
	size uint64
}

func newLVMHost(t *testing.T, fs afero.Fs, group string, volumes map[string][]byte) *lvmHost {
	t.Helper()

	h := &lvmHost{fs: fs, group: group}

	for _, name := range slices.Sorted(maps.Keys(volumes)) {
		content := volumes[name]
		h.volumes = append(h.volumes, hostVolume{name: name, size: uint64(len(content))})
		require.NoError(t, afero.WriteFile(fs, h.devicePath(name), content, 0o600))
	}

	return h
}

func (h *lvmHost) devicePath(name string) string {
	return "/dev/" + h.group + "/" + name
}

func (h *lvmHost) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.volumes))
	for _, v := range h.volumes {
		names = append(names, v.name)
	}

	return names
}

func (h *lvmHost) run(_ context.Context, name string, args ...string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.commands = append(h.commands, strings.Join(append([]string{name}, args...), " "))

	switch name {
	case "vgs":
		return json.Marshal(map[string]any{
			"report": []any{map[string]any{"vg": []any{map[string]string{"vg_name": h.group}}}},
		})
	case "lvs":
		lvs := make([]map[string]string, 0, len(h.volumes))
		for _, v := range h.volumes {
			lvs = append(lvs, map[string]string{
				"lv_name": v.name,
				"vg_name": h.group,
				"lv_size": strconv.FormatUint(v.size, 10),
			})
		}

		return json.Marshal(map[string]any{"report": []any{map[string]any{"lv": lvs}}})
	case "lvcreate":
		// lvcreate --yes -L <n>b -n <name> <group>
		size, err := strconv.ParseUint(strings.TrimSuffix(args[2], "b"), 10, 64)
		if err != nil {
			return nil, err
		}

		h.volumes = append(h.volumes, hostVolume{name: args[4], size: size})

		return nil, afero.WriteFile(h.fs, h.devicePath(args[4]), nil, 0o600)
	case "lvrename":
		// lvrename <group> <old> <new>
		for i := range h.volumes {
			if h.volumes[i].name == args[1] {
				h.volumes[i].name = args[2]
				return nil, h.fs.Rename(h.devicePath(args[1]), h.devicePath(args[2]))
			}
		}

		return nil, &lvm.CommandError{Command: name, Stderr: "Existing logical volume not found", Err: errors.New("exit status 5")}
	default:
		return nil, fmt.Errorf("unexpected command %s", name)
	}
}

// ran reports whether a command named name was executed.
func (h *lvmHost) ran(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, command := range h.commands {
		if command == name || strings.HasPrefix(command, name+" ") {
			return true
		}
	}

	return false
}

// rootMountedOn returns a mount table with source mounted at "/".
func rootMountedOn(source string) func(mountinfo.FilterFunc) ([]*mountinfo.Info, error) {
	return func(mountinfo.FilterFunc) ([]*mountinfo.Info, error) {
		return []*mountinfo.Info{
			{Source: "proc", Mountpoint: "/proc", FSType: "proc"},
			{Source: source, Mountpoint: "/", FSType: "ext4"},
			{Source: "/dev/mainvg/core_state", Mountpoint: "/mnt/state", FSType: "ext4"},
			{Source: "/dev/sda1", Mountpoint: "/efi", FSType: "vfat"},
		}, nil
	}
}
