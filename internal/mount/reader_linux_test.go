//go:build linux

package mount

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/moby/sys/mountinfo"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/os-updater/internal/domain/system"
)

const deviceMapperRoot = `21 0 253:0 / / ro,relatime shared:1 - squashfs /dev/mapper/verity_core_0.9.0_0.9.0 ro
22 21 0:5 / /proc rw,nosuid,nodev,noexec,relatime shared:2 - proc proc rw
23 21 0:6 / /dev rw,nosuid shared:3 - devtmpfs devtmpfs rw,mode=755
24 21 253:3 / /mnt/state rw,relatime shared:4 - ext4 /dev/mapper/mainvg-core_state rw
25 21 8:1 / /efi rw,relatime shared:5 - vfat /dev/sda1 rw
`

func tableFromFile(path string) TableFunc {
	return func(filter mountinfo.FilterFunc) ([]*mountinfo.Info, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		return mountinfo.GetMountsFromReader(f, filter)
	}
}

// TestCurrentMounts_KeepsDeviceMapperNames parses a kernel mount table and keeps
// the root source as written, even where udev links it to a dm-N node.
func TestCurrentMounts_KeepsDeviceMapperNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mountinfo")
	require.NoError(t, os.WriteFile(path, []byte(deviceMapperRoot), 0o600))

	entries, err := NewReader(tableFromFile(path)).CurrentMounts(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 5)
	require.Equal(t, []string{"/dev/mapper/verity_core_0.9.0_0.9.0"}, system.RootSources(entries))
}

// TestCurrentMounts_HostTable reads the mount table of this process.
func TestCurrentMounts_HostTable(t *testing.T) {
	t.Parallel()

	if _, err := os.Stat("/proc/self/mountinfo"); err != nil {
		t.Skip("no /proc/self/mountinfo on this host")
	}

	entries, err := NewReader(nil).CurrentMounts(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, system.RootSources(entries))
}
