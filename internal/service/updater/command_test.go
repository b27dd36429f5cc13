package updater

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/os-updater/internal/config"
	"github.com/oshokin/os-updater/internal/repository/state"
	"github.com/oshokin/os-updater/internal/service/common"
)

type fakeProcess struct {
	pid        int
	executable string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return p.executable }

func noProcesses() ([]ps.Process, error) { return nil, nil }

func silent() Notifier { return NotifierFunc(func(context.Context, string) {}) }

func TestRunSkipsWhenRebootPending(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	marker := state.NewFileRepository[state.Marker](fs, "/run/update_ready")
	require.NoError(t, marker.Save(t.Context(), &state.Marker{OSName: "clipos", From: "1.0.0", To: "1.1.0"}))

	// Nothing else exists: any attempt to load the configuration would fail.
	err := Run(t.Context(), &Options{Fs: fs, Processes: noProcesses, Notifier: silent()})
	require.NoError(t, err)
}

func TestRunForceIgnoresMarker(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, DefaultMarkerPath, nil, 0o600))

	err := Run(t.Context(), &Options{Fs: fs, Force: true, Processes: noProcesses, Notifier: silent()})
	require.ErrorIs(t, err, config.ErrConfig)
}

func TestRunRefusesConcurrentInstance(t *testing.T) {
	t.Parallel()

	name := common.ExecutableName()
	if len(name) > 15 {
		name = name[:15]
	}

	others := func() ([]ps.Process, error) {
		return []ps.Process{fakeProcess{pid: os.Getpid() + 1, executable: name}}, nil
	}

	err := Run(t.Context(), &Options{Fs: afero.NewMemMapFs(), Processes: others, Notifier: silent()})
	require.ErrorIs(t, err, errUpdaterAlreadyRunning)
}

func TestWriteStatus(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	paths := config.Paths{
		ConfigDir: "/usr/lib/updater",
		CacheDir:  "/var/lib/updater",
		OSRelease: "/etc/os-release",
	}

	require.NoError(t, afero.WriteFile(fs, "/usr/lib/updater/config.toml", []byte(`
os_name = "clipos"
[core]
destination = "mainvg"
[efiboot]
destination = "/efi"
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/os-release", []byte("VERSION_ID=1.0.0\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/efi/clipos-1.0.0.efi", []byte("efi"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/efi/clipos-1.1.0.efi.new", []byte("ef"), 0o644))

	journal := state.NewFileRepository[state.Journal](fs, "/var/lib/updater/clipos-install.yaml")
	require.NoError(t, journal.Save(t.Context(), &state.Journal{
		OSName: "clipos",
		Phase:  string(PhaseWritingCore),
		From:   "1.0.0",
		Target: "1.1.0",
		Volume: "/dev/mainvg/core_1.1.0",
	}))

	var out bytes.Buffer
	require.NoError(t, WriteStatus(t.Context(), &Options{Fs: fs, Paths: paths}, &out))

	var status Status
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &status))
	require.Equal(t, "1.0.0", status.Running)
	require.False(t, status.RebootRequired)
	require.Nil(t, status.Marker)
	require.NotNil(t, status.Journal)
	require.Equal(t, "WritingCore", status.Journal.Phase)
	require.Equal(t, []string{"clipos-1.0.0.efi"}, status.BootEntries)
	require.Equal(t, []string{"clipos-1.1.0.efi.new"}, status.StagedEntries)
}
