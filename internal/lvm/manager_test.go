package lvm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/os-updater/internal/domain/system"
)

const (
	vgsOutput = `{
      "report": [
          {
              "vg": [
                  {"vg_name":"mainvg", "pv_count":"1", "lv_count":"4", "snap_count":"0", "vg_attr":"wz--n-", "vg_size":"<31.00g", "vg_free":"<10.00g"}
              ]
          }
      ]
  }`

	lvsOutput = `{
      "report": [
          {
              "lv": [
                  {"lv_name":"core_1.0.0", "vg_name":"mainvg", "lv_attr":"-wi-ao----", "lv_size":"4294967296"},
                  {"lv_name":"core_state", "vg_name":"mainvg", "lv_attr":"-wi-ao----", "lv_size":"1073741824"},
                  {"lv_name":"core_0.9.0", "vg_name":"mainvg", "lv_attr":"-wi-a-----", "lv_size":"4294967296"}
              ]
          }
      ]
  }`
)

// recorder is a Runner returning canned outputs keyed by command name.
type recorder struct {
	outputs  map[string]string
	failures map[string]error
	commands []string
}

func (r *recorder) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.commands = append(r.commands, strings.Join(append([]string{name}, args...), " "))

	if err, ok := r.failures[name]; ok {
		return nil, err
	}

	return []byte(r.outputs[name]), nil
}

// TestGroupExists parses the vgs report.
func TestGroupExists(t *testing.T) {
	t.Parallel()

	r := &recorder{outputs: map[string]string{"vgs": vgsOutput}}
	m := NewManager(r.run)

	found, err := m.GroupExists(context.Background(), "mainvg")
	require.NoError(t, err)
	require.True(t, found)

	found, err = m.GroupExists(context.Background(), "othervg")
	require.NoError(t, err)
	require.False(t, found)

	require.Equal(t, "vgs --reportformat json", r.commands[0])
}

// TestListVolumes parses the lvs report and keeps LVM ordering.
func TestListVolumes(t *testing.T) {
	t.Parallel()

	r := &recorder{outputs: map[string]string{"lvs": lvsOutput}}
	m := NewManager(r.run)

	volumes, err := m.ListVolumes(context.Background(), "mainvg")
	require.NoError(t, err)
	require.Equal(t, []system.Volume{
		{Name: "core_1.0.0", Group: "mainvg", Size: 4294967296},
		{Name: "core_state", Group: "mainvg", Size: 1073741824},
		{Name: "core_0.9.0", Group: "mainvg", Size: 4294967296},
	}, volumes)
	require.Equal(t, "lvs --reportformat json --units b --nosuffix mainvg", r.commands[0])
}

// TestListVolumes_BadReport rejects malformed and empty reports.
func TestListVolumes_BadReport(t *testing.T) {
	t.Parallel()

	for _, output := range []string{"not json", `{"report": []}`} {
		m := NewManager((&recorder{outputs: map[string]string{"lvs": output}}).run)

		_, err := m.ListVolumes(context.Background(), "mainvg")
		require.ErrorIs(t, err, ErrUnexpectedReport)
	}
}

// TestCreateAndRename builds the expected command lines.
func TestCreateAndRename(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	m := NewManager(r.run)

	created, err := m.CreateVolume(context.Background(), "mainvg", "core_1.1.0", 524288000)
	require.NoError(t, err)
	require.Equal(t, system.Volume{Name: "core_1.1.0", Group: "mainvg", Size: 524288000}, created)

	renamed, err := m.RenameVolume(context.Background(), system.Volume{Name: "core_0.9.0", Group: "mainvg"}, "core_1.1.0")
	require.NoError(t, err)
	require.Equal(t, "core_1.1.0", renamed.Name)

	require.Equal(t, []string{
		"lvcreate --yes -L 524288000b -n core_1.1.0 mainvg",
		"lvrename mainvg core_0.9.0 core_1.1.0",
	}, r.commands)
}

// TestCommandError keeps command and stderr in the message.
func TestCommandError(t *testing.T) {
	t.Parallel()

	failure := &CommandError{
		Command: "lvrename mainvg core_0.9.0 core_1.1.0",
		Stderr:  "Logical volume \"core_1.1.0\" already exists in volume group \"mainvg\"",
		Err:     errors.New("exit status 5"),
	}

	m := NewManager((&recorder{failures: map[string]error{"lvrename": failure}}).run)

	_, err := m.RenameVolume(context.Background(), system.Volume{Name: "core_0.9.0", Group: "mainvg"}, "core_1.1.0")
	require.True(t, IsCommandError(err))
	require.Contains(t, err.Error(), "lvrename mainvg core_0.9.0 core_1.1.0")
	require.Contains(t, err.Error(), "already exists")
}

// TestExecRunner captures stderr of failing commands.
func TestExecRunner(t *testing.T) {
	t.Parallel()

	out, err := ExecRunner(context.Background(), "sh", "-c", "printf ok")
	require.NoError(t, err)
	require.Equal(t, "ok", string(out))

	_, err = ExecRunner(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.True(t, IsCommandError(err))
	require.Contains(t, err.Error(), "broken")
}
