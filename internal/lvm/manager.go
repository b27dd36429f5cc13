package lvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
)

// ErrUnexpectedReport is returned when a JSON report does not have the expected shape.
var ErrUnexpectedReport = errors.New("unexpected format for the LVM JSON report")

type vgsReport struct {
	Report []struct {
		VG []struct {
			Name string `json:"vg_name"`
		} `json:"vg"`
	} `json:"report"`
}

type lvsReport struct {
	Report []struct {
		LV []struct {
			Name  string `json:"lv_name"`
			Group string `json:"vg_name"`
			Size  string `json:"lv_size"`
		} `json:"lv"`
	} `json:"report"`
}

// Manager lists, creates and renames logical volumes.
type Manager struct {
	run Runner
}

// NewManager creates a manager. A nil runner executes commands on the host.
func NewManager(run Runner) *Manager {
	if run == nil {
		run = ExecRunner
	}

	return &Manager{run: run}
}

// GroupExists reports whether the volume group exists.
func (m *Manager) GroupExists(ctx context.Context, group string) (bool, error) {
	logger.DebugKV(ctx, "Looking for VG", "vg", group)

	var report vgsReport
	if err := m.runJSON(ctx, &report, "vgs"); err != nil {
		return false, err
	}

	if len(report.Report) == 0 {
		return false, fmt.Errorf("%w: vgs", ErrUnexpectedReport)
	}

	for _, vg := range report.Report[0].VG {
		if vg.Name == group {
			return true, nil
		}
	}

	return false, nil
}

// ListVolumes returns the logical volumes of group in the order LVM reports them.
func (m *Manager) ListVolumes(ctx context.Context, group string) ([]system.Volume, error) {
	logger.DebugKV(ctx, "Listing all available LV", "vg", group)

	var report lvsReport
	if err := m.runJSON(ctx, &report, "lvs", "--units", "b", "--nosuffix", group); err != nil {
		return nil, err
	}

	if len(report.Report) == 0 {
		return nil, fmt.Errorf("%w: lvs %s", ErrUnexpectedReport, group)
	}

	volumes := make([]system.Volume, 0, len(report.Report[0].LV))

	for _, lv := range report.Report[0].LV {
		size, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimSpace(lv.Size), "B"), 10, 64)
		if err != nil {
			logger.DebugKV(ctx, "Could not parse LV size", "lv", lv.Name, "size", lv.Size)

			size = 0
		}

		volumes = append(volumes, system.Volume{
			Name:  lv.Name,
			Group: group,
			Size:  size,
		})
	}

	return volumes, nil
}

// CreateVolume creates a logical volume of at least size bytes.
func (m *Manager) CreateVolume(ctx context.Context, group, name string, size uint64) (system.Volume, error) {
	logger.DebugKV(ctx, "Creating LV", "lv", name, "vg", group, "bytes", size)

	sizeArg := strconv.FormatUint(size, 10) + "b"
	if _, err := m.run(ctx, "lvcreate", "--yes", "-L", sizeArg, "-n", name, group); err != nil {
		return system.Volume{}, err
	}

	return system.Volume{
		Name:  name,
		Group: group,
		Size:  size,
	}, nil
}

// RenameVolume renames volume inside its group.
func (m *Manager) RenameVolume(ctx context.Context, volume system.Volume, newName string) (system.Volume, error) {
	logger.DebugKV(ctx, "Renaming LV", "from", volume.Name, "to", newName, "vg", volume.Group)

	if _, err := m.run(ctx, "lvrename", volume.Group, volume.Name, newName); err != nil {
		return system.Volume{}, err
	}

	volume.Name = newName

	return volume, nil
}

// runJSON runs an LVM reporting command and decodes its JSON output into out.
func (m *Manager) runJSON(ctx context.Context, out any, name string, args ...string) error {
	output, err := m.run(ctx, name, append([]string{"--reportformat", "json"}, args...)...)
	if err != nil {
		return err
	}

	if err = json.Unmarshal(output, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnexpectedReport, name, err)
	}

	return nil
}
