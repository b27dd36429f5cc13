package power

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oshokin/os-updater/internal/logger"
)

// Starter starts a command without waiting for it to finish.
type Starter func(ctx context.Context, name string, args ...string) error

// ExecStarter starts the command on the host.
func ExecStarter(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Start()
}

// Reboot asks systemd for a clean reboot. The command is started
// asynchronously; the service manager takes over the rest.
func Reboot(ctx context.Context, start Starter) error {
	if start == nil {
		start = ExecStarter
	}

	args := []string{"reboot"}

	logger.InfoKV(ctx, "Rebooting into the new version", "command", "systemctl "+strings.Join(args, " "))

	if err := start(ctx, "systemctl", args...); err != nil {
		return fmt.Errorf("start systemctl reboot: %w", err)
	}

	return nil
}
