package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/os-updater/internal/config"
	"github.com/oshokin/os-updater/internal/logger"
	"github.com/oshokin/os-updater/internal/service/updater"
	"github.com/oshokin/os-updater/internal/version"
)

var (
	// verbosity is the number of -v flags.
	verbosity int
	// options collects the flags shared by every subcommand.
	options = &updater.Options{}

	// rootCmd checks for an update and installs it.
	rootCmd = &cobra.Command{
		Use:   version.Name,
		Short: "Install signed OS updates on the inactive A/B volume",
		Long: "Check the update server for a newer OS version, download and verify its core image and boot " +
			"binary, write the image to an inactive logical volume and publish the new boot entry.\n\n" +
			"Running it on a system that is not laid out for A/B updates destroys data.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.Configure(verbosity)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return updater.Run(ctx, options)
		},
	}

	// checkCmd only queries the update server.
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Report whether a newer OS version is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			target, err := updater.Check(ctx, options)
			if err != nil {
				return err
			}

			if target == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "up to date")
				return nil
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "update available: %s\n", target)

			return nil
		},
	}

	// statusCmd prints the local update state.
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the pending reboot marker, interrupted installs and boot entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return updater.WriteStatus(cmd.Context(), options, cmd.OutOrStdout())
		},
	}
)

// Execute runs the os-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Error(context.Background(), err)
		os.Exit(1)
	}
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()

	flags.CountVarP(&verbosity, "verbose", "v", "verbose mode (-v, -vv)")
	flags.StringVarP(&options.Paths.ConfigDir, "config", "c", config.DefaultConfigDir,
		"path to system configuration files (config.toml & pubkey)")
	flags.StringVarP(&options.Paths.RemoteDir, "remote", "r", config.DefaultRemoteDir,
		"path to remote configuration files (remote.toml & rootca.pem)")
	flags.StringVarP(&options.Paths.CacheDir, "tmp", "t", config.DefaultCacheDir,
		"path to the folder used to download update payloads")
	flags.StringVar(&options.MarkerPath, "marker", updater.DefaultMarkerPath,
		"completion marker created once an update is installed")
	flags.DurationVar(&options.Timeout, "timeout", time.Duration(0),
		"deadline of every request, 0 waits forever")

	rootCmd.Flags().BoolVar(&options.Force, "force", false, "check for updates even if a reboot is pending")
	rootCmd.Flags().BoolVar(&options.Reboot, "reboot", false, "reboot once the update is installed")

	rootCmd.AddCommand(checkCmd, statusCmd)
}
