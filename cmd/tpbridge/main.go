package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/extra-connectors/tpbridge/pkg/client"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/tpbridge.sock"
	configPath     = "/etc/tpbridge.json"
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: tpbridge daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you installed it?")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
	} else if errors.Is(err, client.ErrUnavailable) {
		fmt.Fprintln(os.Stderr, "\nError: the daemon cannot serve this request right now")
		fmt.Fprintln(os.Stderr, "Check the daemon logs for transport or asset errors.")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tpbridge",
		Short: "tpbridge bridges telemetry frames to dashboard states",
		Long: `tpbridge receives topic-tagged telemetry frames over ZeroMQ or NATS, turns them
into dashboard state updates and renders a battery overview image for
headsets, earbuds and mice.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			// The daemon does not talk to itself.
			if cmd.Name() == "daemon" || cmd.GroupID == gInstallation {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. Reinstall the daemon with this binary to make both the same version.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("tpbridge daemon is too old to report its version.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "tpbridge daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewStatesCommand(),
		NewLockCommand(),
		NewRenderCommand(),
		NewLockLabelsCommand(),
		NewHandlerErrorPolicyCommand(),
		NewClockScheduleCommand(),
		NewSendCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
