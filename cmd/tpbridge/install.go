package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/extra-connectors/tpbridge/pkg/config"
	daemonutils "github.com/extra-connectors/tpbridge/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install tpbridge (system-wide)",
		GroupID: gInstallation,
		Long: `Install tpbridge daemon as a systemd service.

This makes tpbridge run in the background and automatically start on boot. You must run this command as root.

By default, only root is allowed to access the daemon socket. Use --allow-non-root-access to let every local user query the daemon without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return pkgerrors.Wrapf(err, "invalid config %s", configPath)
			}
			// An existing file keeps its comments.
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := conf.Save(); err != nil {
					return pkgerrors.Wrapf(err, "failed to save config")
				}
			}

			args := []string{"--config", configPath, "--daemon-socket", unixSocketPath}
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the tpbridge daemon.")
				args = append(args, "--always-allow-non-root-access")
			} else {
				logrus.Info("only root user is allowed to access the tpbridge daemon.")
			}

			err = daemonutils.Install(args...)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `tpbridge install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access tpbridge daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall tpbridge (system-wide)",
		GroupID: gInstallation,
		Long: `Uninstall tpbridge daemon from systemd.

This stops tpbridge and removes its unit file.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `tpbridge' again. If you want a complete uninstall, you can remove both config file and tpbridge itself manually.\n", configPath)

			return nil
		},
	}
}
