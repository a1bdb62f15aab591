package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitDir  = "/etc/systemd/system"
	unitName = "tpbridge.service"
	unitPath = filepath.Join(unitDir, unitName)

	systemctl = "systemctl"
)

const unitTemplate = `[Unit]
Description=tpbridge telemetry bridge
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{exec}}
Restart=on-failure
RestartSec=3

[Install]
WantedBy=multi-user.target
`

// Unit renders the systemd unit that runs exePath with args.
func Unit(exePath string, args ...string) string {
	cmdline := append([]string{exePath}, args...)
	return strings.ReplaceAll(unitTemplate, "{{exec}}", strings.Join(cmdline, " "))
}

// Install writes the systemd unit for the current executable and starts it.
// args are appended to the daemon command line.
func Install(args ...string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	unit := Unit(exePath, append([]string{"daemon"}, args...)...)

	logrus.Infof("writing systemd unit to %s", unitDir)

	err = os.MkdirAll(unitDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}

	// warn if the file already exists
	_, err = os.Stat(unitPath)
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(unit), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting tpbridge")

	for _, sub := range [][]string{
		{"daemon-reload"},
		{"enable", "--now", unitName},
	} {
		if out, err := exec.Command(systemctl, sub...).CombinedOutput(); err != nil {
			return fmt.Errorf("systemctl %s failed: %w: %s", strings.Join(sub, " "), err, strings.TrimSpace(string(out)))
		}
	}

	return nil
}
