package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

func Uninstall() error {
	logrus.Infof("stopping tpbridge")

	out, err := exec.Command(systemctl, "disable", "--now", unitName).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to disable %s: %w: %s. Are you root?", unitName, err, strings.TrimSpace(string(out)))
	}

	logrus.Infof("removing systemd unit")

	// if the file doesn't exist, we don't need to remove it
	_, err = os.Stat(unitPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", unitPath, err)
	}

	err = os.Remove(unitPath)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", unitPath, err)
	}

	if err := exec.Command(systemctl, "daemon-reload").Run(); err != nil {
		logrus.WithError(err).Warn("systemctl daemon-reload failed")
	}

	return nil
}
