package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/extra-connectors/tpbridge/pkg/client"
	"github.com/extra-connectors/tpbridge/pkg/version"
)

func apiClient() *client.Client {
	return client.NewClient(unixSocketPath)
}

func getVersion() (string, string, error) {
	daemonVersion, err := apiClient().GetVersion()
	if err != nil {
		return version.Version, "", err
	}
	return version.Version, daemonVersion, nil
}

func parseArgs(args []string, n int, names ...string) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments (%v), got %d", n, names, len(args))
	}
	for i, a := range args {
		if a == "" {
			return fmt.Errorf("%s must not be empty", names[i])
		}
	}
	return nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// levelText colors a charge percentage by how full it is.
func levelText(percent float64) string {
	c := color.New(color.Bold, color.FgRed)
	switch {
	case percent >= 50:
		c = color.New(color.Bold, color.FgGreen)
	case percent >= 20:
		c = color.New(color.Bold, color.FgYellow)
	}
	return c.Sprintf("%g%%", percent)
}
