package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewLockLabelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "lock-labels [locked] [unlocked]",
		Short:   "Set the labels shown for the keyboard lock state",
		GroupID: gAdvanced,
		Long: `Set the labels shown for the keyboard lock state.

The daemon saves them to its config file and restarts the bridge so the new
labels take effect on the next lock frame.`,
		RunE: func(_ *cobra.Command, args []string) error {
			if err := parseArgs(args, 2, "locked", "unlocked"); err != nil {
				return err
			}

			ret, err := apiClient().SetLockLabels(args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to set lock labels: %v", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set lock labels to %s/%s", args[0], args[1])

			return nil
		},
	}
}

func NewHandlerErrorPolicyCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "handler-error-policy [nack|fatal]",
		Short:   "Set what a failing handler does to the bridge",
		GroupID: gAdvanced,
		Long: `Set what a failing handler does to the bridge.

nack replies ERR and keeps receiving. fatal replies ERR and stops the daemon
with the handler error.`,
		ValidArgs: []string{"nack", "fatal"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			ret, err := apiClient().SetHandlerErrorPolicy(args[0])
			if err != nil {
				return fmt.Errorf("failed to set handler error policy: %v", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set handler error policy to %s", args[0])

			return nil
		},
	}
}

func NewClockScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "clock-schedule [cron spec]",
		Short:   "Set how often the clock state is refreshed",
		GroupID: gAdvanced,
		Long: `Set how often the clock state is refreshed, as a cron spec.

Five fields are minutes, six fields add seconds in front. Descriptors such as
@hourly work too. For example:
  tpbridge clock-schedule "*/30 * * * * *"`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ret, err := apiClient().SetClockSchedule(args[0])
			if err != nil {
				return fmt.Errorf("failed to set clock schedule: %v", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set clock schedule to %q", args[0])

			return nil
		},
	}
}

func NewSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "send [topic] [payload]",
		Short:   "Dispatch a frame as if it arrived on the inbound endpoint",
		GroupID: gAdvanced,
		Long: `Dispatch a frame through the daemon's router as if it arrived on the inbound
endpoint, and print the reply token it would have sent back.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().SendFrame(args[0], args[1])
			if err != nil {
				return err
			}

			cmd.Println(bold("%s", resp.Reply))
			if resp.StateID != "" {
				cmd.Printf("  %s = %s\n", resp.StateID, resp.Value)
			}
			if resp.Error != "" {
				return fmt.Errorf("%s", resp.Error)
			}
			return nil
		},
	}
}
