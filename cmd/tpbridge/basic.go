package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/extra-connectors/tpbridge/pkg/router"
	"github.com/extra-connectors/tpbridge/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewStatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "states [id]",
		Short:   "List dashboard states",
		GroupID: gBasic,
		Long: `List the latest value of every dashboard state the daemon has produced.

With an id, print only that state.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				st, err := apiClient().GetState(args[0])
				if err != nil {
					return err
				}
				cmd.Println(st.Value)
				return nil
			}

			states, err := apiClient().GetStates()
			if err != nil {
				return err
			}
			for _, st := range states {
				cmd.Printf("%s = %s (%s)\n", bold("%s", st.ID), st.Value, st.UpdatedAt.Format("15:04:05"))
			}
			return nil
		},
	}
}

func NewLockCommand() *cobra.Command {
	newAction := func(a router.LockAction) *cobra.Command {
		return &cobra.Command{
			Use:   strings.ToLower(string(a)),
			Short: string(a) + " the keyboard lock",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient().SetLock(string(a))
				if err != nil {
					return fmt.Errorf("failed to send %s: %v", strings.ToLower(string(a)), err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
				return nil
			},
		}
	}

	cmd := &cobra.Command{
		Use:     "lock",
		Short:   "Control the keyboard lock",
		GroupID: gBasic,
		Long: `Ask the downstream peer to toggle, enable or disable the keyboard lock.

The request is sent on the outbound endpoint. The new lock state shows up once
the peer reports it back.`,
	}
	cmd.AddCommand(
		newAction(router.LockToggle),
		newAction(router.LockEnable),
		newAction(router.LockDisable),
	)

	return cmd
}

func NewRenderCommand() *cobra.Command {
	output := "battery.png"

	cmd := &cobra.Command{
		Use:     "render",
		Short:   "Save the battery dashboard image",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			png, err := apiClient().GetImage()
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(png)
				return err
			}
			if err := os.WriteFile(output, png, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			logrus.Infof("dashboard written to %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", output, "output file, - for stdout")

	return cmd
}
