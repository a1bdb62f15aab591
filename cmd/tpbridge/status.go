package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/extra-connectors/tpbridge/pkg/battery"
	"github.com/extra-connectors/tpbridge/pkg/types"
)

type statusData struct {
	status *types.Status
	gauges []battery.GaugeReport
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	c := apiClient()

	st, err := c.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	gauges, err := c.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to get battery snapshot: %w", err)
	}

	return &statusData{
		status: st,
		gauges: gauges,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of tpbridge",
		Long:    `Get bridge status, transport endpoints and the latest battery readings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}
			st := data.status

			cmd.Println(bold("Bridge:"))
			cmd.Printf("  Transport: %s (%s)\n", bold("%s", st.Transport), st.Pattern)
			cmd.Printf("  Inbound: %s\n", bold("%s", st.Inbound))
			cmd.Printf("  Outbound: %s\n", bold("%s", st.Outbound))
			cmd.Printf("  State: %s\n", bold("%s", st.Bridge))
			cmd.Printf("  Clock running: %s\n", bool2Text(st.TickerRunning))
			cmd.Printf("  Known states: %s\n", bold("%d", st.States))
			cmd.Printf("  Live listeners: %s\n", bold("%d", st.Listeners))

			cmd.Println()

			cmd.Println(bold("Battery status:"))
			for _, g := range data.gauges {
				level := "n/a"
				if g.Percent != nil {
					level = levelText(*g.Percent)
				}
				cmd.Printf("  %-10s %s  %s\n", g.Gauge+":", level, g.StatusName)
			}
			return nil
		},
	}
}
