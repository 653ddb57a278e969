package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"parking-service/internal/types"
)

var (
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableFlagStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show the state of the running service",
		GroupID: gControl,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := newAPIClient().GetStatus()
			if err != nil {
				return err
			}
			printStatus(cmd, status)
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, status types.Status) {
	cmd.Println(bold("Parking status:"))
	cmd.Printf("  Phase:     %s (%d)\n", phaseText(status), status.PhaseOrdinal)
	cmd.Printf("  Message:   %s\n", status.Message)
	cmd.Printf("  Active:    %s\n", bool2Text(status.Active))
	cmd.Printf("  Completed: %s\n", bool2Text(status.Completed))
	if status.AttemptID != "" {
		cmd.Printf("  Attempt:   %s\n", status.AttemptID)
	}
	if status.Bias != types.BiasNone {
		cmd.Printf("  Bias:      %s\n", color.YellowString(string(status.Bias)))
	}
	cmd.Println()
	printSensorTable(cmd, status)
}

// printSensorTable renders distances and detection flags, one row per
// sensor in mounting order.
func printSensorTable(cmd *cobra.Command, status types.Status) {
	rows := make([][]string, 0, len(types.AllSensors()))
	for _, name := range types.AllSensors() {
		detected := ""
		if status.SensorFlags[name] {
			detected = "✔"
		}
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%.1f", status.SensorDistances[name]),
			detected,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Sensor", "Distance (cm)", "Detected").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 0:
				return tableNameStyle
			case col == 2:
				return tableFlagStyle
			}
			return tableCellStyle
		})
	cmd.Println(t.Render())
}

func phaseText(status types.Status) string {
	switch {
	case status.Completed:
		return color.New(color.Bold, color.FgGreen).Sprint(status.Phase)
	case status.Active:
		return color.New(color.Bold, color.FgCyan).Sprint(status.Phase)
	}
	return status.Phase
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
