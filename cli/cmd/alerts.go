package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentrix-systems/sentrix/cli/pkg/output"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and manage alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts for a user, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		alerts, total, err := apiClient().ListAlerts(cmd.Context(), userID)
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return output.JSON(alerts)
		}

		table := output.NewTable([]string{"ID", "SEVERITY", "TITLE", "READ", "TIME"})
		for _, a := range alerts {
			read := ""
			if a.Read {
				read = "yes"
			}
			table.AddRow([]string{a.ID, string(a.Severity), a.Title, read, a.Timestamp.Format(time.RFC3339)})
		}
		table.Render()
		output.Info("%d of %d alerts", len(alerts), total)
		return nil
	},
}

var alertsReadCmd = &cobra.Command{
	Use:   "read <alert-id>",
	Short: "Mark an alert as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if err := apiClient().MarkAlertRead(cmd.Context(), args[0], userID); err != nil {
			return err
		}
		output.Success("Alert marked read")
		return nil
	},
}

var alertsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all alerts for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		cleared, err := apiClient().ClearAlerts(cmd.Context(), userID)
		if err != nil {
			return err
		}
		output.Success("Cleared %d alerts", cleared)
		return nil
	},
}

var threatsCmd = &cobra.Command{
	Use:   "threats",
	Short: "List detected threats",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		threats, total, err := apiClient().ListThreats(cmd.Context(), userID)
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return output.JSON(threats)
		}

		table := output.NewTable([]string{"ID", "TYPE", "SIGNATURE", "SEVERITY", "CONFIDENCE", "TIME"})
		for _, t := range threats {
			table.AddRow([]string{t.ID, t.ThreatType, t.SignatureName, string(t.Severity),
				strconv.Itoa(t.Confidence), t.CreatedAt.Format(time.RFC3339)})
		}
		table.Render()
		output.Info("%d of %d threats", len(threats), total)
		return nil
	},
}

func init() {
	alertsListCmd.Flags().String("user", "", "owning user ID")
	alertsListCmd.MarkFlagRequired("user")
	alertsReadCmd.Flags().String("user", "", "owning user ID")
	alertsClearCmd.Flags().String("user", "", "owning user ID")
	alertsClearCmd.MarkFlagRequired("user")
	threatsCmd.Flags().String("user", "", "owning user ID")
	threatsCmd.MarkFlagRequired("user")

	alertsCmd.AddCommand(alertsListCmd, alertsReadCmd, alertsClearCmd)
	rootCmd.AddCommand(alertsCmd, threatsCmd)
}
