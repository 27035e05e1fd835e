package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentrix-systems/sentrix/cli/pkg/output"
	"github.com/sentrix-systems/sentrix/internal/models"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage event sources and their API keys",
}

var sourceRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new event source",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		sourceType, _ := cmd.Flags().GetString("type")

		resp, err := apiClient().RegisterSource(cmd.Context(), &models.RegisterSourceRequest{
			UserID:     userID,
			Name:       name,
			SourceType: sourceType,
		})
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return output.JSON(resp)
		}
		output.Success("Source registered: %s", resp.Source.ID)
		output.Warn("API key (shown only once): %s", resp.APIKey)
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List event sources for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		sources, err := apiClient().ListSources(cmd.Context(), userID)
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return output.JSON(sources)
		}

		table := output.NewTable([]string{"ID", "NAME", "TYPE", "DISABLED", "ROTATION"})
		for _, s := range sources {
			rotation := "-"
			if s.RotationExpiresAt != nil {
				rotation = "until " + s.RotationExpiresAt.Format(time.RFC3339)
			}
			table.AddRow([]string{s.ID, s.Name, s.SourceType, fmt.Sprintf("%v", s.Disabled), rotation})
		}
		table.Render()
		return nil
	},
}

var sourceRotateCmd = &cobra.Command{
	Use:   "rotate <source-id>",
	Short: "Rotate the API key with an overlapping grace window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graceSeconds, _ := cmd.Flags().GetInt("grace")

		resp, err := apiClient().RotateKey(cmd.Context(), args[0], graceSeconds)
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return output.JSON(resp)
		}
		output.Success("Key rotated")
		output.Warn("New API key (shown only once): %s", resp.APIKey)
		output.Info("Old key remains valid until %s", resp.RotationExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var sourceExpireCmd = &cobra.Command{
	Use:   "expire-rotation <source-id>",
	Short: "Close an active rotation grace window immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().ExpireRotation(cmd.Context(), args[0]); err != nil {
			return err
		}
		output.Success("Rotation expired, only the current key authenticates")
		return nil
	},
}

var sourceDisableCmd = &cobra.Command{
	Use:   "disable <source-id>",
	Short: "Disable a source without deleting its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().SetSourceDisabled(cmd.Context(), args[0], true); err != nil {
			return err
		}
		output.Success("Source disabled")
		return nil
	},
}

var sourceEnableCmd = &cobra.Command{
	Use:   "enable <source-id>",
	Short: "Re-enable a disabled source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().SetSourceDisabled(cmd.Context(), args[0], false); err != nil {
			return err
		}
		output.Success("Source enabled")
		return nil
	},
}

func init() {
	sourceRegisterCmd.Flags().String("user", "", "owning user ID")
	sourceRegisterCmd.Flags().String("name", "", "source name")
	sourceRegisterCmd.Flags().String("type", "generic", "source type")
	sourceRegisterCmd.MarkFlagRequired("user")
	sourceRegisterCmd.MarkFlagRequired("name")

	sourceListCmd.Flags().String("user", "", "owning user ID")
	sourceListCmd.MarkFlagRequired("user")

	sourceRotateCmd.Flags().Int("grace", 0, "grace window in seconds (0 uses the server default)")

	sourceCmd.AddCommand(sourceRegisterCmd, sourceListCmd, sourceRotateCmd,
		sourceExpireCmd, sourceDisableCmd, sourceEnableCmd)
	rootCmd.AddCommand(sourceCmd)
}
