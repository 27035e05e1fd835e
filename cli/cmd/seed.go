package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sentrix-systems/sentrix/cli/internal/seeder"
	"github.com/sentrix-systems/sentrix/cli/pkg/output"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate and ingest synthetic telemetry",
	Long: `Generate realistic telemetry and push it through the ingestion
endpoint. A portion of the events is crafted to trip the default threat
signatures, so a fresh install has threats and alerts to inspect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, _ := cmd.Flags().GetString("api-key")
		count, _ := cmd.Flags().GetInt("count")
		malicious, _ := cmd.Flags().GetInt("malicious")
		run, _ := cmd.Flags().GetBool("run-pipeline")

		s := seeder.New(apiClient(), apiKey, seeder.Config{
			Count:     count,
			Malicious: malicious,
		})

		accepted, err := s.Run(cmd.Context())
		if err != nil {
			return err
		}
		output.Success("Ingested %d events (%d crafted to match signatures)", accepted, malicious)

		if run {
			stats, err := apiClient().RunPipeline(cmd.Context())
			if err != nil {
				return err
			}
			output.Info("Cycle: pulled=%d processed=%d failed=%d threats=%d",
				stats.Pulled, stats.Processed, stats.Failed, stats.Threats)
		}
		return nil
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Pipeline control",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger one processing cycle and print its stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient().RunPipeline(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return output.JSON(stats)
		}
		output.Success("Cycle complete: pulled=%d processed=%d failed=%d threats=%d dead_lettered=%d",
			stats.Pulled, stats.Processed, stats.Failed, stats.Threats, stats.DeadLettered)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("api-key", "", "source API key used for ingestion")
	seedCmd.Flags().Int("count", 50, "number of benign events")
	seedCmd.Flags().Int("malicious", 5, "number of signature-matching events")
	seedCmd.Flags().Bool("run-pipeline", false, "trigger a processing cycle after seeding")
	seedCmd.MarkFlagRequired("api-key")

	pipelineCmd.AddCommand(pipelineRunCmd)
	rootCmd.AddCommand(seedCmd, pipelineCmd)
}
