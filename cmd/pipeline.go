package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/antispoof-pipeline/internal/app"
)

var (
	pipelineWorkers     int
	pipelineDisposition string
	pipelineLabels      []string
)

// pipelineCmd represents the batch feature pipeline command
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Extract features for every file listed in the configured manifests",
	Long: `Read the configured manifests, fetch each listed audio file from object
storage, extract windowed features and write them to the feature warehouse.

Missing files are skipped. Files that fail to decode are counted and skipped.
The run summary is printed when every file has been visited.

Examples:
  # Run with the configured sources
  antispoof pipeline

  # Replace the warehouse table and only keep spoofed examples
  antispoof pipeline --write-disposition truncate --labels spoof

  # Generate example sources to start from
  antispoof config-test --generate-sources sources.yaml`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)

	pipelineCmd.Flags().IntVarP(&pipelineWorkers, "workers", "w", 0,
		"files processed concurrently (default from config)")
	pipelineCmd.Flags().StringVar(&pipelineDisposition, "write-disposition", "",
		"warehouse write mode (truncate, append)")
	pipelineCmd.Flags().StringSliceVar(&pipelineLabels, "labels", nil,
		"only process entries with these labels")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := newContext(cmd)
	ctx.Workers = pipelineWorkers
	ctx.WriteDisposition = pipelineDisposition
	ctx.Labels = pipelineLabels

	return withApp(ctx, func(a *app.App) error {
		return a.RunPipeline(cmd.Context())
	})
}
