package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/antispoof-pipeline/internal/app"
	"github.com/RyanBlaney/antispoof-pipeline/internal/trigger"
)

var (
	triggerBucket  string
	triggerTimeout time.Duration
)

// triggerCmd classifies one stored object and records its verdict
var triggerCmd = &cobra.Command{
	Use:   "trigger <object-name>",
	Short: "Classify one stored object and persist its verdict",
	Long: `Run the finalize handler for a single object: fetch it, extract windowed
features, score every window with the remote classifier, aggregate the
window flags and store the verdict under the object name.

Examples:
  # Classify an object in the default bucket
  antispoof trigger 5c1b9a2e-clip.wav

  # Classify an object in another bucket with a short deadline
  antispoof trigger --bucket uploads --timeout 1m clip.flac`,
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

func init() {
	rootCmd.AddCommand(triggerCmd)

	triggerCmd.Flags().StringVarP(&triggerBucket, "bucket", "b", "",
		"bucket holding the object (default from config)")
	triggerCmd.Flags().DurationVarP(&triggerTimeout, "timeout", "t", 0,
		"deadline for the whole invocation")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	ctx := newContext(cmd)
	ctx.Timeout = triggerTimeout

	return withApp(ctx, func(a *app.App) error {
		return a.RunTrigger(cmd.Context(), trigger.ObjectRef{Bucket: triggerBucket, Name: args[0]})
	})
}
