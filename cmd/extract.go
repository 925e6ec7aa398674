package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/antispoof-pipeline/internal/app"
)

var extractLabel string

// extractCmd runs feature extraction on a local file
var extractCmd = &cobra.Command{
	Use:   "extract <audio-file>",
	Short: "Extract windowed features from a local audio file",
	Long: `Decode a local audio file, resample it to the analysis rate and print one
feature record per non-silent window.

Examples:
  antispoof extract clip.wav
  antispoof extract --label bonafide -o table clip.flac`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&extractLabel, "label", "",
		"label attached to every record")
}

func runExtract(cmd *cobra.Command, args []string) error {
	var label *string
	if cmd.Flags().Changed("label") {
		label = &extractLabel
	}

	return withApp(newContext(cmd), func(a *app.App) error {
		return a.ExtractFile(cmd.Context(), args[0], label)
	})
}
