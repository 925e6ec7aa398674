package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/antispoof-pipeline/internal/app"
)

var verdictConsume bool

var verdictCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Inspect stored verdicts",
}

var verdictGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the verdict stored for an object",
	Long: `Print the verdict stored under key. With --delete the verdict is deleted
once it has been printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(newContext(cmd), func(a *app.App) error {
			return a.GetVerdict(cmd.Context(), args[0], verdictConsume)
		})
	},
}

var verdictDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete the verdict stored for an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(newContext(cmd), func(a *app.App) error {
			return a.DeleteVerdict(cmd.Context(), args[0])
		})
	},
}

var verdictListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored verdict",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(newContext(cmd), func(a *app.App) error {
			return a.ListVerdicts(cmd.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(verdictCmd)
	verdictCmd.AddCommand(verdictGetCmd, verdictDeleteCmd, verdictListCmd)

	verdictGetCmd.Flags().BoolVar(&verdictConsume, "delete", false,
		"delete the verdict after printing it")
}
