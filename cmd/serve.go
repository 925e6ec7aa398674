package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/antispoof-pipeline/internal/app"
)

var serveAddr string

// serveCmd runs the HTTP trigger service
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve object events, uploads and verdict lookups over HTTP",
	Long: `Start the trigger service. Storage notifications posted to
/events/object-finalized are classified, uploads posted to /uploads are
stored under a fresh name and classified, and verdicts are read or consumed
under /verdicts/{name}.

The server shuts down gracefully on SIGINT or SIGTERM.

Examples:
  antispoof serve --listen :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveAddr, "listen", "l", "",
		"listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := newContext(cmd)
	ctx.ListenAddr = serveAddr

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(a *app.App) error {
		return a.Serve(sigCtx)
	})
}
