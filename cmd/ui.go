package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/RyanBlaney/antispoof-pipeline/internal/app"
)

// ANSI colors for terminal reports
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

var titleCaser = cases.Title(language.English)

// newContext builds the app context from the persistent flags. Only flags
// the user set override configuration.
func newContext(cmd *cobra.Command) *app.Context {
	ctx := &app.Context{
		OutputFile: outputFile,
		Verbose:    verbose,
		Quiet:      quiet,
		Viper:      GetConfig(),
	}
	if cmd.Flags().Changed("output") {
		ctx.OutputFormat = outputFormat
	}
	return ctx
}

// withApp runs fn against a freshly built app and closes it afterwards.
func withApp(ctx *app.Context, fn func(*app.App) error) (err error) {
	a, err := app.NewApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func printSection(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printSubsection(title string) {
	fmt.Printf("\n  %s\n", titleCaser.String(title))
}

func printKeyValue(key, value string) {
	if value == "" {
		fmt.Printf("%-35s\n", key)
	} else {
		fmt.Printf("%-35s %s\n", key+":", value)
	}
}
