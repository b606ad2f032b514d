package main

import (
	"EkgPlatform/internal/app"
	"EkgPlatform/internal/shared/config"
	"EkgPlatform/internal/shared/logger"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	verbose    bool

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:          "ekgctl <command>",
	Short:        "Operator CLI for the EKG event bus",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		baseLogger := logger.New(true, "ekgctl")
		if !verbose {
			baseLogger = baseLogger.Level(zerolog.WarnLevel)
		}

		a, err := app.New(cmd.Context(), cfg, nil, &baseLogger)
		if err != nil {
			return fmt.Errorf("connecting to event bus: %w", err)
		}
		application = a
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show info logs")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(deadLettersCmd)
}

func main() {
	os.Exit(run())
}

// run executes the command tree and closes the application whether or not
// the command failed; cobra skips post-run hooks after an error.
func run() int {
	err := rootCmd.Execute()
	closeApplication()
	if err != nil {
		return 1
	}
	return 0
}

func closeApplication() {
	if application == nil {
		return
	}
	if err := application.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing event bus: %v\n", err)
	}
	application = nil
}
