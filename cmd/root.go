package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phenobase/fieldstore/cmd/combinations"
	"github.com/phenobase/fieldstore/cmd/ingest"
	"github.com/phenobase/fieldstore/cmd/register"
	"github.com/phenobase/fieldstore/cmd/search"
	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldstore",
		Short: "Field observation record store CLI",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initLogging(settings)
		},
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		ingest.Command(settings),
		search.Command(settings),
		combinations.Command(settings),
		register.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// initLogging applies the logging configuration once flags are parsed: the
// debug flag lowers the level, and main.log routes structured logs into the
// configured rotating file.
func initLogging(settings *conf.Settings) error {
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}
	if settings.Main.Log.Enabled {
		return logging.EnableFileOutput(settings.Main.Log.Path, logging.FileLoggerOptions{
			MaxSizeMB:  settings.Main.Log.MaxSizeMB,
			MaxBackups: settings.Main.Log.MaxBackups,
			MaxAgeDays: settings.Main.Log.MaxAgeDays,
		})
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
