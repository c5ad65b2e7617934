package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imagingrc/omero-intake/cmd/organize"
	"github.com/imagingrc/omero-intake/cmd/stage"
	"github.com/imagingrc/omero-intake/cmd/validate"
	"github.com/imagingrc/omero-intake/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "omero-intake",
		Short: "Batch import pipeline for the image server",
		Long: "omero-intake runs the three stages of a batch import: validate a drop\n" +
			"folder against its metadata form, stage the files with checksum\n" +
			"verification, and organize the imported objects on the server.",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		validate.Command(settings),
		stage.Command(settings),
		organize.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Server.Host, "host", viper.GetString("server.host"), "Image server hostname")
	rootCmd.PersistentFlags().IntVar(&settings.Server.Port, "port", viper.GetInt("server.port"), "Image server port")
	rootCmd.PersistentFlags().StringVar(&settings.Import.CLIPath, "cli", viper.GetString("import.clipath"), "Path to the server CLI binary")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
