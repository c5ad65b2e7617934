// Package stage implements stage two of the pipeline: checksummed
// movement of a validated batch onto server-managed storage.
package stage

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imagingrc/omero-intake/internal/batch"
	"github.com/imagingrc/omero-intake/internal/conf"
	"github.com/imagingrc/omero-intake/internal/mover"
)

// Command creates the stage command.
func Command(settings *conf.Settings) *cobra.Command {
	var filesetList string

	cmd := &cobra.Command{
		Use:   "stage [batch-dir]",
		Short: "Move a validated batch onto server-managed storage",
		Long: "Reads the manifest written by validate and moves every target into the\n" +
			"computed staging directory, verifying each copy by checksum before the\n" +
			"source is removed. The manifest itself moves last.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, settings, args[0], filesetList)
		},
	}

	cmd.Flags().StringVar(&filesetList, "fileset-list", viper.GetString("import.filesetlist"), "File listing auxiliary fileset members to stage alongside the targets")

	return cmd
}

func runStage(cmd *cobra.Command, settings *conf.Settings, dir, filesetList string) error {
	manifestPath := filepath.Join(dir, batch.ManifestFilename)

	dm, err := mover.NewDataMover(manifestPath, filesetList, settings.Import.MaxMoveTries)
	if err != nil {
		return err
	}

	manifestDest, err := dm.MoveData()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "batch staged, manifest at %s\n", manifestDest)
	return nil
}
