// Package validate implements stage one of the pipeline: intake of a
// drop folder, metadata validation, owner resolution, target probing and
// the manifest write.
package validate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imagingrc/omero-intake/internal/batch"
	"github.com/imagingrc/omero-intake/internal/conf"
	"github.com/imagingrc/omero-intake/internal/logging"
	"github.com/imagingrc/omero-intake/internal/omero"
)

// Command creates the validate command.
func Command(settings *conf.Settings) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "validate [batch-dir]",
		Short: "Validate a drop folder and write its import manifest",
		Long: "Loads the metadata form from the batch directory, checks it against the\n" +
			"files on disk and the server-side user directory, probes every target for\n" +
			"importability and writes import.json, files.tsv and import.yml.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, settings, args[0], dryRun)
		},
	}

	cmd.Flags().StringVar(&settings.Import.MetadataSheet, "sheet", viper.GetString("import.metadatasheet"), "Worksheet name holding the submission form")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report validation results without writing the manifest")
	if err := viper.BindPFlag("import.metadatasheet", cmd.Flags().Lookup("sheet")); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runValidate(cmd *cobra.Command, settings *conf.Settings, dir string, dryRun bool) error {
	ctx := cmd.Context()
	b := batch.New(dir)

	log, closeLog, err := batchLogger(settings, b.ID)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info("validating batch", "dir", dir)

	if err := b.LoadMetadata(settings.Import.MetadataSheet); err != nil {
		return err
	}

	ok, err := b.Validate()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), b.Report.Summary())
	if !ok {
		return fmt.Errorf("batch %s failed validation", dir)
	}

	client := omero.NewCLIClient(settings.Import.CLIPath, settings.Server.Host, settings.Server.Port)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	if err := b.ResolveOwner(ctx, client); err != nil {
		return err
	}
	b.ComputeServerPath(settings.Import.BaseServerPath, time.Now())
	b.ResolveTargets(ctx, omero.NewCLIRunner(settings.Import.CLIPath))

	m, err := b.BuildManifest(time.Now())
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "dry run: %d target(s) would stage to %s\n", len(m.Targets), m.ServerPath)
		return nil
	}

	manifestPath, err := m.Write(dir)
	if err != nil {
		return err
	}
	if _, err := m.WriteFilesTSV(dir); err != nil {
		return err
	}
	if _, err := m.WriteImportYML(dir, settings.Import.BulkIncludeYML); err != nil {
		return err
	}

	log.Info("batch validated", "targets", len(m.Targets), "manifest", manifestPath)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s with %d target(s), staging to %s\n",
		manifestPath, len(m.Targets), m.ServerPath)
	return nil
}

// batchLogger opens the per-batch log file, or falls back to the
// console logger when file logging is disabled.
func batchLogger(settings *conf.Settings, batchID string) (*slog.Logger, func() error, error) {
	if !settings.Main.Log.Enabled {
		return logging.ForService("validate"), func() error { return nil }, nil
	}
	path := filepath.Join(settings.Main.Log.Path, fmt.Sprintf("intake-%s.log", batchID))
	return logging.NewFileLogger(path, "validate", logging.FileLoggerOptions{})
}
