// Package organize implements stage three of the pipeline: post-import
// reconciliation of staged files to server objects, container placement
// and metadata annotation, all under a session delegated to the
// submitting user.
package organize

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/imagingrc/omero-intake/internal/batch"
	"github.com/imagingrc/omero-intake/internal/conf"
	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/logging"
	"github.com/imagingrc/omero-intake/internal/omero"
	"github.com/imagingrc/omero-intake/internal/reconcile"
)

// Command creates the organize command.
func Command(settings *conf.Settings) *cobra.Command {
	var runImport bool

	cmd := &cobra.Command{
		Use:   "organize [manifest-path]",
		Short: "Reconcile, place and annotate an imported batch",
		Long: "Reads a staged manifest, matches every row to the objects its file\n" +
			"produced on the server, places them into their projects, datasets and\n" +
			"screens and attaches the submitted metadata as map annotations. Runs\n" +
			"under a session delegated to the submitting user.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrganize(cmd, settings, args[0], runImport)
		},
	}

	cmd.Flags().BoolVar(&runImport, "run-import", false, "Import the staged targets before reconciling instead of assuming a prior bulk import")

	return cmd
}

func runOrganize(cmd *cobra.Command, settings *conf.Settings, manifestPath string, runImport bool) error {
	ctx := cmd.Context()
	log := logging.ForService("organize")

	m, err := batch.ReadManifest(manifestPath)
	if err != nil {
		return err
	}
	log.Info("organizing batch", "batch_id", m.BatchID, "user", m.User, "group", m.Group)

	client := omero.NewCLIClient(settings.Import.CLIPath, settings.Server.Host, settings.Server.Port)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	ttl := time.Duration(settings.Import.SessionTTLMs) * time.Millisecond
	delegated, err := client.ActAs(ctx, m.User, m.Group, ttl)
	if err != nil {
		return err
	}
	defer delegated.Close()

	if runImport {
		if err := importTargets(ctx, settings, delegated.SessionKey(), m); err != nil {
			return err
		}
	}

	api, ok := delegated.(omero.ObjectAPI)
	if !ok {
		return errors.Newf("delegated session does not expose the object API").
			Component("organize").
			Category(errors.CategoryState).
			Build()
	}

	r := reconcile.New(omero.NewCachingObjectAPI(api, ttl), settings.Import.Namespace)

	matches, skips, err := r.Reconcile(ctx, m)
	if err != nil {
		return err
	}
	if err := r.Organize(ctx, matches); err != nil {
		return err
	}
	annotations, err := r.Annotate(ctx, matches)
	if err != nil {
		return err
	}

	log.Info("batch organized",
		"batch_id", m.BatchID,
		"matched", len(matches),
		"skipped", len(skips),
		"annotations", len(annotations))
	fmt.Fprintln(cmd.OutOrStdout(), reconcile.SkipReport(skips))
	return nil
}

// importTargets ingests every staged target through the import CLI
// under the delegated session.
func importTargets(ctx context.Context, settings *conf.Settings, sessionKey string, m *batch.Manifest) error {
	cli := omero.NewCLIRunner(settings.Import.CLIPath)
	for i := range m.Targets {
		staged := path.Join(m.ServerPath, m.Targets[i].Filename)
		if err := cli.Import(ctx, sessionKey, settings.Server.Host, settings.Server.Port, staged); err != nil {
			return err
		}
	}
	return nil
}
