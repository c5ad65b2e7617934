// Package reconcile matches imported metadata rows back to the
// server-assigned identifiers their files produced, then applies
// container placement and map annotations through the object API.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/imagingrc/omero-intake/internal/batch"
	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/logging"
	"github.com/imagingrc/omero-intake/internal/omero"
)

// Match pairs one manifest target with the imported object ids its file
// produced. A single file may yield several images.
type Match struct {
	Target batch.ManifestTarget
	Kind   string
	IDs    []omero.ObjectID
}

// Skip records one row that produced no server-side identifier. Skips
// are soft: they are reported, never raised, so one bad row cannot
// strand the rest of the batch.
type Skip struct {
	Filename string
	Reason   string
}

// SkipReport renders skips for operator output.
func SkipReport(skips []Skip) string {
	if len(skips) == 0 {
		return "all rows reconciled"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d row(s) skipped:\n", len(skips))
	for _, s := range skips {
		fmt.Fprintf(&sb, "  %s: %s\n", s.Filename, s.Reason)
	}
	return sb.String()
}

// Reconciler resolves and organizes one imported batch.
type Reconciler struct {
	api       omero.ObjectAPI
	namespace string
	log       *slog.Logger
}

// New returns a Reconciler using the given object API and annotation
// namespace.
func New(api omero.ObjectAPI, namespace string) *Reconciler {
	return &Reconciler{
		api:       api,
		namespace: namespace,
		log:       logging.ForService("reconcile"),
	}
}

// Reconcile looks up the imported object ids for every manifest target
// by the client path recorded at import time. Rows in screen mode
// resolve to plates, the rest to images. Zero matches for a row is a
// soft failure collected into the skip list.
func (r *Reconciler) Reconcile(ctx context.Context, m *batch.Manifest) ([]Match, []Skip, error) {
	var matches []Match
	var skips []Skip

	for i := range m.Targets {
		t := m.Targets[i]
		kind := omero.KindImage
		if t.Screen != "" {
			kind = omero.KindPlate
		}

		clientPath := strings.TrimPrefix(path.Join(m.ServerPath, t.Filename), "/")
		ids, err := r.api.QueryByClientPath(ctx, kind, clientPath)
		if err != nil {
			return nil, nil, errors.Newf("lookup by client path failed for %s: %w", t.Filename, err).
				Component("reconcile").
				Category(errors.CategoryReconciliation).
				Build()
		}
		if len(ids) == 0 {
			r.log.Warn("no imported object found for row", "filename", t.Filename, "kind", kind)
			skips = append(skips, Skip{Filename: t.Filename, Reason: "no imported " + strings.ToLower(kind) + " found by client path"})
			continue
		}
		matches = append(matches, Match{Target: t, Kind: kind, IDs: ids})
	}
	return matches, skips, nil
}

// Organize places every matched object into its container, creating
// missing projects, datasets and screens by name. Name matching assumes
// uniqueness within the group and parent scope.
func (r *Reconciler) Organize(ctx context.Context, matches []Match) error {
	for i := range matches {
		m := &matches[i]
		var parent omero.Object
		var err error
		if m.Kind == omero.KindPlate {
			parent, err = r.ensureScreen(ctx, m.Target.Screen)
		} else {
			parent, err = r.ensureDataset(ctx, m.Target.Project, m.Target.Dataset)
		}
		if err != nil {
			return err
		}
		for _, id := range m.IDs {
			child := omero.Object{ID: id, Kind: m.Kind}
			if err := r.api.LinkChild(ctx, parent, child); err != nil {
				return errors.Newf("linking %s:%d into %s %q failed: %w", m.Kind, id, parent.Kind, parent.Name, err).
					Component("reconcile").
					Category(errors.CategoryReconciliation).
					Build()
			}
			r.log.Info("organized object", "kind", m.Kind, "id", id, "parent", parent.Name)
		}
	}
	return nil
}

// Annotate attaches one namespaced map annotation per matched row to
// every object the row produced. Rows without annotation pairs are
// passed over.
func (r *Reconciler) Annotate(ctx context.Context, matches []Match) ([]omero.ObjectID, error) {
	var created []omero.ObjectID
	for i := range matches {
		m := &matches[i]
		if len(m.Target.Annotations) == 0 {
			continue
		}
		pairs := make([][2]string, 0, len(m.Target.Annotations))
		for _, kv := range m.Target.Annotations {
			pairs = append(pairs, [2]string{kv.Key, kv.Value})
		}
		for _, id := range m.IDs {
			target := omero.Object{ID: id, Kind: m.Kind}
			annID, err := r.api.AttachAnnotation(ctx, target, r.namespace, pairs)
			if err != nil {
				return created, errors.Newf("annotating %s:%d failed: %w", m.Kind, id, err).
					Component("reconcile").
					Category(errors.CategoryReconciliation).
					Build()
			}
			created = append(created, annID)
		}
	}
	return created, nil
}

// ensureDataset finds or creates the project and the dataset beneath
// it, linking a freshly created dataset to its project.
func (r *Reconciler) ensureDataset(ctx context.Context, project, dataset string) (omero.Object, error) {
	proj, err := r.ensure(ctx, omero.KindProject, project, omero.FindOpts{})
	if err != nil {
		return omero.Object{}, err
	}

	opts := omero.FindOpts{Project: proj.ID}
	existing, err := r.api.FindByName(ctx, omero.KindDataset, dataset, opts)
	if err != nil {
		return omero.Object{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	id, err := r.api.Create(ctx, omero.KindDataset, dataset)
	if err != nil {
		return omero.Object{}, err
	}
	ds := omero.Object{ID: id, Kind: omero.KindDataset, Name: dataset}
	if err := r.api.LinkChild(ctx, proj, ds); err != nil {
		return omero.Object{}, err
	}
	r.log.Info("created dataset", "name", dataset, "id", id, "project", project)
	return ds, nil
}

func (r *Reconciler) ensureScreen(ctx context.Context, screen string) (omero.Object, error) {
	return r.ensure(ctx, omero.KindScreen, screen, omero.FindOpts{})
}

func (r *Reconciler) ensure(ctx context.Context, kind, name string, opts omero.FindOpts) (omero.Object, error) {
	existing, err := r.api.FindByName(ctx, kind, name, opts)
	if err != nil {
		return omero.Object{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}
	id, err := r.api.Create(ctx, kind, name)
	if err != nil {
		return omero.Object{}, err
	}
	r.log.Info("created container", "kind", kind, "name", name, "id", id)
	return omero.Object{ID: id, Kind: kind, Name: name}, nil
}
