// Package batch models one unit of files plus metadata submitted
// together for import: intake validation, target resolution and the
// durable manifest handed to the later stages.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/logging"
	"github.com/imagingrc/omero-intake/internal/metadata"
	"github.com/imagingrc/omero-intake/internal/omero"
)

// Batch is the top-level unit of work for one drop folder.
type Batch struct {
	ID         string // run identifier, stamped into logs and the manifest
	SourcePath string // directory holding the files and the metadata form
	ServerPath string // computed staging destination, empty until set

	User      string
	Group     string
	UserEmail string

	Table   *metadata.Table
	Report  *Report
	Targets []ImportTarget
}

// New creates a Batch for the given source directory.
func New(sourcePath string) *Batch {
	return &Batch{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
	}
}

// LoadMetadata locates and loads the single metadata form in the source
// directory. The owning user and group default to the form's header
// fields.
func (b *Batch) LoadMetadata(sheet string) error {
	path, err := metadata.FindMetadataFile(b.SourcePath)
	if err != nil {
		return err
	}
	table, err := metadata.Load(path, sheet)
	if err != nil {
		return err
	}
	b.Table = table
	b.User = table.User
	b.Group = table.Group
	return nil
}

// Validate runs the schema and file-listing checks and stores the
// resulting report. Returns true when the batch is valid.
func (b *Batch) Validate() (bool, error) {
	if b.Table == nil {
		return false, errors.Newf("no metadata loaded for %s", b.SourcePath).
			Component("batch").
			Category(errors.CategoryState).
			Build()
	}
	listing, err := ListSourceFiles(b.SourcePath)
	if err != nil {
		return false, err
	}
	b.Report = Validate(b.Table, listing)
	return b.Report.Valid(), nil
}

// ResolveOwner checks that the group exists and the user is a member,
// then records the user's email address. The email travels in the
// manifest so the later stages can notify the submitter without a
// directory lookup.
func (b *Batch) ResolveOwner(ctx context.Context, gw omero.Gateway) error {
	members, err := gw.GroupMembers(ctx, b.Group)
	if err != nil {
		return errors.Newf("group %q was not found: %w", b.Group, err).
			Component("batch").
			Category(errors.CategoryPrivilege).
			Build()
	}
	if !slices.Contains(members, b.User) {
		return errors.Newf("user %q is not in group %q", b.User, b.Group).
			Component("batch").
			Category(errors.CategoryPrivilege).
			Build()
	}
	email, err := gw.UserEmail(ctx, b.User)
	if err != nil {
		return errors.Newf("no email recorded for user %q: %w", b.User, err).
			Component("batch").
			Category(errors.CategoryPrivilege).
			Build()
	}
	b.UserEmail = email
	return nil
}

// ComputeServerPath derives the staging destination from the base path,
// the owning group and user, and a timestamp. The timestamp keeps
// concurrent batches from ever sharing a destination subtree.
func (b *Batch) ComputeServerPath(base string, now time.Time) {
	group := strings.ToLower(strings.ReplaceAll(b.Group, " ", "_"))
	stamp := now.Format("20060102_150405")
	b.ServerPath = filepath.Join(base, group, fmt.Sprintf("%s_%s", b.User, stamp))
}

// ListSourceFiles returns the relative paths of all regular files under
// dir, sorted for deterministic reporting.
func ListSourceFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component("batch").
			Category(errors.CategoryFileIO).
			Context("directory", dir).
			Build()
	}
	slices.Sort(files)
	return files, nil
}

// ImportTarget pairs one accepted metadata row with its resolved path.
type ImportTarget struct {
	Row  metadata.Row
	Path string
}

// ResolveTargets walks the table in row order and keeps the rows whose
// file exists and passes the dry-run format probe. Rejections are
// logged and dropped, they are final for this pass.
func (b *Batch) ResolveTargets(ctx context.Context, probe omero.ImportCLI) {
	log := logging.ForService("batch").With("batch_id", b.ID)
	b.Targets = b.Targets[:0]

	for i := range b.Table.Rows {
		row := b.Table.Rows[i]
		path := filepath.Join(b.SourcePath, filepath.FromSlash(row.Filename))
		if !fileExists(path) {
			log.Error("target does not exist", "path", path)
			continue
		}
		if err := probe.Probe(ctx, path); err != nil {
			log.Error("target cannot be imported", "path", path, "error", err)
			continue
		}
		b.Targets = append(b.Targets, ImportTarget{Row: row, Path: path})
	}
}
