package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/imagingrc/omero-intake/internal/errors"
)

// Artifact names written next to the batch data.
const (
	ManifestFilename = "import.json"
	FilesTSVName     = "files.tsv"
	ImportYMLName    = "import.yml"
)

// KV is one ordered annotation pair.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ManifestTarget is one accepted import target as serialized in the
// manifest: the structural placement fields plus the remaining
// annotation pairs in form order.
type ManifestTarget struct {
	Filename    string `json:"filename"`
	Project     string `json:"project,omitempty"`
	Dataset     string `json:"dataset,omitempty"`
	Screen      string `json:"screen,omitempty"`
	Annotations []KV   `json:"annotations,omitempty"`
}

// Manifest is the durable snapshot of a validated batch. Once written it
// is read-only: the staging and organization stages re-read it rather
// than regenerate it, so it must be self-sufficient.
type Manifest struct {
	BatchID    string           `json:"batch_id"`
	User       string           `json:"user"`
	Group      string           `json:"group"`
	UserEmail  string           `json:"user_email"`
	ImportPath string           `json:"import_path"`
	ServerPath string           `json:"server_path"`
	CreatedAt  time.Time        `json:"created_at"`
	Targets    []ManifestTarget `json:"import_targets"`
}

// ScreenMode reports whether the manifest describes a screen/plate
// import.
func (m *Manifest) ScreenMode() bool {
	return len(m.Targets) > 0 && m.Targets[0].Screen != ""
}

// BuildManifest assembles the manifest from the batch. Any missing
// batch-level field is a fatal precondition: later stages may run as
// separate processes and have nothing but this document to go on.
func (b *Batch) BuildManifest(now time.Time) (*Manifest, error) {
	switch {
	case b.User == "" || b.Group == "" || b.UserEmail == "":
		return nil, manifestPrecondition("owning user, group and email must be resolved")
	case b.ServerPath == "":
		return nil, manifestPrecondition("server path has not been computed")
	case b.Report == nil || !b.Report.Valid():
		return nil, manifestPrecondition("metadata has not passed validation")
	case len(b.Targets) == 0:
		return nil, manifestPrecondition("no valid import targets")
	}

	m := &Manifest{
		BatchID:    b.ID,
		User:       b.User,
		Group:      b.Group,
		UserEmail:  b.UserEmail,
		ImportPath: b.SourcePath,
		ServerPath: b.ServerPath,
		CreatedAt:  now.UTC(),
	}
	for i := range b.Targets {
		row := &b.Targets[i].Row
		target := ManifestTarget{
			Filename: row.Filename,
			Project:  row.Project,
			Dataset:  row.Dataset,
			Screen:   row.Screen,
		}
		for _, key := range row.ExtraKeys() {
			target.Annotations = append(target.Annotations, KV{Key: key, Value: row.Extra[key]})
		}
		m.Targets = append(m.Targets, target)
	}
	return m, nil
}

func manifestPrecondition(detail string) error {
	return errors.Newf("cannot write manifest: %s", detail).
		Component("batch").
		Category(errors.CategoryState).
		Build()
}

// Write serializes the manifest into dir as import.json.
func (m *Manifest) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", errors.New(err).
			Component("batch").
			Category(errors.CategoryFileIO).
			Build()
	}
	path := filepath.Join(dir, ManifestFilename)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", errors.New(err).
			Component("batch").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return path, nil
}

// ReadManifest loads a previously written manifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Newf("manifest not found: %w", err).
			Component("batch").
			Category(errors.CategoryNotFound).
			FileContext(path).
			Build()
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Newf("manifest not readable: %w", err).
			Component("batch").
			Category(errors.CategoryFormat).
			FileContext(path).
			Build()
	}
	return &m, nil
}
