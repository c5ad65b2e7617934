package mover

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/imagingrc/omero-intake/internal/batch"
	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/logging"
)

// sidecarExtensions are never staged: logs stay with the drop folder and
// the metadata form has already been captured in the manifest.
var sidecarExtensions = map[string]bool{
	".log":  true,
	".xlsx": true,
	".xls":  true,
	".tsv":  true,
}

// DataMover stages a whole batch according to its manifest: primary
// import targets first, then auxiliary fileset files, then the manifest
// itself. The manifest goes last so that its presence at the destination
// is the durable signal that staging completed.
type DataMover struct {
	ManifestPath string
	FilesetList  []string

	manifest *batch.Manifest
	log      *slog.Logger

	// move is the single-file move operation, swappable in tests.
	move func(file, destDir string) (string, error)
}

// NewDataMover reads the manifest and optional fileset list. An empty
// filesetListPath means the batch has no auxiliary files.
func NewDataMover(manifestPath, filesetListPath string, maxTries int) (*DataMover, error) {
	manifest, err := batch.ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	var fileset []string
	if filesetListPath != "" {
		fileset, err = ReadFilesetList(filesetListPath)
		if err != nil {
			return nil, err
		}
	}

	m := NewMover(maxTries)
	return &DataMover{
		ManifestPath: manifestPath,
		FilesetList:  fileset,
		manifest:     manifest,
		log:          logging.ForService("datamover").With("batch_id", manifest.BatchID),
		move:         m.Move,
	}, nil
}

// Manifest returns the manifest driving this mover.
func (d *DataMover) Manifest() *batch.Manifest {
	return d.manifest
}

// MoveData stages the batch. Individual file failures are terminal but
// non-destructive: the move continues so one bad file does not strand
// the rest, and the failures are returned at the end. A failed manifest
// move always fails the stage, without it the destination is not usable.
func (d *DataMover) MoveData() (string, error) {
	serverPath := d.manifest.ServerPath

	// Idempotent prepare step; the only directory this operation creates
	// recursively.
	if err := os.MkdirAll(serverPath, DirPerm); err != nil {
		return "", errors.New(err).
			Component("datamover").
			Category(errors.CategoryFileIO).
			Context("directory", serverPath).
			Build()
	}

	if err := EnsureSpace(serverPath, d.batchSize()); err != nil {
		return "", err
	}

	var failed []string

	// Primary targets first, in manifest order.
	for i := range d.manifest.Targets {
		filename := d.manifest.Targets[i].Filename
		src := filepath.Join(d.manifest.ImportPath, filepath.FromSlash(filename))
		destDir := filepath.Join(serverPath, filepath.Dir(filepath.FromSlash(filename)))
		if dest, err := d.moveInto(src, destDir); err != nil {
			failed = append(failed, src)
		} else {
			d.log.Debug("moved import target", "file", filename, "dest", dest)
		}
	}

	// Auxiliary fileset files, preserving their layout under the import
	// path.
	for _, aux := range d.FilesetList {
		if sidecarExtensions[strings.ToLower(filepath.Ext(aux))] {
			continue
		}
		rel, err := filepath.Rel(d.manifest.ImportPath, aux)
		if err != nil || strings.HasPrefix(rel, "..") {
			d.log.Error("fileset entry outside import path", "file", aux)
			failed = append(failed, aux)
			continue
		}
		destDir := filepath.Join(serverPath, filepath.Dir(rel))
		if dest, err := d.moveInto(aux, destDir); err != nil {
			failed = append(failed, aux)
		} else {
			d.log.Debug("moved auxiliary file", "file", aux, "dest", dest)
		}
	}

	// The manifest moves last.
	manifestDest, err := d.moveInto(d.ManifestPath, serverPath)
	if err != nil {
		return "", errors.Newf("manifest was not staged, batch is not ready for import: %w", err).
			Component("datamover").
			Category(errors.CategoryIntegrity).
			Build()
	}

	if len(failed) > 0 {
		return manifestDest, errors.Newf("%d file(s) were not moved", len(failed)).
			Component("datamover").
			Category(errors.CategoryIntegrity).
			Context("failed_files", failed).
			Build()
	}
	return manifestDest, nil
}

// batchSize sums the sizes of everything this mover will stage. Files
// it cannot stat are counted as zero, their move will report the real
// problem.
func (d *DataMover) batchSize() uint64 {
	var total uint64
	add := func(path string) {
		if info, err := os.Stat(path); err == nil {
			total += uint64(info.Size())
		}
	}
	for i := range d.manifest.Targets {
		add(filepath.Join(d.manifest.ImportPath, filepath.FromSlash(d.manifest.Targets[i].Filename)))
	}
	for _, aux := range d.FilesetList {
		add(aux)
	}
	add(d.ManifestPath)
	return total
}

func (d *DataMover) moveInto(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, DirPerm); err != nil {
		return "", errors.New(err).
			Component("datamover").
			Category(errors.CategoryFileIO).
			Context("directory", destDir).
			Build()
	}
	dest, err := d.move(src, destDir)
	if err != nil {
		d.log.Error("move failed", "file", src, "error", err)
		return "", err
	}
	return dest, nil
}

// ReadFilesetList reads the auxiliary file listing produced by the
// server-side prepare probe: one path per line, blank lines and
// #-comments ignored.
func ReadFilesetList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Newf("list of files not found: %w", err).
			Component("datamover").
			Category(errors.CategoryNotFound).
			FileContext(path).
			Build()
	}
	defer f.Close()

	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Component("datamover").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return files, nil
}
