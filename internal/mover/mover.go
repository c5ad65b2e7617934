package mover

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/imagingrc/omero-intake/internal/errors"
	"github.com/imagingrc/omero-intake/internal/logging"
)

// Permission bits applied to staged data. Files are narrowed only after
// their digest has been verified.
const (
	DirPerm  = 0o755
	FilePerm = 0o644
)

// ErrNotMoved is returned when every copy attempt failed verification.
// The source file is left untouched in that case.
var ErrNotMoved = errors.NewStd("file not moved")

// Mover copies single files into a destination directory with digest
// verification and bounded retry.
type Mover struct {
	MaxTries int

	log    *slog.Logger
	copyFn func(src, dst string) error
}

// NewMover returns a Mover that gives each file maxTries copy attempts.
func NewMover(maxTries int) *Mover {
	return &Mover{
		MaxTries: maxTries,
		log:      logging.ForService("mover"),
		copyFn:   copyFile,
	}
}

// Move copies file into destDir, verifies the copy digest against the
// source, and only then deletes the source. A verification failure
// removes the corrupt copy and retries; after MaxTries failures the
// source is left in place and ErrNotMoved is returned. Destination
// directories are expected to exist, the caller prepares them.
func (m *Mover) Move(file, destDir string) (string, error) {
	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		return "", errors.Newf("source file not found: %s", file).
			Component("mover").
			Category(errors.CategoryFileIO).
			FileContext(file).
			Build()
	}
	if info, err := os.Stat(destDir); err != nil || !info.IsDir() {
		return "", errors.Newf("destination directory not found: %s", destDir).
			Component("mover").
			Category(errors.CategoryFileIO).
			Context("directory", destDir).
			Build()
	}

	destFile := filepath.Join(destDir, filepath.Base(file))
	policy := RetryPolicy{
		MaxTries: m.MaxTries,
		OnFailure: func(attempt int, err error) {
			m.log.Error("checksum failed after copy attempt",
				"attempt", attempt, "file", file, "error", err)
			// Never leave a corrupt copy behind.
			_ = os.Remove(destFile)
		},
	}

	err = policy.Do(func(attempt int) error {
		if err := m.copyFn(file, destFile); err != nil {
			return err
		}
		srcSum, err := Digest(file)
		if err != nil {
			return err
		}
		dstSum, err := Digest(destFile)
		if err != nil {
			return err
		}
		if srcSum != dstSum {
			return errors.Newf("digest mismatch for %s", file).
				Component("mover").
				Category(errors.CategoryIntegrity).
				Context("source_digest", srcSum).
				Context("dest_digest", dstSum).
				Build()
		}
		return nil
	})
	if err != nil {
		m.log.Error("unable to copy", "file", file)
		return "", errors.Newf("unable to copy %s after %d attempts: %w", file, m.MaxTries, ErrNotMoved).
			Component("mover").
			Category(errors.CategoryIntegrity).
			FileContext(file).
			Build()
	}

	// Success terminal state: drop the source, then narrow permissions.
	if err := os.Remove(file); err != nil {
		return "", errors.New(err).
			Component("mover").
			Category(errors.CategoryFileIO).
			FileContext(file).
			Build()
	}
	if err := os.Chmod(destFile, FilePerm); err != nil {
		return "", errors.New(err).
			Component("mover").
			Category(errors.CategoryFileIO).
			FileContext(destFile).
			Build()
	}
	return destFile, nil
}

// copyFile copies src to dst, truncating any existing dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
