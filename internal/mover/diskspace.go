package mover

import (
	"github.com/imagingrc/omero-intake/internal/errors"
)

// DiskSpaceInfo holds the capacity of the filesystem backing a path.
type DiskSpaceInfo struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// EnsureSpace verifies that the filesystem behind path has room for the
// given number of bytes. Staging moves across filesystems, so a batch
// that would fill the destination must be refused before the first copy
// rather than fail halfway through.
func EnsureSpace(path string, required uint64) error {
	info, err := diskSpace(path)
	if err != nil {
		return errors.Newf("cannot determine free space: %w", err).
			Component("mover").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	if info.AvailableBytes < required {
		return errors.Newf("not enough space at destination: need %d bytes, have %d", required, info.AvailableBytes).
			Component("mover").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return nil
}
