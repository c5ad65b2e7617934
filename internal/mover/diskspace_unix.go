//go:build linux || darwin

package mover

import (
	"fmt"
	"syscall"
)

// diskSpace returns the capacity of the filesystem containing path.
func diskSpace(path string) (DiskSpaceInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return DiskSpaceInfo{}, fmt.Errorf("failed to statfs %q: %w", path, err)
	}

	return DiskSpaceInfo{
		TotalBytes: stat.Blocks * uint64(stat.Bsize),
		// Bavail is what a non-root writer can actually use.
		AvailableBytes: stat.Bavail * uint64(stat.Bsize),
	}, nil
}
