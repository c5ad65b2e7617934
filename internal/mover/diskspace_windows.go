//go:build windows

package mover

import (
	"fmt"
	"syscall"
	"unsafe"
)

// diskSpace returns the capacity of the filesystem containing path.
func diskSpace(path string) (DiskSpaceInfo, error) {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	getDiskFreeSpaceEx := kernel32.NewProc("GetDiskFreeSpaceExW")

	utf16Path, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return DiskSpaceInfo{}, fmt.Errorf("failed to convert path to UTF16: %w", err)
	}

	var freeBytesAvailable, totalNumberOfBytes, totalNumberOfFreeBytes int64
	ret, _, callErr := getDiskFreeSpaceEx.Call(
		uintptr(unsafe.Pointer(utf16Path)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		uintptr(unsafe.Pointer(&totalNumberOfBytes)),
		uintptr(unsafe.Pointer(&totalNumberOfFreeBytes)),
	)
	if ret == 0 {
		return DiskSpaceInfo{}, fmt.Errorf("GetDiskFreeSpaceExW failed for %q: %w", path, callErr)
	}

	return DiskSpaceInfo{
		TotalBytes:     uint64(totalNumberOfBytes),
		AvailableBytes: uint64(freeBytesAvailable),
	}, nil
}
