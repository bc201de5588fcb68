//go:build !windows

package disk

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// openRaw opens path for exclusive-handle, shared-read access. On unix a
// plain os.Open already lets other processes hold their own read (or
// write) handles to the same device node; there is no exclusivity flag to
// fight, unlike Windows' CreateFile share-mode bits.
func openRaw(path string) (rawFile, error) {
	return os.Open(path)
}

// querySectorSize issues BLKSSZGET on Linux block devices, falling back to
// DefaultSectorSize for regular files (disk images) or when the ioctl
// isn't supported (e.g. Darwin).
func querySectorSize(f rawFile) uint64 {
	osf, ok := f.(*os.File)
	if !ok {
		return DefaultSectorSize
	}
	sz, err := unix.IoctlGetInt(int(osf.Fd()), unix.BLKSSZGET)
	if err != nil || sz <= 0 {
		return DefaultSectorSize
	}
	return uint64(sz)
}

// queryTotalBytes prefers BLKGETSIZE64 on Linux block devices, then falls
// back to stat-based length information (regular disk image files), per
// spec.md §4.1 ("length-info first, geometry-multiplication fallback" —
// inverted here because on unix the ioctl IS the geometry source and stat
// is the length-info fallback for plain files).
func queryTotalBytes(f rawFile) uint64 {
	if osf, ok := f.(*os.File); ok {
		if sz, err := unix.IoctlGetUint64(int(osf.Fd()), unix.BLKGETSIZE64); err == nil && sz > 0 {
			return sz
		}
	}
	if fi, err := f.Stat(); err == nil && fi.Size() > 0 {
		return uint64(fi.Size())
	}
	return 0
}

func osAllocationGranularity() uint64 {
	return uint64(os.Getpagesize())
}

func osMmap(f rawFile, offset, size uint64) ([]byte, error) {
	return syscall.Mmap(int(f.Fd()), int64(offset), int(size), syscall.PROT_READ, syscall.MAP_SHARED)
}

func osUnmap(b []byte) error {
	return syscall.Munmap(b)
}
