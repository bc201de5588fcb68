//go:build windows

package disk

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// winHandle adapts a raw Windows HANDLE to the rawFile surface BlockDevice
// needs, reading via ReadFile with an explicit OVERLAPPED offset rather than
// going through package os at all, following the teacher's
// internal/fs/windows.go WindowsDiskFile wrapper.
type winHandle struct {
	h windows.Handle
}

func (w *winHandle) Fd() uintptr { return uintptr(w.h) }

func (w *winHandle) Close() error {
	return windows.CloseHandle(w.h)
}

func (w *winHandle) Stat() (os.FileInfo, error) {
	return nil, nil
}

func (w *winHandle) ReadAt(p []byte, off int64) (int, error) {
	overlapped := windows.Overlapped{
		Offset:     uint32(off),
		OffsetHigh: uint32(off >> 32),
	}
	var n uint32
	err := windows.ReadFile(w.h, p, &n, &overlapped)
	if err != nil {
		return int(n), err
	}
	return int(n), nil
}

// openRaw opens a volume/physical-drive path with FILE_SHARE_READ|WRITE so
// other handles (the live OS, an antivirus scanner) keep working, per
// spec.md §4.1 "grant concurrent read access to other processes".
func openRaw(path string) (rawFile, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(
		p,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_NO_BUFFERING,
		0,
	)
	if err != nil {
		return nil, err
	}
	return &winHandle{h: h}, nil
}

// diskGeometry mirrors Windows' DISK_GEOMETRY structure (teacher's
// internal/fs/windows.go), returned by IOCTL_DISK_GET_DRIVE_GEOMETRY.
type diskGeometry struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
}

const ioctlDiskGetDriveGeometry = 0x70000

func queryGeometry(f rawFile) (diskGeometry, bool) {
	wh, ok := f.(*winHandle)
	if !ok {
		return diskGeometry{}, false
	}
	var geo diskGeometry
	var bytesReturned uint32
	err := windows.DeviceIoControl(
		wh.h,
		ioctlDiskGetDriveGeometry,
		nil, 0,
		(*byte)(unsafe.Pointer(&geo)), uint32(unsafe.Sizeof(geo)),
		&bytesReturned, nil,
	)
	if err != nil {
		return diskGeometry{}, false
	}
	return geo, true
}

func querySectorSize(f rawFile) uint64 {
	if geo, ok := queryGeometry(f); ok && geo.BytesPerSector > 0 {
		return uint64(geo.BytesPerSector)
	}
	return DefaultSectorSize
}

func queryTotalBytes(f rawFile) uint64 {
	wh, ok := f.(*winHandle)
	if !ok {
		return 0
	}
	var size int64
	if err := windows.GetFileSizeEx(wh.h, &size); err == nil && size > 0 {
		return uint64(size)
	}
	if geo, ok := queryGeometry(f); ok {
		return uint64(geo.Cylinders) * uint64(geo.TracksPerCylinder) *
			uint64(geo.SectorsPerTrack) * uint64(geo.BytesPerSector)
	}
	return 0
}

func osAllocationGranularity() uint64 {
	var sysInfo windows.SystemInfo
	windows.GetSystemInfo(&sysInfo)
	if sysInfo.AllocationGranularity == 0 {
		return 65536
	}
	return uint64(sysInfo.AllocationGranularity)
}

func osMmap(f rawFile, offset, size uint64) ([]byte, error) {
	wh, ok := f.(*winHandle)
	if !ok {
		return nil, os.ErrInvalid
	}
	mapping, err := windows.CreateFileMapping(wh.h, nil, windows.PAGE_READONLY, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(mapping)

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ, uint32(offset>>32), uint32(offset), uintptr(size))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

func osUnmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&b[0])))
}
