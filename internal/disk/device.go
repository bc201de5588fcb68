// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package disk implements spec.md §4.1: BlockDevice, the exclusive handle
// over one raw volume, plus the platform-specific geometry queries,
// read-only mapping, and whole-disk-image MBR/partition discovery used to
// locate a filesystem before a walker runs.
package disk

import (
	"fmt"
	"io"
	"os"

	"github.com/nullsector/volrecover/internal/model"
)

// DefaultSectorSize is used whenever the OS geometry query fails (spec.md
// §4.1 "sector_size() ... default 512 on failure").
const DefaultSectorSize = 512

// rawFile is the minimal OS surface BlockDevice needs; implemented by
// *os.File on unix and by a raw-handle wrapper on Windows.
type rawFile interface {
	io.Closer
	io.ReaderAt
	Stat() (os.FileInfo, error)
	Fd() uintptr
}

// BlockDevice is an exclusive handle to one raw volume. At most one
// MappedRegion is alive at a time: requesting a new one releases the
// previous mapping, per spec.md §4.1 and §5 ("BlockDevice owns at most one
// mapping").
type BlockDevice struct {
	volumeID   string
	file       rawFile
	sectorSize uint64
	totalBytes uint64
	baseSector uint64

	mapping *MappedRegion
}

// Open acquires an OS handle over path (a drive designator like "C:" on
// Windows, normalized to \\.\C:, or a raw path/image file elsewhere),
// granting concurrent read access to other processes/handles. Returns
// model.ErrDeviceOpen, wrapped with the underlying OS error, on failure.
func Open(path string) (*BlockDevice, error) {
	path = NormalizeVolumePath(path)

	f, err := openRaw(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrDeviceOpen, path, err)
	}

	d := &BlockDevice{volumeID: path, file: f}
	d.sectorSize = querySectorSize(f)
	d.totalBytes = queryTotalBytes(f)
	return d, nil
}

// VolumeID returns the path/drive designator the device was opened with.
func (d *BlockDevice) VolumeID() string { return d.volumeID }

// SectorSize returns the queried sector size, DefaultSectorSize if the
// query failed.
func (d *BlockDevice) SectorSize() uint64 { return d.sectorSize }

// TotalBytes returns the queried total volume size, measured from this
// device's own base sector (the whole disk, or one partition carved out of
// it by WithPartitionOffset).
func (d *BlockDevice) TotalBytes() uint64 {
	used := d.baseSector * d.sectorSize
	if used >= d.totalBytes {
		return 0
	}
	return d.totalBytes - used
}

// WithPartitionOffset returns a BlockDevice sharing this one's OS handle but
// with every sector number counted from startLBA instead of 0, per spec.md
// §4.1's whole-disk-image supplement: a walker/carver given this view reads
// one MBR partition as if it were the whole volume. Closing either view
// closes the shared handle.
func (d *BlockDevice) WithPartitionOffset(startLBA uint64) *BlockDevice {
	return &BlockDevice{
		volumeID:   d.volumeID,
		file:       d.file,
		sectorSize: d.sectorSize,
		totalBytes: d.totalBytes,
		baseSector: d.baseSector + startLBA,
	}
}

// ReadSectors seeks to (base_sector+start_sector)*sector_size and reads
// count*sector_size bytes, returning whatever was actually read (possibly
// truncated if the device ran short). An empty, nil-error result signals
// read failure to the caller, who must zero-fill or skip per spec.md
// §4.1/§7 ErrReadFailed.
func (d *BlockDevice) ReadSectors(startSector, count uint64, sectorSize uint64) []byte {
	if sectorSize == 0 {
		sectorSize = d.sectorSize
	}
	buf := make([]byte, count*sectorSize)
	n, err := d.file.ReadAt(buf, int64((d.baseSector+startSector)*sectorSize))
	if n <= 0 || (err != nil && err != io.EOF) {
		return nil
	}
	return buf[:n]
}

// Close releases the mapping (if any) and the OS handle.
func (d *BlockDevice) Close() error {
	if d.mapping != nil {
		_ = d.mapping.unmap()
		d.mapping = nil
	}
	return d.file.Close()
}
