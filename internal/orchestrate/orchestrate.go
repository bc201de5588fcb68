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

// Package orchestrate implements spec.md §4.7: it detects which of the
// three supported filesystems a volume holds, sequences the NTFS MFT walk,
// USN correlation and signature carving stages (deduplicating by MFT index
// across the first two), runs the single exFAT/FAT32 walker for those
// filesystems, and redistributes progress across whichever stages the
// caller enabled. This is the `scan` entry point spec.md §6 describes.
package orchestrate

import (
	"fmt"
	"strings"

	"github.com/nullsector/volrecover/internal/carve"
	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/exfat"
	"github.com/nullsector/volrecover/internal/fat32"
	"github.com/nullsector/volrecover/internal/model"
	"github.com/nullsector/volrecover/internal/ntfs"
)

// Filesystem tags which on-disk layout DetectFilesystem found.
type Filesystem int

const (
	FilesystemUnknown Filesystem = iota
	FilesystemNTFS
	FilesystemExFAT
	FilesystemFAT32
)

func (f Filesystem) String() string {
	switch f {
	case FilesystemNTFS:
		return "NTFS"
	case FilesystemExFAT:
		return "exFAT"
	case FilesystemFAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// DetectFilesystem classifies dev's boot sector by trying each walker's own
// validation in turn. spec.md §4.7 describes this as "querying the OS
// volume-info for the drive"; a portable core has no single cross-platform
// call for that, so it falls back to the same on-disk signatures every
// walker already checks before trusting a boot sector.
func DetectFilesystem(dev *disk.BlockDevice) (Filesystem, error) {
	sector := dev.ReadSectors(0, 1, dev.SectorSize())
	if len(sector) < 512 {
		return FilesystemUnknown, fmt.Errorf("%w: cannot read boot sector", model.ErrBadBootSector)
	}

	if _, err := ntfs.ParseBootSector(sector); err == nil {
		return FilesystemNTFS, nil
	}
	if _, err := exfat.ParseBootSector(sector); err == nil {
		return FilesystemExFAT, nil
	}
	if _, err := fat32.ParseBootSector(sector); err == nil {
		return FilesystemFAT32, nil
	}
	return FilesystemUnknown, fmt.Errorf("%w: unrecognized boot sector", model.ErrBadBootSector)
}

// Config narrows and gates a scan, mirroring spec.md §6's scan() parameters
// one-for-one (drive and the callbacks are Scan's own arguments instead).
type Config struct {
	FolderFilter   string
	FilenameFilter string
	EnableMFT      bool
	EnableUSN      bool
	EnableCarving  bool
}

func (c Config) matches(path, name string) bool {
	if c.FolderFilter != "" && !strings.Contains(strings.ToLower(path), strings.ToLower(c.FolderFilter)) {
		return false
	}
	if c.FilenameFilter != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(c.FilenameFilter)) {
		return false
	}
	return true
}

// Callbacks is the scan-wide observer spec.md §6 requires: file_found,
// progress, and a cooperative-cancellation poll.
type Callbacks struct {
	FileFound func(model.DeletedEntry)
	Progress  func(msg string, fraction float64)
	Cancelled func() bool
}

func (cb Callbacks) fileFound(e model.DeletedEntry) {
	if cb.FileFound != nil {
		cb.FileFound(e)
	}
}

func (cb Callbacks) progress(msg string, fraction float64) {
	if cb.Progress != nil {
		cb.Progress(msg, fraction)
	}
}

func (cb Callbacks) cancelled() bool {
	return cb.Cancelled != nil && cb.Cancelled()
}

// stageWindow is the [start, end) slice of the [0,1] progress axis one
// enabled stage owns.
type stageWindow struct{ start, end float64 }

// stageWindows implements spec.md §4.7's progress rule: "each stage owns a
// third ... when only a subset is enabled the remaining range is
// proportionally redistributed". Disabled stages get a zero-width window at
// their would-be cursor position and are simply never reported through.
func stageWindows(enabled []bool) []stageWindow {
	n := 0
	for _, e := range enabled {
		if e {
			n++
		}
	}
	windows := make([]stageWindow, len(enabled))
	if n == 0 {
		return windows
	}
	share := 1.0 / float64(n)
	cursor := 0.0
	for i, e := range enabled {
		if !e {
			windows[i] = stageWindow{cursor, cursor}
			continue
		}
		windows[i] = stageWindow{cursor, cursor + share}
		cursor += share
	}
	return windows
}

// remap projects a stage-local fraction in [0,1] into w's slice of the
// global axis. A negative fraction (spec.md §6: "status message only")
// passes through unchanged.
func (w stageWindow) remap(fraction float64) float64 {
	if fraction < 0 {
		return fraction
	}
	return w.start + fraction*(w.end-w.start)
}

// Scan implements spec.md §6's scan(): detect the filesystem, then dispatch
// to the NTFS three-stage sequence or the single exFAT/FAT32 walker,
// followed by signature carving over the volume's free space when enabled.
// Returns true if any stage produced at least one entry, per spec.md §7.
func Scan(dev *disk.BlockDevice, cfg Config, cb Callbacks) bool {
	fs, err := DetectFilesystem(dev)
	if err != nil {
		if partDev, partFS, perr := findFilesystemInMBR(dev); perr == nil {
			dev, fs = partDev, partFS
		} else {
			cb.progress(fmt.Sprintf("scan: %v", err), -1)
			return false
		}
	}

	var found bool
	switch fs {
	case FilesystemNTFS:
		found = scanNTFS(dev, cfg, cb)
	case FilesystemExFAT:
		found = scanExFAT(dev, cfg, cb)
	case FilesystemFAT32:
		found = scanFAT32(dev, cfg, cb)
	default:
		cb.progress("scan: unrecognized filesystem", -1)
		return false
	}
	return found
}

// findFilesystemInMBR implements spec.md §4.1's whole-disk-image supplement:
// when sector 0 itself isn't a recognized boot sector, dev may be a raw
// disk image with an MBR partition table instead of a single volume. Each
// partition's start LBA is tried in turn via WithPartitionOffset until one
// yields a recognized filesystem.
func findFilesystemInMBR(dev *disk.BlockDevice) (*disk.BlockDevice, Filesystem, error) {
	sector := dev.ReadSectors(0, 1, dev.SectorSize())
	if len(sector) < 512 {
		return nil, FilesystemUnknown, fmt.Errorf("%w: cannot read MBR", model.ErrBadBootSector)
	}
	mbr, err := disk.ParseMBR(sector)
	if err != nil {
		return nil, FilesystemUnknown, err
	}

	for _, entry := range mbr.PartitionEntries {
		if entry.PartitionType == disk.PartitionTypeEmpty {
			continue
		}
		partDev := dev.WithPartitionOffset(uint64(entry.ReadStartLBA()))
		if fs, err := DetectFilesystem(partDev); err == nil {
			return partDev, fs, nil
		}
	}
	return nil, FilesystemUnknown, fmt.Errorf("%w: no recognized partition in MBR", model.ErrBadBootSector)
}

func scanNTFS(dev *disk.BlockDevice, cfg Config, cb Callbacks) bool {
	windows := stageWindows([]bool{cfg.EnableMFT, cfg.EnableUSN, cfg.EnableCarving})
	var reported int

	w, err := ntfs.NewWalker(dev)
	if err != nil {
		cb.progress(fmt.Sprintf("scan: bad NTFS boot sector: %v", err), -1)
		return false
	}

	processed := make(map[uint64]bool)
	countingFileFound := func(e model.DeletedEntry) {
		reported++
		cb.fileFound(e)
	}

	if cfg.EnableMFT {
		win := windows[0]
		w.Scan(
			ntfs.Config{FolderFilter: cfg.FolderFilter, FilenameFilter: cfg.FilenameFilter},
			ntfs.Callbacks{
				FileFound: countingFileFound,
				Progress:  func(msg string, f float64) { cb.progress(msg, win.remap(f)) },
				Cancelled: cb.cancelled,
			},
			processed,
		)
		if cb.cancelled() {
			cb.progress("scan: stopped by user", -1)
			return reported > 0
		}
	}

	if cfg.EnableUSN {
		win := windows[1]
		stage2USNCorrelation(w, cfg, cb, win, processed, countingFileFound)
		if cb.cancelled() {
			cb.progress("scan: stopped by user", -1)
			return reported > 0
		}
	}

	if cfg.EnableCarving {
		win := windows[2]
		boot := w.BootSector()
		geo := carvingGeometry(dev, boot.SectorsPerCluster, boot.BytesPerSector, 0)
		c := carve.NewCarver(dev)
		c.ScanFreeSpace(geo, carve.Callbacks{
			FileFound: countingFileFound,
			Progress:  func(msg string, f float64) { cb.progress(msg, win.remap(f)) },
			Cancelled: cb.cancelled,
		})
	}

	return reported > 0
}

// stage2USNCorrelation implements spec.md §4.5's correlation algorithm: for
// every deletion record not already in processed, re-read the current MFT
// record and compare sequence numbers. A match is a surviving tombstone
// (emit it the normal way); a mismatch means the record was reused (emit a
// metadata-only "MFT Overwritten" entry). JournalAbsent aborts this stage
// only, per spec.md §7.
func stage2USNCorrelation(w *ntfs.Walker, cfg Config, cb Callbacks, win stageWindow, processed map[uint64]bool, fileFound func(model.DeletedEntry)) {
	grouped, err := w.ReadUsnJournal(0)
	if err != nil {
		cb.progress(fmt.Sprintf("scan: USN journal unavailable: %v", err), -1)
		return
	}

	total := len(grouped)
	if total == 0 {
		cb.progress("usn: journal empty", win.remap(1))
		return
	}

	var done int
	for mftIndex, records := range grouped {
		done++
		if done%10 == 0 && cb.cancelled() {
			return
		}
		if processed[mftIndex] {
			continue
		}

		var deletion *model.UsnRecord
		for i := range records {
			if records[i].IsDeletion() && !records[i].IsDirectory() {
				r := records[i]
				deletion = &r
				break
			}
		}
		if deletion == nil {
			continue
		}

		seq, pr, err := w.RereadRecordSequence(mftIndex)
		if err != nil {
			continue
		}

		if seq == deletion.Sequence() {
			entry, ok := w.BuildEntryFromRecord(mftIndex, pr)
			if ok && cfg.matches(entry.Path, entry.Name) {
				processed[mftIndex] = true
				fileFound(entry)
			}
			continue
		}

		entry := model.Unrecoverable(deletion.FileName, "<USN: MFT Overwritten>", 0, model.FilesystemNTFS, "")
		if cfg.matches(entry.Path, entry.Name) {
			processed[mftIndex] = true
			fileFound(entry)
		}

		cb.progress(fmt.Sprintf("usn: %d/%d records correlated", done, total), win.remap(float64(done)/float64(total)))
	}
	cb.progress(fmt.Sprintf("usn: %d records correlated", total), win.remap(1))
}

func scanExFAT(dev *disk.BlockDevice, cfg Config, cb Callbacks) bool {
	windows := stageWindows([]bool{cfg.EnableMFT, cfg.EnableCarving})
	var reported int
	countingFileFound := func(e model.DeletedEntry) {
		reported++
		cb.fileFound(e)
	}

	if cfg.EnableMFT {
		w, err := exfat.NewWalker(dev)
		if err != nil {
			cb.progress(fmt.Sprintf("scan: bad exFAT boot sector: %v", err), -1)
			return false
		}
		win := windows[0]
		w.Scan(
			exfat.Config{FolderFilter: cfg.FolderFilter, FilenameFilter: cfg.FilenameFilter},
			exfat.Callbacks{
				FileFound: countingFileFound,
				Progress:  func(msg string, f float64) { cb.progress(msg, win.remap(f)) },
				Cancelled: cb.cancelled,
			},
		)
		if cb.cancelled() {
			cb.progress("scan: stopped by user", -1)
			return reported > 0
		}
	}

	if cfg.EnableCarving {
		boot, err := exfat.ReadBootSector(dev)
		if err != nil {
			cb.progress(fmt.Sprintf("scan: bad exFAT boot sector: %v", err), -1)
			return reported > 0
		}
		win := windows[1]
		geo := carvingGeometry(dev, boot.SectorsPerCluster, boot.SectorSize, boot.ClusterHeapOffset)
		c := carve.NewCarver(dev)
		c.ScanFreeSpace(geo, carve.Callbacks{
			FileFound: countingFileFound,
			Progress:  func(msg string, f float64) { cb.progress(msg, win.remap(f)) },
			Cancelled: cb.cancelled,
		})
	}

	return reported > 0
}

func scanFAT32(dev *disk.BlockDevice, cfg Config, cb Callbacks) bool {
	windows := stageWindows([]bool{cfg.EnableMFT, cfg.EnableCarving})
	var reported int
	countingFileFound := func(e model.DeletedEntry) {
		reported++
		cb.fileFound(e)
	}

	if cfg.EnableMFT {
		w, err := fat32.NewWalker(dev)
		if err != nil {
			cb.progress(fmt.Sprintf("scan: bad FAT32 boot sector: %v", err), -1)
			return false
		}
		win := windows[0]
		w.Scan(
			fat32.Config{FolderFilter: cfg.FolderFilter, FilenameFilter: cfg.FilenameFilter},
			fat32.Callbacks{
				FileFound: countingFileFound,
				Progress:  func(msg string, f float64) { cb.progress(msg, win.remap(f)) },
				Cancelled: cb.cancelled,
			},
		)
		if cb.cancelled() {
			cb.progress("scan: stopped by user", -1)
			return reported > 0
		}
	}

	if cfg.EnableCarving {
		boot, err := fat32.ReadBootSector(dev)
		if err != nil {
			cb.progress(fmt.Sprintf("scan: bad FAT32 boot sector: %v", err), -1)
			return reported > 0
		}
		win := windows[1]
		geo := carvingGeometry(dev, boot.SectorsPerCluster, boot.SectorSize, boot.DataStartSector)
		c := carve.NewCarver(dev)
		c.ScanFreeSpace(geo, carve.Callbacks{
			FileFound: countingFileFound,
			Progress:  func(msg string, f float64) { cb.progress(msg, win.remap(f)) },
			Cancelled: cb.cancelled,
		})
	}

	return reported > 0
}

// carvingGeometry turns a filesystem's own geometry (sectors per cluster,
// sector size, and the sector offset of its data area/heap) into the
// carve.Geometry ScanFreeSpace expects, deriving the total local cluster
// count (numbering from 2, per spec.md §4.6's byte-offset formula) from the
// device's own total size rather than a filesystem-specific cluster-count
// field, since the carver walks the whole remaining device regardless of
// which filesystem fields happen to record it.
func carvingGeometry(dev *disk.BlockDevice, sectorsPerCluster, sectorSize, heapOffsetSectors uint64) carve.Geometry {
	clusterSize := sectorsPerCluster * sectorSize
	heapBytes := heapOffsetSectors * sectorSize
	total := dev.TotalBytes()

	var totalClusters uint64
	if clusterSize > 0 && total > heapBytes {
		totalClusters = 2 + (total-heapBytes)/clusterSize
	}

	return carve.Geometry{
		TotalClusters:     totalClusters,
		SectorsPerCluster: sectorsPerCluster,
		HeapOffsetSectors: heapOffsetSectors,
		SectorSize:        sectorSize,
	}
}
