// Package exfat implements spec.md §4.3: boot sector parsing, breadth-first
// directory traversal, and contiguous-allocation reconstruction of deleted
// files on an exFAT volume.
package exfat

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

var binaryOrder = binary.LittleEndian

// bootSectorHeaderRaw mirrors the exFAT spec's Main Boot Sector fields
// (§3.1), decoded with restruct the same way the NTFS boot sector is.
type bootSectorHeaderRaw struct {
	JumpBoot                    [3]byte
	FileSystemName               [8]byte
	MustBeZero                  [53]byte
	PartitionOffset              uint64
	VolumeLength                 uint64
	FatOffset                    uint32
	FatLength                    uint32
	ClusterHeapOffset            uint32
	ClusterCount                 uint32
	FirstClusterOfRootDirectory  uint32
	VolumeSerialNumber           uint32
	FileSystemRevision           [2]uint8
	VolumeFlags                  uint16
	BytesPerSectorShift          uint8
	SectorsPerClusterShift       uint8
	NumberOfFats                 uint8
	DriveSelect                  uint8
	PercentInUse                 uint8
	Reserved                     [7]byte
	pad                          [392]byte
}

const oemName = "EXFAT   "

// BootSector is the subset of the exFAT boot sector this package's walker
// needs.
type BootSector struct {
	SectorSize        uint64
	SectorsPerCluster uint64
	FatOffset         uint64 // sectors
	FatLength         uint64 // sectors
	ClusterHeapOffset uint64 // sectors
	RootDirCluster    uint32
}

func (b BootSector) BytesPerCluster() uint64 {
	return b.SectorSize * b.SectorsPerCluster
}

// HeapClusterBase is the absolute logical cluster number corresponding to
// cluster index 2 (the first heap cluster), per spec.md §4.3's
// "heapClusterBase = clusterHeapOffset / sectorsPerCluster".
func (b BootSector) HeapClusterBase() uint64 {
	if b.SectorsPerCluster == 0 {
		return 0
	}
	return b.ClusterHeapOffset / b.SectorsPerCluster
}

// AbsoluteLCN converts an exFAT cluster index (>= 2) to an absolute LCN.
func (b BootSector) AbsoluteLCN(clusterIndex uint32) uint64 {
	return b.HeapClusterBase() + (uint64(clusterIndex) - 2)
}

func ParseBootSector(sector []byte) (BootSector, error) {
	if len(sector) < 512 {
		return BootSector{}, fmt.Errorf("%w: short boot sector (%d bytes)", model.ErrBadBootSector, len(sector))
	}

	var raw bootSectorHeaderRaw
	if err := restruct.Unpack(sector[:512], binaryOrder, &raw); err != nil {
		return BootSector{}, fmt.Errorf("%w: %v", model.ErrBadBootSector, err)
	}

	if string(raw.FileSystemName[:]) != oemName {
		return BootSector{}, fmt.Errorf("%w: OEM name %q", model.ErrBadBootSector, raw.FileSystemName[:])
	}
	if raw.BytesPerSectorShift < 9 || raw.BytesPerSectorShift > 12 {
		return BootSector{}, fmt.Errorf("%w: invalid bytes-per-sector shift %d", model.ErrBadBootSector, raw.BytesPerSectorShift)
	}
	if raw.FirstClusterOfRootDirectory < 2 {
		return BootSector{}, fmt.Errorf("%w: invalid root directory cluster", model.ErrBadBootSector)
	}

	return BootSector{
		SectorSize:        1 << raw.BytesPerSectorShift,
		SectorsPerCluster: 1 << raw.SectorsPerClusterShift,
		FatOffset:         uint64(raw.FatOffset),
		FatLength:         uint64(raw.FatLength),
		ClusterHeapOffset: uint64(raw.ClusterHeapOffset),
		RootDirCluster:    raw.FirstClusterOfRootDirectory,
	}, nil
}

func ReadBootSector(dev *disk.BlockDevice) (BootSector, error) {
	sector := dev.ReadSectors(0, 1, disk.DefaultSectorSize)
	if sector == nil {
		return BootSector{}, fmt.Errorf("%w: failed to read boot sector", model.ErrReadFailed)
	}
	return ParseBootSector(sector)
}
