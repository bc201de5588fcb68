// Package fat32 implements spec.md §4.4: FAT32 boot sector parsing,
// breadth-first directory traversal, long-filename stitching, and
// contiguous-allocation reconstruction of deleted files.
package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

var binaryOrder = binary.LittleEndian

// bootSectorRaw mirrors the BIOS Parameter Block fields this package
// needs, grounded on the teacher's FatBootSector layout (bytesPerSector at
// 0x0B, sectorsPerCluster at 0x0D, reservedSectors at 0x0E, numberOfFATs at
// 0x10, rootEntryCount at 0x11, fatSize16 at 0x16, fatSize32 at 0x24,
// rootCluster at 0x2C, signature at 0x1FE).
type bootSectorRaw struct {
	Jump              [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumberOfFATs      uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	FATSize16         uint16
	SectorsPerTrack   uint16
	NumberOfHeads     uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	FATSize32         uint32
	ExtFlags          uint16
	FSVersion         uint16
	RootCluster       uint32
	pad               [462]byte
	Signature         uint16
}

const bootSectorSignature = 0xAA55

// BootSector is the subset of a parsed FAT32 BPB the walker needs.
type BootSector struct {
	SectorSize        uint64
	SectorsPerCluster uint64
	RootCluster       uint32
	DataStartSector   uint64
}

func (b BootSector) ClusterSize() uint64 {
	return b.SectorSize * b.SectorsPerCluster
}

// AbsoluteLCN converts a FAT32 cluster index (>= 2) to an absolute LCN, per
// spec.md §4.4: "PhysicalCluster = DataStartSector/SectorsPerCluster +
// (cluster - 2)".
func (b BootSector) AbsoluteLCN(cluster uint32) uint64 {
	if b.SectorsPerCluster == 0 {
		return 0
	}
	base := b.DataStartSector / b.SectorsPerCluster
	return base + (uint64(cluster) - 2)
}

func ParseBootSector(sector []byte) (BootSector, error) {
	if len(sector) < 512 {
		return BootSector{}, fmt.Errorf("%w: short boot sector (%d bytes)", model.ErrBadBootSector, len(sector))
	}

	var raw bootSectorRaw
	if err := restruct.Unpack(sector[:512], binaryOrder, &raw); err != nil {
		return BootSector{}, fmt.Errorf("%w: %v", model.ErrBadBootSector, err)
	}

	if raw.Signature != bootSectorSignature {
		return BootSector{}, fmt.Errorf("%w: bad boot sector signature 0x%04X", model.ErrBadBootSector, raw.Signature)
	}
	// FAT32 validation per spec.md §4.4: rootEntryCount and fatSize16 must
	// be 0 (those fields belong to FAT12/16).
	if raw.RootEntryCount != 0 || raw.FATSize16 != 0 {
		return BootSector{}, fmt.Errorf("%w: not a FAT32 BPB (rootEntryCount/fatSize16 nonzero)", model.ErrBadBootSector)
	}
	if raw.BytesPerSector == 0 || raw.SectorsPerCluster == 0 {
		return BootSector{}, fmt.Errorf("%w: zero sector/cluster geometry", model.ErrBadBootSector)
	}

	dataStart := uint64(raw.ReservedSectors) + uint64(raw.NumberOfFATs)*uint64(raw.FATSize32)

	return BootSector{
		SectorSize:        uint64(raw.BytesPerSector),
		SectorsPerCluster: uint64(raw.SectorsPerCluster),
		RootCluster:       raw.RootCluster,
		DataStartSector:   dataStart,
	}, nil
}

func ReadBootSector(dev *disk.BlockDevice) (BootSector, error) {
	sector := dev.ReadSectors(0, 1, disk.DefaultSectorSize)
	if sector == nil {
		return BootSector{}, fmt.Errorf("%w: failed to read boot sector", model.ErrReadFailed)
	}
	return ParseBootSector(sector)
}
