// Package ntfs implements spec.md §4.2 (NtfsWalker) and §4.5
// (UsnJournalReader): NTFS boot sector parsing, MFT record reads with
// fixup application, attribute decoding, data-run decoding, path
// reconstruction, and the $UsnJrnl:$J journal reader. The USN journal is
// an NTFS-only on-disk stream, so it is grounded on the same MFT-record
// reader this package already needs.
package ntfs

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

var binaryOrder = binary.LittleEndian

// bootSectorRaw mirrors the first 512 bytes of an NTFS volume byte-for-byte;
// unused regions are kept as opaque padding so the restruct offsets of the
// fields spec.md §4.2 actually needs (bytesPerSector, sectorsPerCluster,
// mftCluster, clustersPerMFTRecord) line up with the real on-disk layout.
type bootSectorRaw struct {
	Jump                 [3]byte
	OEMID                [8]byte
	BytesPerSector       uint16
	SectorsPerCluster    uint8
	pad1                 [34]byte
	MFTCluster           uint64
	MFTMirrCluster       uint64
	ClustersPerMFTRecord int8
	pad2                 [447]byte
}

// BootSector is the decoded subset of the NTFS boot sector spec.md §4.2
// names.
type BootSector struct {
	BytesPerSector       uint64
	SectorsPerCluster    uint64
	MFTCluster           uint64
	ClustersPerMFTRecord int8
}

// BytesPerCluster is BytesPerSector * SectorsPerCluster.
func (b BootSector) BytesPerCluster() uint64 {
	return b.BytesPerSector * b.SectorsPerCluster
}

// MFTRecordSize implements spec.md §4.2: positive ClustersPerMFTRecord means
// "that many clusters"; negative means "1 << -value bytes".
func (b BootSector) MFTRecordSize() uint64 {
	if b.ClustersPerMFTRecord >= 0 {
		return uint64(b.ClustersPerMFTRecord) * b.BytesPerCluster()
	}
	return 1 << uint(-b.ClustersPerMFTRecord)
}

const oemID = "NTFS    "

// ParseBootSector decodes a 512-byte NTFS boot sector. Returns
// model.ErrBadBootSector if the OEM ID doesn't match or the geometry is
// impossible (zero bytes-per-sector or sectors-per-cluster).
func ParseBootSector(sector []byte) (BootSector, error) {
	if len(sector) < 512 {
		return BootSector{}, fmt.Errorf("%w: short boot sector (%d bytes)", model.ErrBadBootSector, len(sector))
	}

	var raw bootSectorRaw
	if err := restruct.Unpack(sector[:512], binaryOrder, &raw); err != nil {
		return BootSector{}, fmt.Errorf("%w: %v", model.ErrBadBootSector, err)
	}

	if string(raw.OEMID[:]) != oemID {
		return BootSector{}, fmt.Errorf("%w: OEM id %q", model.ErrBadBootSector, raw.OEMID[:])
	}
	if raw.BytesPerSector == 0 || raw.SectorsPerCluster == 0 {
		return BootSector{}, fmt.Errorf("%w: zero sector/cluster geometry", model.ErrBadBootSector)
	}

	return BootSector{
		BytesPerSector:       uint64(raw.BytesPerSector),
		SectorsPerCluster:    uint64(raw.SectorsPerCluster),
		MFTCluster:           raw.MFTCluster,
		ClustersPerMFTRecord: raw.ClustersPerMFTRecord,
	}, nil
}

// ReadBootSector reads and parses LBA 0 from dev.
func ReadBootSector(dev *disk.BlockDevice) (BootSector, error) {
	sector := dev.ReadSectors(0, 1, disk.DefaultSectorSize)
	if sector == nil {
		return BootSector{}, fmt.Errorf("%w: failed to read boot sector", model.ErrReadFailed)
	}
	return ParseBootSector(sector)
}
