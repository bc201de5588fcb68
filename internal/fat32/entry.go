package fat32

import (
	"fmt"
	"strings"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

const (
	entrySize = 32

	markerFree      = 0x00
	markerDeleted   = 0xE5
	attrLFN         = 0x0F
	attrDirectory   = 0x10
	attrVolumeID    = 0x08
	lfnLastEntryBit = 0x40

	maxDirBytes      = 2 * 1024 * 1024
	maxChainClusters = 2048 // ~8 MiB at 4 KiB clusters
)

// foundEntry is one decoded directory entry of interest: a deleted file,
// or an (active) subdirectory to queue.
type foundEntry struct {
	name    string
	isDir   bool
	size    uint32
	cluster uint32
}

// parseShortName implements spec.md §4.4's 8.3 name parsing: trim
// space/NUL padding, insert '.' before a present extension. The caller is
// responsible for the deleted-marker substitution (first byte 0xE5 ->
// '_').
func parseShortName(name [11]byte) string {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		if name[i] != ' ' && name[i] != 0 {
			b.WriteByte(name[i])
		}
	}
	hasExt := name[8] != ' ' && name[8] != 0
	if hasExt {
		b.WriteByte('.')
		for i := 8; i < 11; i++ {
			if name[i] != ' ' && name[i] != 0 {
				b.WriteByte(name[i])
			}
		}
	}
	return b.String()
}

// appendClusterSuffix inserts "_<cluster>" before the extension (or at the
// end, if there is none), per spec.md §4.4's deleted-entry disambiguation.
func appendClusterSuffix(name string, cluster uint32) string {
	suffix := fmt.Sprintf("_%d", cluster)
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		return name[:dot] + suffix + name[dot:]
	}
	return name + suffix
}

// lfnFragment decodes one LFN entry's three UTF-16 name chunks (5+6+2
// units), stopping at a 0x0000 or 0xFFFF terminator/filler unit.
func lfnFragment(entry []byte) string {
	var units []uint16
	collect := func(off, count int) {
		for k := 0; k < count; k++ {
			u := binaryOrder.Uint16(entry[off+k*2 : off+k*2+2])
			if u == 0x0000 || u == 0xFFFF {
				return
			}
			units = append(units, u)
		}
	}
	collect(1, 5)
	collect(14, 6)
	collect(28, 2)
	return utf16LEUnitsToString(units)
}

// utf16LEUnitsToString packs raw UTF-16 code units back into bytes and
// hands them to the shared golang.org/x/text decoder (see
// model.DecodeUTF16LE), rather than hand-rolling a surrogate-pair decode
// loop per filesystem.
func utf16LEUnitsToString(units []uint16) string {
	b := make([]byte, len(units)*2)
	for i, u := range units {
		binaryOrder.PutUint16(b[i*2:i*2+2], u)
	}
	return model.DecodeUTF16LE(b)
}

// processDirectory decodes one directory cluster-chain buffer into deleted
// file entries and subdirectory work items, per spec.md §4.4.
func processDirectory(data []byte) ([]foundEntry, []foundEntry) {
	var files []foundEntry
	var subdirs []foundEntry

	var lfnBuffer string

	for i := 0; i+entrySize <= len(data); i += entrySize {
		marker := data[i]
		attr := data[i+11]

		if marker == markerFree {
			break
		}

		if attr == attrLFN {
			// A deleted LFN's first byte is 0xE5, which also has the 0x40
			// "last entry" bit set; clearing the buffer on that bit would
			// erase every fragment already collected for a deleted name.
			isDeletedLFN := marker == markerDeleted
			sequenceNo := marker
			if sequenceNo&lfnLastEntryBit != 0 && !isDeletedLFN {
				lfnBuffer = ""
			}
			lfnBuffer = lfnFragment(data[i:i+entrySize]) + lfnBuffer
			continue
		}

		isDir := attr&attrDirectory != 0
		isVolumeID := attr&attrVolumeID != 0
		isDeleted := marker == markerDeleted

		if isVolumeID {
			lfnBuffer = ""
			continue
		}
		if data[i] == '.' {
			lfnBuffer = ""
			continue
		}

		var name string
		if lfnBuffer != "" {
			name = lfnBuffer
		} else {
			var shortName [11]byte
			copy(shortName[:], data[i:i+11])
			name = parseShortName(shortName)
			if isDeleted && name != "" {
				name = "_" + name[1:]
			}
		}
		lfnBuffer = ""

		clusterHigh := binaryOrder.Uint16(data[i+20 : i+22])
		clusterLow := binaryOrder.Uint16(data[i+26 : i+28])
		cluster := uint32(clusterHigh)<<16 | uint32(clusterLow)
		size := binaryOrder.Uint32(data[i+28 : i+32])

		if isDeleted && cluster >= 2 {
			name = appendClusterSuffix(name, cluster)
		}

		entry := foundEntry{name: name, isDir: isDir, size: size, cluster: cluster}
		if isDir {
			if cluster >= 2 {
				subdirs = append(subdirs, entry)
			}
			continue
		}
		if isDeleted {
			files = append(files, entry)
		}
	}

	return files, subdirs
}

// readClusterChain reads a directory's contents assuming contiguous
// cluster allocation, per spec.md §4.4 (grounded on the same contiguous-
// read strategy the carver and exFAT's deleted-file path use): active
// FAT32 directories are followed sequentially rather than via the real FAT
// chain, capped at maxDirBytes / maxChainClusters.
func readClusterChain(dev *disk.BlockDevice, boot BootSector, startCluster uint32) []byte {
	if startCluster < 2 {
		return nil
	}

	var buf []byte
	cluster := startCluster
	for n := 0; n < maxChainClusters && len(buf) < maxDirBytes; n++ {
		sector := boot.DataStartSector + (uint64(cluster)-2)*boot.SectorsPerCluster
		data := dev.ReadSectors(sector, boot.SectorsPerCluster, boot.SectorSize)
		if data == nil {
			break
		}
		buf = append(buf, data...)
		cluster++
	}
	return buf
}
