package exfat

import (
	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

const (
	entrySize = 32

	entryTypeFileDeleted   = 0x05
	entryTypeFileActive    = 0x85
	entryTypeStreamDeleted = 0x40
	entryTypeStreamActive  = 0xC0
	entryTypeNameDeleted   = 0x41
	entryTypeNameActive    = 0xC1

	typeCategoryMask = 0x7F
	typeInUseBit     = 0x80

	fileAttrDirectory = 0x10

	maxDirBytes = 2 * 1024 * 1024
)

// dirWorkItem is one unit of the breadth-first directory queue, per
// spec.md §4.3. name is the subdirectory's own name, for the caller to
// append to its parent path.
type dirWorkItem struct {
	firstCluster uint32
	name         string
}

// foundFile is what ProcessDirectory hands back for each decoded, deleted,
// non-directory file entry triplet.
type foundFile struct {
	name         string
	path         string
	size         uint64
	firstCluster uint32
}

// category masks off the in-use bit, leaving the entry kind.
func category(entryType byte) byte { return entryType & typeCategoryMask }

// isDeleted reports whether the entry's in-use bit (0x80) is clear.
func isDeleted(entryType byte) bool { return entryType&typeInUseBit == 0 }

// processDirectory decodes one directory's cluster chain into deleted file
// entries and subdirectory work items, per spec.md §4.3's entry-triplet
// walk (file 0x05/0x85, stream 0x40/0xC0, name 0x41/0xC1).
func processDirectory(data []byte) ([]foundFile, []dirWorkItem) {
	var files []foundFile
	var subdirs []dirWorkItem

	i := 0
	for i+entrySize <= len(data) {
		entryType := data[i]
		if entryType == 0x00 {
			break
		}

		if category(entryType) != entryTypeFileDeleted&typeCategoryMask {
			i += entrySize
			continue
		}

		fileDeleted := isDeleted(entryType)
		secondaryCount := int(data[i+1])
		fileAttributes := binaryOrder.Uint16(data[i+4 : i+6])
		isDir := fileAttributes&fileAttrDirectory != 0

		if i+entrySize+secondaryCount*entrySize > len(data) {
			break
		}
		i += entrySize

		if i+entrySize > len(data) {
			break
		}
		streamType := data[i]
		if category(streamType) != entryTypeStreamDeleted&typeCategoryMask {
			i += secondaryCount * entrySize
			continue
		}

		// Stream extension entry layout: EntryType(1) GeneralSecondaryFlags(1)
		// Reserved1(1) NameLength(1) NameHash(2) Reserved2(2)
		// ValidDataLength(8) Reserved3(4) FirstCluster(4) DataLength(8).
		firstCluster := binaryOrder.Uint32(data[i+20 : i+24])
		dataLength := binaryOrder.Uint64(data[i+24 : i+32])
		nameLen := int(data[i+3])
		i += entrySize

		remaining := secondaryCount - 1
		var name []uint16
		for remaining > 0 && i+entrySize <= len(data) {
			nameType := data[i]
			if category(nameType) == entryTypeNameDeleted&typeCategoryMask {
				for k := 0; k < 15 && len(name) < nameLen; k++ {
					u := binaryOrder.Uint16(data[i+2+k*2 : i+4+k*2])
					name = append(name, u)
				}
			}
			i += entrySize
			remaining--
		}

		fullName := utf16LEUnitsToString(name)

		if isDir {
			if firstCluster >= 2 {
				subdirs = append(subdirs, dirWorkItem{firstCluster: firstCluster, name: fullName})
			}
			continue
		}

		if fileDeleted {
			files = append(files, foundFile{
				name:         fullName,
				size:         dataLength,
				firstCluster: firstCluster,
			})
		}
	}

	return files, subdirs
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

// readClusterChain reads an active directory's cluster chain (following
// the FAT, since the directory itself is not deleted), capped at
// maxDirBytes, stopping early at an end-of-directory marker (0x00), per
// spec.md §4.3.
func readClusterChain(dev *disk.BlockDevice, boot BootSector, startCluster uint32) []byte {
	if startCluster < 2 {
		return nil
	}

	var buf []byte
	cluster := startCluster
	visited := map[uint32]bool{}

	for len(buf) < maxDirBytes {
		if visited[cluster] {
			break
		}
		visited[cluster] = true

		sector := boot.ClusterHeapOffset + (uint64(cluster)-2)*boot.SectorsPerCluster
		data := dev.ReadSectors(sector, boot.SectorsPerCluster, boot.SectorSize)
		if data == nil {
			break
		}
		buf = append(buf, data...)

		if hasEndMarker(data) {
			break
		}

		next, ok := readFATEntry(dev, boot, cluster)
		if !ok {
			break
		}
		cluster = next
	}

	return buf
}

func hasEndMarker(data []byte) bool {
	for k := 0; k+entrySize <= len(data); k += entrySize {
		if data[k] == 0x00 {
			return true
		}
	}
	return false
}

// readFATEntry reads one 32-bit FAT entry, per spec.md §4.3. Entries >=
// 0xFFFFFFF8 mark end-of-chain; 0/1 and values above that (but not a valid
// cluster index) are treated as "no next cluster".
func readFATEntry(dev *disk.BlockDevice, boot BootSector, cluster uint32) (uint32, bool) {
	entryOffset := uint64(cluster) * 4
	sectorInFat := entryOffset / boot.SectorSize
	offsetInSector := entryOffset % boot.SectorSize

	data := dev.ReadSectors(boot.FatOffset+sectorInFat, 1, boot.SectorSize)
	if data == nil || offsetInSector+4 > uint64(len(data)) {
		return 0, false
	}

	entry := binaryOrder.Uint32(data[offsetInSector : offsetInSector+4])
	if entry >= 0xFFFFFFF8 {
		return 0, false
	}
	if entry >= 2 && entry <= 0xFFFFFFF6 {
		return entry, true
	}
	return 0, false
}
