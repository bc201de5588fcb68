package exfat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildFileTriplet writes a File + StreamExtension + N NameEntry entries at
// off, returns the offset just past them.
func buildFileTriplet(buf []byte, off int, fileTypeByte, streamTypeByte, nameTypeByte byte, name string, isDir bool, size uint64, firstCluster uint32) int {
	nameUnits := utf16Encode(name)
	secondaryCount := 1 + (len(nameUnits)+14)/15

	buf[off] = fileTypeByte
	buf[off+1] = byte(secondaryCount)
	if isDir {
		binaryOrder.PutUint16(buf[off+4:off+6], fileAttrDirectory)
	}
	off += entrySize

	buf[off] = streamTypeByte
	buf[off+3] = byte(len(nameUnits))
	binaryOrder.PutUint32(buf[off+20:off+24], firstCluster)
	binaryOrder.PutUint64(buf[off+24:off+32], size)
	off += entrySize

	remaining := nameUnits
	for i := 0; i < secondaryCount-1; i++ {
		buf[off] = nameTypeByte
		chunk := remaining
		if len(chunk) > 15 {
			chunk = chunk[:15]
		}
		for k, u := range chunk {
			binaryOrder.PutUint16(buf[off+2+k*2:off+4+k*2], u)
		}
		remaining = remaining[len(chunk):]
		off += entrySize
	}
	return off
}

func utf16Encode(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r > 0xFFFF {
			r -= 0x10000
			out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		} else {
			out = append(out, uint16(r))
		}
	}
	return out
}

func TestProcessDirectoryDecodesDeletedFile(t *testing.T) {
	buf := make([]byte, 256)
	off := buildFileTriplet(buf, 0, entryTypeFileDeleted, entryTypeStreamDeleted, entryTypeNameDeleted, "photo.jpg", false, 1024, 10)
	buf[off] = 0x00

	files, subdirs := processDirectory(buf)
	require.Empty(t, subdirs)
	require.Len(t, files, 1)
	require.Equal(t, "photo.jpg", files[0].name)
	require.Equal(t, uint64(1024), files[0].size)
	require.Equal(t, uint32(10), files[0].firstCluster)
}

func TestProcessDirectorySkipsActiveFile(t *testing.T) {
	buf := make([]byte, 256)
	off := buildFileTriplet(buf, 0, entryTypeFileActive, entryTypeStreamActive, entryTypeNameActive, "keep.txt", false, 10, 20)
	buf[off] = 0x00

	files, _ := processDirectory(buf)
	require.Empty(t, files)
}

func TestProcessDirectoryQueuesSubdirectory(t *testing.T) {
	buf := make([]byte, 256)
	off := buildFileTriplet(buf, 0, entryTypeFileActive, entryTypeStreamActive, entryTypeNameActive, "Documents", true, 0, 30)
	buf[off] = 0x00

	files, subdirs := processDirectory(buf)
	require.Empty(t, files)
	require.Len(t, subdirs, 1)
	require.Equal(t, "Documents", subdirs[0].name)
	require.Equal(t, uint32(30), subdirs[0].firstCluster)
}

func TestProcessDirectoryLongNameAcrossMultipleEntries(t *testing.T) {
	longName := "a-very-long-original-filename-needing-two-name-entries.bin"
	buf := make([]byte, 256)
	off := buildFileTriplet(buf, 0, entryTypeFileDeleted, entryTypeStreamDeleted, entryTypeNameDeleted, longName, false, 5000, 15)
	buf[off] = 0x00

	files, _ := processDirectory(buf)
	require.Len(t, files, 1)
	require.Equal(t, longName, files[0].name)
}
