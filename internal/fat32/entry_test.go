package fat32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func utf16EncodeFat(s string) []uint16 {
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

// writeLFNEntry writes one raw 32-byte LFN entry at off. chunk holds up to 13
// UTF-16 units; shorter chunks are 0x0000-terminated and 0xFFFF-padded.
func writeLFNEntry(buf []byte, off int, seq byte, chunk []uint16) {
	buf[off] = seq
	buf[off+11] = attrLFN

	padded := make([]uint16, 13)
	for i := range padded {
		padded[i] = 0xFFFF
	}
	copy(padded, chunk)
	if len(chunk) < 13 {
		padded[len(chunk)] = 0x0000
	}

	for k := 0; k < 5; k++ {
		binaryOrder.PutUint16(buf[off+1+k*2:off+3+k*2], padded[k])
	}
	for k := 0; k < 6; k++ {
		binaryOrder.PutUint16(buf[off+14+k*2:off+16+k*2], padded[5+k])
	}
	for k := 0; k < 2; k++ {
		binaryOrder.PutUint16(buf[off+28+k*2:off+30+k*2], padded[11+k])
	}
}

// buildLFNEntrySet writes the LFN chain (ordinal descending, i.e. the chain's
// last name chunk first) followed by one 8.3 short entry, per spec.md §4.4.
// If deleted, every entry's marker byte is overwritten with 0xE5.
func buildLFNEntrySet(buf []byte, off int, longName string, shortName [11]byte, attr byte, cluster uint32, size uint32, deleted bool) int {
	units := utf16EncodeFat(longName)
	count := (len(units) + 12) / 13
	if count == 0 {
		count = 1
	}

	for ord := count; ord >= 1; ord-- {
		start := (ord - 1) * 13
		end := start + 13
		if end > len(units) {
			end = len(units)
		}
		seq := byte(ord)
		if ord == count {
			seq |= lfnLastEntryBit
		}
		if deleted {
			seq = markerDeleted
		}
		writeLFNEntry(buf, off, seq, units[start:end])
		off += entrySize
	}

	if deleted {
		shortName[0] = markerDeleted
	}
	copy(buf[off:off+11], shortName[:])
	buf[off+11] = attr
	binaryOrder.PutUint16(buf[off+20:off+22], uint16(cluster>>16))
	binaryOrder.PutUint16(buf[off+26:off+28], uint16(cluster))
	binaryOrder.PutUint32(buf[off+28:off+32], size)
	off += entrySize

	return off
}

func shortName(base, ext string) [11]byte {
	var n [11]byte
	for i := range n {
		n[i] = ' '
	}
	copy(n[0:8], base)
	copy(n[8:11], ext)
	return n
}

func TestProcessDirectoryDecodesLongNameDeletedFile(t *testing.T) {
	buf := make([]byte, 512)
	off := buildLFNEntrySet(buf, 0, "vacation-photo-album.jpg", shortName("ILE~1", "JPG"), 0x20, 10, 2048, true)
	buf[off] = markerFree

	files, subdirs := processDirectory(buf)
	require.Empty(t, subdirs)
	require.Len(t, files, 1)
	require.Equal(t, "vacation-photo-album_10.jpg", files[0].name)
	require.Equal(t, uint32(2048), files[0].size)
	require.Equal(t, uint32(10), files[0].cluster)
}

func TestProcessDirectoryShortNameDeletedTombstone(t *testing.T) {
	buf := make([]byte, 512)
	sn := shortName("FILE~1", "TXT")
	sn[0] = markerDeleted
	buf[0] = markerDeleted
	copy(buf[0:11], sn[:])
	buf[11] = 0x20
	binaryOrder.PutUint16(buf[20:22], 0)
	binaryOrder.PutUint16(buf[26:28], 12)
	binaryOrder.PutUint32(buf[28:32], 99)
	buf[32] = markerFree

	files, _ := processDirectory(buf)
	require.Len(t, files, 1)
	require.Equal(t, "_ILE~1_12.TXT", files[0].name)
}

func TestProcessDirectorySkipsActiveShortFile(t *testing.T) {
	buf := make([]byte, 512)
	sn := shortName("KEEP", "TXT")
	copy(buf[0:11], sn[:])
	buf[11] = 0x20
	binaryOrder.PutUint32(buf[28:32], 10)
	buf[32] = markerFree

	files, _ := processDirectory(buf)
	require.Empty(t, files)
}

func TestProcessDirectoryQueuesActiveSubdirectory(t *testing.T) {
	buf := make([]byte, 512)
	sn := shortName("DOCS", "")
	copy(buf[0:11], sn[:])
	buf[11] = attrDirectory
	binaryOrder.PutUint16(buf[20:22], 0)
	binaryOrder.PutUint16(buf[26:28], 40)
	buf[32] = markerFree

	files, subdirs := processDirectory(buf)
	require.Empty(t, files)
	require.Len(t, subdirs, 1)
	require.Equal(t, "DOCS", subdirs[0].name)
	require.Equal(t, uint32(40), subdirs[0].cluster)
}
