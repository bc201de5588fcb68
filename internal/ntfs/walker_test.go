package ntfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

const (
	testSectorSize = 512
	testRecordSize = 512 // one sector per MFT record, for test simplicity
	testMFTCluster = 2   // $MFT starts at cluster 2
)

// writeMFTHeader fills in the fixed 48-byte MFT record header fields this
// package's parser relies on: signature, USA (disabled: count=0), sequence
// number, in-use/directory flags, first-attribute offset.
func writeMFTHeader(record []byte, sequenceNumber uint16, flags uint16, firstAttrOffset uint16) {
	copy(record[0:4], []byte("FILE"))
	binaryOrder.PutUint16(record[4:6], 0) // usaOffset (unused, usaCount=0)
	binaryOrder.PutUint16(record[6:8], 0) // usaCount
	binaryOrder.PutUint16(record[16:18], sequenceNumber)
	binaryOrder.PutUint16(record[20:22], firstAttrOffset)
	binaryOrder.PutUint16(record[22:24], flags)
}

// appendFileNameAttr writes a resident $FILE_NAME attribute at off, returns
// the offset just past it.
func appendFileNameAttr(record []byte, off int, name string, parent uint64, nameType uint8) int {
	nameUTF16 := make([]byte, 0, len(name)*2)
	for _, r := range name {
		nameUTF16 = append(nameUTF16, byte(r), 0)
	}
	valueLen := 66 + len(nameUTF16)
	attrLen := 24 + valueLen
	if attrLen%8 != 0 {
		attrLen += 8 - attrLen%8
	}

	binaryOrder.PutUint32(record[off:off+4], attrFileName)
	binaryOrder.PutUint32(record[off+4:off+8], uint32(attrLen))
	record[off+8] = 0 // resident
	binaryOrder.PutUint32(record[off+16:off+20], uint32(valueLen))
	binaryOrder.PutUint16(record[off+20:off+22], 24)

	value := record[off+24:]
	binaryOrder.PutUint64(value[0:8], parent)
	value[64] = byte(len(name))
	value[65] = nameType
	copy(value[66:], nameUTF16)

	return off + attrLen
}

// appendResidentDataAttr writes a resident, unnamed $DATA attribute at off.
func appendResidentDataAttr(record []byte, off int, content []byte) int {
	valueLen := len(content)
	attrLen := 24 + valueLen
	if attrLen%8 != 0 {
		attrLen += 8 - attrLen%8
	}

	binaryOrder.PutUint32(record[off:off+4], attrData)
	binaryOrder.PutUint32(record[off+4:off+8], uint32(attrLen))
	record[off+8] = 0 // resident
	binaryOrder.PutUint32(record[off+16:off+20], uint32(valueLen))
	binaryOrder.PutUint16(record[off+20:off+22], 24)
	copy(record[off+24:], content)

	return off + attrLen
}

// writeAttrEnd writes the 0xFFFFFFFF end marker at off.
func writeAttrEnd(record []byte, off int) {
	binaryOrder.PutUint32(record[off:off+4], attrEnd)
}

// buildSyntheticVolume assembles a minimal raw NTFS image: boot sector at
// cluster 0, then one MFT record per slot starting at cluster
// testMFTCluster. Slot 0 is $MFT itself, its non-resident $DATA realSize
// set to encode len(records)+1 total records.
func buildSyntheticVolume(t *testing.T, records [][]byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "volume.img")

	totalRecords := uint64(len(records)) + 1
	mftBytes := totalRecords * testRecordSize

	boot := makeBootSector(testSectorSize, 1, testMFTCluster, -9) // 2^9 = 512-byte records

	mft0 := make([]byte, testRecordSize)
	writeMFTHeader(mft0, 1, flagInUse, 56)
	// Non-resident $DATA: 72-byte attribute whose run list (at +64) is just
	// the 0x00 terminator; realSize (at +48) carries the record count.
	binaryOrder.PutUint32(mft0[56:60], attrData)
	binaryOrder.PutUint32(mft0[60:64], 72)
	mft0[56+8] = 1                                     // non-resident
	binaryOrder.PutUint16(mft0[56+32:56+34], 64)       // data-run offset
	binaryOrder.PutUint64(mft0[56+48:56+56], mftBytes) // realSize
	writeAttrEnd(mft0, 56+72)

	mftStart := testMFTCluster * testSectorSize
	imgSize := mftStart + int(mftBytes)
	img := make([]byte, imgSize)
	copy(img[0:testSectorSize], boot)
	copy(img[mftStart:mftStart+testRecordSize], mft0)
	for i, r := range records {
		start := mftStart + (i+1)*testRecordSize
		copy(img[start:start+testRecordSize], r)
	}

	require.NoError(t, os.WriteFile(path, img, 0o600))
	return path
}

func TestWalkerScanEmitsDeletedResidentFile(t *testing.T) {
	target := make([]byte, testRecordSize)
	writeMFTHeader(target, 9, 0, 56) // in-use bit CLEARED: this is what "deleted" looks like
	off := appendFileNameAttr(target, 56, "notes.txt", 5, nameTypeWin32)
	off = appendResidentDataAttr(target, off, []byte("hello deleted world"))
	writeAttrEnd(target, off)

	imgPath := buildSyntheticVolume(t, [][]byte{target})

	dev, err := disk.Open(imgPath)
	require.NoError(t, err)
	defer dev.Close()

	w, err := NewWalker(dev)
	require.NoError(t, err)
	require.Equal(t, uint64(2), w.RecordCount())

	var found []model.DeletedEntry
	processed := map[uint64]bool{}
	w.Scan(Config{}, Callbacks{
		FileFound: func(e model.DeletedEntry) { found = append(found, e) },
	}, processed)

	require.Len(t, found, 1)
	require.Equal(t, "notes.txt", found[0].Name)
	require.Equal(t, `<deleted>\notes.txt`, found[0].Path)
	require.True(t, found[0].IsRecoverable)
	require.Equal(t, []byte("hello deleted world"), found[0].Location.ResidentBytes)
	require.True(t, processed[1])
}

func TestWalkerScanAppliesFilenameFilter(t *testing.T) {
	target := make([]byte, testRecordSize)
	writeMFTHeader(target, 9, 0, 56)
	off := appendFileNameAttr(target, 56, "notes.txt", 5, nameTypeWin32)
	off = appendResidentDataAttr(target, off, []byte("data"))
	writeAttrEnd(target, off)

	imgPath := buildSyntheticVolume(t, [][]byte{target})
	dev, err := disk.Open(imgPath)
	require.NoError(t, err)
	defer dev.Close()

	w, err := NewWalker(dev)
	require.NoError(t, err)

	var found []model.DeletedEntry
	w.Scan(Config{FilenameFilter: "nomatch"}, Callbacks{
		FileFound: func(e model.DeletedEntry) { found = append(found, e) },
	}, map[uint64]bool{})
	require.Empty(t, found)
}

func TestWalkerScanSkipsInUseRecords(t *testing.T) {
	target := make([]byte, testRecordSize)
	writeMFTHeader(target, 9, flagInUse, 56) // still in use: not deleted
	off := appendFileNameAttr(target, 56, "live.txt", 5, nameTypeWin32)
	off = appendResidentDataAttr(target, off, []byte("data"))
	writeAttrEnd(target, off)

	imgPath := buildSyntheticVolume(t, [][]byte{target})
	dev, err := disk.Open(imgPath)
	require.NoError(t, err)
	defer dev.Close()

	w, err := NewWalker(dev)
	require.NoError(t, err)

	var found []model.DeletedEntry
	w.Scan(Config{}, Callbacks{
		FileFound: func(e model.DeletedEntry) { found = append(found, e) },
	}, map[uint64]bool{})
	require.Empty(t, found)
}
