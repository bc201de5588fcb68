package orchestrate

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullsector/volrecover/internal/disk"
)

func makeNTFSBootSector() []byte {
	b := make([]byte, 512)
	copy(b[3:11], []byte("NTFS    "))
	binary.LittleEndian.PutUint16(b[11:13], 512)
	b[13] = 8
	binary.LittleEndian.PutUint64(b[48:56], 1000)
	b[64] = 0xF6 // -10 as int8: 1 << 10 bytes per MFT record
	return b
}

func makeExFATBootSector() []byte {
	b := make([]byte, 512)
	copy(b[3:11], []byte("EXFAT   "))
	binary.LittleEndian.PutUint32(b[88:92], 2048) // ClusterHeapOffset
	binary.LittleEndian.PutUint32(b[92:96], 1000)  // ClusterCount
	binary.LittleEndian.PutUint32(b[96:100], 5)    // FirstClusterOfRootDirectory
	b[108] = 9                                     // BytesPerSectorShift -> 512
	b[109] = 3                                     // SectorsPerClusterShift -> 8
	return b
}

func makeFAT32BootSector() []byte {
	b := make([]byte, 512)
	copy(b[3:11], []byte("MSDOS5.0"))
	binary.LittleEndian.PutUint16(b[11:13], 512)
	b[13] = 8 // SectorsPerCluster
	binary.LittleEndian.PutUint16(b[14:16], 32)
	b[16] = 2
	binary.LittleEndian.PutUint32(b[36:40], 1000) // FATSize32
	binary.LittleEndian.PutUint32(b[44:48], 2)    // RootCluster
	binary.LittleEndian.PutUint16(b[510:512], 0xAA55)
	return b
}

func writeImage(t *testing.T, bootSector []byte) *disk.BlockDevice {
	t.Helper()
	img := make([]byte, 4<<20)
	copy(img, bootSector)

	dir := t.TempDir()
	path := filepath.Join(dir, "vol.img")
	require.NoError(t, os.WriteFile(path, img, 0o600))

	dev, err := disk.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestDetectFilesystemNTFS(t *testing.T) {
	dev := writeImage(t, makeNTFSBootSector())
	fs, err := DetectFilesystem(dev)
	require.NoError(t, err)
	require.Equal(t, FilesystemNTFS, fs)
}

func TestDetectFilesystemExFAT(t *testing.T) {
	dev := writeImage(t, makeExFATBootSector())
	fs, err := DetectFilesystem(dev)
	require.NoError(t, err)
	require.Equal(t, FilesystemExFAT, fs)
}

func TestDetectFilesystemFAT32(t *testing.T) {
	dev := writeImage(t, makeFAT32BootSector())
	fs, err := DetectFilesystem(dev)
	require.NoError(t, err)
	require.Equal(t, FilesystemFAT32, fs)
}

func TestDetectFilesystemUnrecognized(t *testing.T) {
	dev := writeImage(t, make([]byte, 512))
	_, err := DetectFilesystem(dev)
	require.Error(t, err)
}

func TestStageWindowsAllThreeEnabled(t *testing.T) {
	windows := stageWindows([]bool{true, true, true})
	require.InDelta(t, 0.0, windows[0].start, 1e-9)
	require.InDelta(t, 1.0/3, windows[0].end, 1e-9)
	require.InDelta(t, 1.0/3, windows[1].start, 1e-9)
	require.InDelta(t, 2.0/3, windows[1].end, 1e-9)
	require.InDelta(t, 2.0/3, windows[2].start, 1e-9)
	require.InDelta(t, 1.0, windows[2].end, 1e-9)
}

func TestStageWindowsRedistributesDisabledStages(t *testing.T) {
	windows := stageWindows([]bool{true, false, true})
	require.InDelta(t, 0.0, windows[0].start, 1e-9)
	require.InDelta(t, 0.5, windows[0].end, 1e-9)
	require.Equal(t, windows[1].start, windows[1].end) // disabled: zero-width
	require.InDelta(t, 0.5, windows[2].start, 1e-9)
	require.InDelta(t, 1.0, windows[2].end, 1e-9)
}

func TestStageWindowRemapPassesThroughNegativeFraction(t *testing.T) {
	w := stageWindow{start: 0.5, end: 1.0}
	require.Equal(t, -1.0, w.remap(-1))
	require.InDelta(t, 0.75, w.remap(0.5), 1e-9)
}

func TestCarvingGeometryDerivesTotalClustersFromDeviceSize(t *testing.T) {
	dev := writeImage(t, make([]byte, 512))
	geo := carvingGeometry(dev, 8, 512, 0)
	require.Equal(t, uint64(8*512), geo.SectorsPerCluster*geo.SectorSize)
	require.True(t, geo.TotalClusters > 2)
}

func writeWholeDiskImage(t *testing.T, partitionStartLBA uint32, bootSector []byte) *disk.BlockDevice {
	t.Helper()
	img := make([]byte, 4<<20)

	mbr := make([]byte, 512)
	entryOffset := 0x1BE
	mbr[entryOffset] = 0x80
	mbr[entryOffset+0x04] = 0x0C // FAT32 LBA
	binary.LittleEndian.PutUint32(mbr[entryOffset+0x08:], partitionStartLBA)
	binary.LittleEndian.PutUint32(mbr[entryOffset+0x0C:], 8192)
	binary.LittleEndian.PutUint16(mbr[0x1FE:], 0xAA55)
	copy(img, mbr)

	copy(img[uint64(partitionStartLBA)*512:], bootSector)

	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(path, img, 0o600))

	dev, err := disk.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestScanFindsFilesystemBehindMBRPartition(t *testing.T) {
	dev := writeWholeDiskImage(t, 2048, makeFAT32BootSector())

	fs, err := DetectFilesystem(dev)
	require.Error(t, err) // sector 0 is an MBR, not a FAT32/NTFS/exFAT boot sector

	partDev, foundFS, err := findFilesystemInMBR(dev)
	require.NoError(t, err)
	require.Equal(t, FilesystemFAT32, foundFS)
	require.NotEqual(t, fs, foundFS)

	got := partDev.ReadSectors(0, 1, partDev.SectorSize())
	require.Equal(t, makeFAT32BootSector(), got)
}
