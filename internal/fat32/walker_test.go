package fat32

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

const testSectorSize = 512

// buildFat32Image assembles a tiny raw FAT32 image: boot sector, reserved
// sectors, a minimal FAT region, and a root directory occupying one cluster
// containing rootEntries. sectorsPerCluster is fixed at 8 (4096-byte
// clusters).
func buildFat32Image(t *testing.T, rootEntries []byte) (string, BootSector) {
	t.Helper()

	const sectorsPerCluster = 8
	const reservedSectors = 32
	const numberOfFATs = 2
	const fatSize32 = 100
	const rootCluster = 2

	sector := makeFat32BootSector(testSectorSize, sectorsPerCluster, reservedSectors, numberOfFATs, fatSize32, rootCluster)

	dataStart := uint64(reservedSectors) + uint64(numberOfFATs)*uint64(fatSize32)
	dataStartBytes := dataStart * testSectorSize
	clusterBytes := uint64(sectorsPerCluster) * testSectorSize
	imgSize := dataStartBytes + clusterBytes*8

	img := make([]byte, imgSize)
	copy(img[0:testSectorSize], sector)
	copy(img[dataStartBytes:dataStartBytes+uint64(len(rootEntries))], rootEntries)

	dir := t.TempDir()
	path := filepath.Join(dir, "fat32.img")
	require.NoError(t, os.WriteFile(path, img, 0o600))

	boot, err := ParseBootSector(sector)
	require.NoError(t, err)
	return path, boot
}

func TestWalkerScanFindsDeletedContiguousFile(t *testing.T) {
	entries := make([]byte, 4096)
	off := buildLFNEntrySet(entries, 0, "vacation.jpg", shortName("VACATI~1", "JPG"), 0x20, 10, 1048576, true)
	entries[off] = markerFree

	imgPath, boot := buildFat32Image(t, entries)

	dev, err := disk.Open(imgPath)
	require.NoError(t, err)
	defer dev.Close()

	w, err := NewWalker(dev)
	require.NoError(t, err)

	var found []model.DeletedEntry
	w.Scan(Config{}, Callbacks{
		FileFound: func(e model.DeletedEntry) { found = append(found, e) },
	})

	require.Len(t, found, 1)
	entry := found[0]
	require.Equal(t, "vacation_10.jpg", entry.Name)
	require.Equal(t, `<FAT32>\vacation_10.jpg`, entry.Path)
	require.True(t, entry.IsRecoverable)
	require.Len(t, entry.Location.ClusterList, 256) // 1048576 / 4096

	dataStartSector := boot.DataStartSector
	base := dataStartSector / boot.SectorsPerCluster
	require.Equal(t, base+(10-2), entry.Location.ClusterList[0])
	require.Equal(t, base+(10-2)+255, entry.Location.ClusterList[255])
}

func TestWalkerScanFiltersByFilename(t *testing.T) {
	entries := make([]byte, 4096)
	off := buildLFNEntrySet(entries, 0, "vacation.jpg", shortName("VACATI~1", "JPG"), 0x20, 10, 100, true)
	entries[off] = markerFree

	imgPath, _ := buildFat32Image(t, entries)
	dev, err := disk.Open(imgPath)
	require.NoError(t, err)
	defer dev.Close()

	w, err := NewWalker(dev)
	require.NoError(t, err)

	var found []model.DeletedEntry
	w.Scan(Config{FilenameFilter: "nomatch"}, Callbacks{
		FileFound: func(e model.DeletedEntry) { found = append(found, e) },
	})
	require.Empty(t, found)
}

func TestWalkerScanSkipsActiveFiles(t *testing.T) {
	entries := make([]byte, 4096)
	sn := shortName("KEEP", "TXT")
	copy(entries[0:11], sn[:])
	entries[11] = 0x20
	binaryOrder.PutUint32(entries[28:32], 10)
	entries[32] = markerFree

	imgPath, _ := buildFat32Image(t, entries)
	dev, err := disk.Open(imgPath)
	require.NoError(t, err)
	defer dev.Close()

	w, err := NewWalker(dev)
	require.NoError(t, err)

	var found []model.DeletedEntry
	w.Scan(Config{}, Callbacks{
		FileFound: func(e model.DeletedEntry) { found = append(found, e) },
	})
	require.Empty(t, found)
}
