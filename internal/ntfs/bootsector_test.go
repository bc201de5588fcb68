package ntfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeBootSector(bytesPerSector uint16, sectorsPerCluster uint8, mftCluster uint64, clustersPerMFTRecord int8) []byte {
	sector := make([]byte, 512)
	copy(sector[3:11], []byte(oemID))
	binaryOrder.PutUint16(sector[11:13], bytesPerSector)
	sector[13] = sectorsPerCluster
	binaryOrder.PutUint64(sector[48:56], mftCluster)
	sector[64] = byte(clustersPerMFTRecord)
	return sector
}

func TestParseBootSector(t *testing.T) {
	sector := makeBootSector(512, 8, 4, -10) // -10 -> 1024-byte records
	boot, err := ParseBootSector(sector)
	require.NoError(t, err)
	require.Equal(t, uint64(512), boot.BytesPerSector)
	require.Equal(t, uint64(8), boot.SectorsPerCluster)
	require.Equal(t, uint64(4096), boot.BytesPerCluster())
	require.Equal(t, uint64(1024), boot.MFTRecordSize())
}

func TestParseBootSectorPositiveClustersPerRecord(t *testing.T) {
	sector := makeBootSector(512, 8, 4, 1)
	boot, err := ParseBootSector(sector)
	require.NoError(t, err)
	require.Equal(t, uint64(4096), boot.MFTRecordSize())
}

func TestParseBootSectorRejectsShort(t *testing.T) {
	_, err := ParseBootSector(make([]byte, 100))
	require.Error(t, err)
}

func TestParseBootSectorRejectsBadOEM(t *testing.T) {
	sector := makeBootSector(512, 8, 4, -10)
	copy(sector[3:11], []byte("FAT32   "))
	_, err := ParseBootSector(sector)
	require.Error(t, err)
}

func TestParseBootSectorRejectsZeroGeometry(t *testing.T) {
	sector := makeBootSector(0, 8, 4, -10)
	_, err := ParseBootSector(sector)
	require.Error(t, err)
}
