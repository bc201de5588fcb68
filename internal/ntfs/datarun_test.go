package ntfs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/nullsector/volrecover/internal/model"
)

func TestDecodeDataRunsSingleRun(t *testing.T) {
	// header 0x32: lengthBytes=2, offsetBytes=3; length=0x0A0A, offset=0x001000
	data := []byte{0x32, 0x0A, 0x0A, 0x00, 0x10, 0x00, 0x00}
	runs, ok := decodeDataRuns(data, 4096)
	require.True(t, ok)
	require.Equal(t, []model.ClusterRange{{StartLCN: 0x1000, Count: 0x0A0A}}, runs)
}

func TestDecodeDataRunsNegativeOffset(t *testing.T) {
	// First run: length=10, LCN=+100. Second run: length=5, offset=-50 -> LCN=50.
	data := []byte{
		0x11, 0x0A, 0x64,
		0x11, 0x05, 0xCE, // 0xCE = -50 as signed byte
		0x00,
	}
	runs, ok := decodeDataRuns(data, 4096)
	require.True(t, ok)
	require.Equal(t, []model.ClusterRange{
		{StartLCN: 100, Count: 10},
		{StartLCN: 50, Count: 5},
	}, runs)
}

func TestDecodeDataRunsSparseRunSkipped(t *testing.T) {
	// header 0x30: lengthBytes=0 offsetBytes=3 -> invalid (lengthBytes must be > 0),
	// use a sparse run instead: offsetBytes=0 means no LCN delta applied.
	data := []byte{0x01, 0x05, 0x00}
	runs, ok := decodeDataRuns(data, 4096)
	require.True(t, ok)
	require.Nil(t, runs)
}

func TestDecodeDataRunsStopsAtZeroHeader(t *testing.T) {
	data := []byte{0x00, 0xFF, 0xFF}
	runs, ok := decodeDataRuns(data, 4096)
	require.True(t, ok)
	require.Nil(t, runs)
}

func TestDecodeDataRunsClusterCap(t *testing.T) {
	bytesPerCluster := uint64(100 * 1024 * 1024 * 1024) // 1 cluster already hits the 100GiB cap
	data := []byte{
		0x11, 0x01, 0x02, // run of 1 cluster at LCN 2
		0x11, 0x01, 0x05, // second run would exceed the cap
		0x00,
	}
	runs, ok := decodeDataRuns(data, bytesPerCluster)
	require.True(t, ok)
	require.Len(t, runs, 1)
}
