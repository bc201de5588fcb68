package recover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

func makeImage(t *testing.T, size int) *disk.BlockDevice {
	t.Helper()
	img := make([]byte, size)
	for i := range img {
		img[i] = byte(i % 251)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "vol.img")
	require.NoError(t, os.WriteFile(path, img, 0o600))

	dev, err := disk.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestValidateDestinationAllowsUNC(t *testing.T) {
	require.NoError(t, ValidateDestination("C", `\\server\share\out`))
}

func TestValidateDestinationRejectsSameDrive(t *testing.T) {
	err := ValidateDestination("C", `c:\recovered`)
	require.ErrorIs(t, err, model.ErrDestinationIsSrc)
}

func TestValidateDestinationAllowsDifferentDrive(t *testing.T) {
	require.NoError(t, ValidateDestination("C", `D:\recovered`))
}

func TestWriteFileResidentBytes(t *testing.T) {
	dev := makeImage(t, 4096)
	entry := model.Recoverable("hello.txt", "/hello.txt", 5, model.FilesystemNTFS, 4096, model.Location{
		ResidentBytes: []byte("hello"),
	})

	dest := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, WriteFile(dev, entry, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestWriteFileClusterList(t *testing.T) {
	dev := makeImage(t, 64*1024)
	clusterSize := uint64(4096)
	entry := model.Recoverable("x.bin", model.PathPrefixCarved, clusterSize*2, model.FilesystemCarved, clusterSize, model.Location{
		ClusterList: []uint64{2, 3},
	})

	dest := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, WriteFile(dev, entry, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Len(t, got, int(clusterSize*2))

	sectorsPerCluster := clusterSize / dev.SectorSize()
	want := dev.ReadSectors(2*sectorsPerCluster, sectorsPerCluster*2, dev.SectorSize())
	require.Equal(t, want, got)
}

func TestWriteFileClusterRangesStopsAtSize(t *testing.T) {
	dev := makeImage(t, 64*1024)
	clusterSize := uint64(4096)
	size := clusterSize + 100 // spills one byte-chunk into the second cluster
	entry := model.Recoverable("y.bin", model.PathPrefixCarved, size, model.FilesystemCarved, clusterSize, model.Location{
		ClusterRanges: []model.ClusterRange{{StartLCN: 4, Count: 3}},
	})

	dest := filepath.Join(t.TempDir(), "y.bin")
	require.NoError(t, WriteFile(dev, entry, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Len(t, got, int(size))
}

func TestWriteFileRejectsEmptyLocation(t *testing.T) {
	dev := makeImage(t, 4096)
	entry := model.Recoverable("empty.bin", "/empty.bin", 10, model.FilesystemNTFS, 4096, model.Location{})

	dest := filepath.Join(t.TempDir(), "empty.bin")
	err := WriteFile(dev, entry, dest)
	require.ErrorIs(t, err, model.ErrLocationLost)
}

func TestWriteFileZeroFillsFailedRead(t *testing.T) {
	dev := makeImage(t, 4096) // only one 4 KiB cluster worth of backing bytes
	clusterSize := uint64(4096)
	entry := model.Recoverable("gap.bin", model.PathPrefixCarved, clusterSize, model.FilesystemCarved, clusterSize, model.Location{
		ClusterList: []uint64{100}, // far past the end of the backing image
	})

	dest := filepath.Join(t.TempDir(), "gap.bin")
	require.NoError(t, WriteFile(dev, entry, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Len(t, got, int(clusterSize))
	for _, b := range got {
		require.Equal(t, byte(0), b)
	}
}

func TestRecoverManyWritesAllFiles(t *testing.T) {
	dev := makeImage(t, 64*1024)
	files := []model.DeletedEntry{
		model.Recoverable("a.txt", "/a.txt", 3, model.FilesystemNTFS, 4096, model.Location{ResidentBytes: []byte("abc")}),
		model.Recoverable("b.txt", "/b.txt", 3, model.FilesystemNTFS, 4096, model.Location{ResidentBytes: []byte("xyz")}),
	}

	destDir := t.TempDir()
	var messages []string
	ok := RecoverMany(dev, files, "C", destDir, func(msg string, f float64) {
		messages = append(messages, msg)
	})

	require.True(t, ok)
	require.NotEmpty(t, messages)

	a, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), a)

	b, err := os.ReadFile(filepath.Join(destDir, "b.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("xyz"), b)
}

func TestRecoverManyContinuesPastFailures(t *testing.T) {
	dev := makeImage(t, 64*1024)
	files := []model.DeletedEntry{
		model.Recoverable("bad.bin", "/bad.bin", 10, model.FilesystemNTFS, 4096, model.Location{}),
		model.Recoverable("good.txt", "/good.txt", 4, model.FilesystemNTFS, 4096, model.Location{ResidentBytes: []byte("good")}),
	}

	destDir := t.TempDir()
	ok := RecoverMany(dev, files, "C", destDir, nil)
	require.True(t, ok)

	good, err := os.ReadFile(filepath.Join(destDir, "good.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("good"), good)
}

func TestRecoverManyRejectsSameVolumeDestination(t *testing.T) {
	dev := makeImage(t, 4096)
	files := []model.DeletedEntry{
		model.Recoverable("a.txt", "/a.txt", 3, model.FilesystemNTFS, 4096, model.Location{ResidentBytes: []byte("abc")}),
	}

	ok := RecoverMany(dev, files, "C", `C:\recovered`, nil)
	require.False(t, ok)
}
