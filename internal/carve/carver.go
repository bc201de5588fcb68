package carve

import (
	"fmt"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

// batchClusters is the carving batch size, per spec.md §4.7: "iterates the
// data area in batches of 65 536 clusters (≈ 256 MiB at 4 KiB clusters)".
const batchClusters = 65_536

// MaxFilesPerBatch bounds how many hits a single ScanRegion call may emit,
// matching spec.md §4.6's max_files budget.
const MaxFilesPerBatch = 100_000

type Callbacks struct {
	FileFound func(model.DeletedEntry)
	Progress  func(stage string, fraction float64)
	Cancelled func() bool
}

func (cb Callbacks) fileFound(e model.DeletedEntry) {
	if cb.FileFound != nil {
		cb.FileFound(e)
	}
}

func (cb Callbacks) progress(stage string, fraction float64) {
	if cb.Progress != nil {
		cb.Progress(stage, fraction)
	}
}

func (cb Callbacks) cancelled() bool {
	return cb.Cancelled != nil && cb.Cancelled()
}

// Carver drives ScanRegion in batches across a volume's whole data area,
// per spec.md §4.7 stage 3.
type Carver struct {
	dev *disk.BlockDevice
}

func NewCarver(dev *disk.BlockDevice) *Carver {
	return &Carver{dev: dev}
}

// Geometry is the subset of a parsed boot sector the carver needs to turn
// cluster numbers into byte offsets: every walker's BootSector type
// (ntfs/exfat/fat32) supplies these via its own field names, so callers
// adapt at the orchestrator boundary.
type Geometry struct {
	TotalClusters     uint64
	SectorsPerCluster uint64
	HeapOffsetSectors uint64
	SectorSize        uint64
}

// ScanFreeSpace walks the whole data area in batchClusters-sized windows,
// turning each CarvedHit into a DeletedEntry with cluster_list =
// [startCluster .. startCluster+clustersNeeded-1] and path "<carved from
// free space>", per spec.md §4.7. Cancellation is polled at each batch
// boundary.
func (c *Carver) ScanFreeSpace(geo Geometry, cb Callbacks) {
	if geo.SectorsPerCluster == 0 || geo.SectorSize == 0 || geo.TotalClusters < 2 {
		return
	}
	clusterSize := geo.SectorsPerCluster * geo.SectorSize

	var cluster uint64 = 2
	for cluster < geo.TotalClusters {
		if cb.cancelled() {
			return
		}

		count := batchClusters
		if cluster+uint64(count) > geo.TotalClusters {
			count = int(geo.TotalClusters - cluster)
		}

		region := Region{
			StartCluster:      cluster,
			ClusterCount:      uint64(count),
			SectorsPerCluster: geo.SectorsPerCluster,
			HeapOffsetSectors: geo.HeapOffsetSectors,
			SectorSize:        geo.SectorSize,
		}

		heapClusterBase := geo.HeapOffsetSectors / geo.SectorsPerCluster

		hits := ScanRegion(c.dev, region, Catalog, MaxFilesPerBatch, nil)
		for _, hit := range hits {
			entry := hitToEntry(hit, clusterSize, heapClusterBase)
			cb.fileFound(entry)
		}

		cluster += uint64(count)
		fraction := float64(cluster) / float64(geo.TotalClusters)
		cb.progress(fmt.Sprintf("carving: %d clusters scanned, %d hits this batch", cluster, len(hits)), fraction)
	}
}

// hitToEntry converts a CarvedHit's region-local cluster number (expressed,
// per spec.md §4.6's own byte-offset formula, in the "heap-relative,
// numbering starts at 2" convention every walker's AbsoluteLCN shares) into
// the same absolute-LCN-from-device-start convention those walkers emit, so
// a carved DeletedEntry's cluster_list reads sectors the same way a
// filesystem-located one does.
func hitToEntry(hit model.CarvedHit, clusterSize, heapClusterBase uint64) model.DeletedEntry {
	name := fmt.Sprintf("carved_%d.%s", hit.StartCluster, hit.Signature)
	clustersNeeded := model.ClustersNeeded(hit.FileSize, clusterSize)
	absoluteStart := heapClusterBase + hit.StartCluster - 2

	clusterList := make([]uint64, 0, clustersNeeded)
	for i := uint64(0); i < clustersNeeded; i++ {
		clusterList = append(clusterList, absoluteStart+i)
	}

	loc := model.Location{ClusterList: clusterList}
	entry := model.Recoverable(name, model.PathPrefixCarved, hit.FileSize, model.FilesystemCarved, clusterSize, loc)
	return entry
}
