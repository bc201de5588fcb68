package carve

import (
	"bytes"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

// MaxSafeSkip bounds the cluster-aligned skip after a hit, per spec.md
// §4.6, so one enormous (or miscomputed) validated size can't skip the
// scanner past the rest of the region.
const MaxSafeSkip = 256 << 20 // 256 MiB

// Stats accumulates the optional diagnostic-mode counters of spec.md §4.6.
type Stats struct {
	TotalSignatures    int
	ByFormat           map[string]int
	WithKnownSize      int
	WithoutKnownSize   int
	FragmentedCount    int
	SeverelyFragmented int
}

// fragmentationThresholdClusters is the "gap above a documented threshold" spec.md
// §4.6 leaves to the implementation: four clusters' worth of drift between
// a validator's reported size and the next cluster-aligned boundary counts
// as "severely fragmented".
const fragmentationThresholdClusters = 4

// Region describes the byte range ScanRegion covers, per spec.md §4.6's
// region-scan input parameters.
type Region struct {
	StartCluster      uint64
	ClusterCount      uint64
	SectorsPerCluster uint64
	HeapOffsetSectors uint64
	SectorSize        uint64
}

func (r Region) byteOffset() uint64 {
	return (r.HeapOffsetSectors + (r.StartCluster-2)*r.SectorsPerCluster) * r.SectorSize
}

func (r Region) byteSize() uint64 {
	return r.ClusterCount * r.SectorsPerCluster * r.SectorSize
}

// ScanRegion implements spec.md §4.6: map the region zero-copy (falling
// back to a bulk sector read on map failure), test every catalog signature
// at each cluster-aligned offset, and emit a CarvedHit on a positive size
// validation. stats may be nil; when non-nil it is filled in per the
// optional diagnostic-mode variant.
func ScanRegion(dev *disk.BlockDevice, region Region, catalog []Signature, maxFiles int, stats *Stats) []model.CarvedHit {
	offset := region.byteOffset()
	size := region.byteSize()
	clusterSize := region.SectorsPerCluster * region.SectorSize
	if clusterSize == 0 || size == 0 {
		return nil
	}

	data := mapOrRead(dev, offset, size)
	if data == nil {
		return nil
	}

	var hits []model.CarvedHit
	if stats != nil && stats.ByFormat == nil {
		stats.ByFormat = make(map[string]int)
	}

	pos := uint64(0)
	for pos < uint64(len(data)) && len(hits) < maxFiles {
		sig, matched := matchSignature(data, int(pos), catalog)
		if !matched {
			pos += clusterSize
			continue
		}

		carvedSize, ok := sig.Validate(data, int(pos))
		if stats != nil {
			stats.TotalSignatures++
			stats.ByFormat[sig.Ext]++
			if ok {
				stats.WithKnownSize++
			} else {
				stats.WithoutKnownSize++
			}
		}

		if !ok {
			pos += clusterSize
			continue
		}

		startCluster := region.StartCluster + pos/clusterSize
		hits = append(hits, model.CarvedHit{
			Signature:    sig.Ext,
			Description:  sig.Description,
			StartCluster: startCluster,
			FileSize:     carvedSize,
		})

		if stats != nil {
			expected := ((carvedSize + clusterSize - 1) / clusterSize) * clusterSize
			nextAligned := ((pos + carvedSize + clusterSize - 1) / clusterSize) * clusterSize
			gapClusters := (nextAligned - pos - expected) / clusterSize
			if nextAligned > pos+expected {
				stats.FragmentedCount++
				if gapClusters > fragmentationThresholdClusters {
					stats.SeverelyFragmented++
				}
			}
		}

		skip := carvedSize
		if skip > MaxSafeSkip {
			skip = MaxSafeSkip
		}
		advance := ((skip + clusterSize - 1) / clusterSize) * clusterSize
		if advance == 0 {
			advance = clusterSize
		}
		pos += advance
	}

	return hits
}

func matchSignature(data []byte, offset int, catalog []Signature) (Signature, bool) {
	for _, sig := range catalog {
		if offset+len(sig.Magic) > len(data) {
			continue
		}
		if bytes.Equal(data[offset:offset+len(sig.Magic)], sig.Magic) {
			return sig, true
		}
	}
	return Signature{}, false
}

// mapOrRead implements the "map zero-copy, else bulk sector read" fallback
// of spec.md §4.6.
func mapOrRead(dev *disk.BlockDevice, offset, size uint64) []byte {
	region, err := dev.MapRegion(offset, size)
	if err == nil && region != nil {
		return region.View
	}

	sectorSize := dev.SectorSize()
	if sectorSize == 0 {
		sectorSize = disk.DefaultSectorSize
	}
	startSector := offset / sectorSize
	sectorCount := (size + sectorSize - 1) / sectorSize
	return dev.ReadSectors(startSector, sectorCount, sectorSize)
}
