package ntfs

import "github.com/nullsector/volrecover/internal/model"

// Corruption guards from spec.md §4.2: "Stop after 10^6 fragments or 100
// GiB accumulated clusters", grounded on the original C implementation's
// identical MAX_FRAGMENTS / MAX_CLUSTERS_TOTAL constants.
const (
	maxDataRunFragments = 1_000_000
	maxDataRunBytes     = 100 * 1024 * 1024 * 1024
)

// decodeDataRuns parses an NTFS data-run list per spec.md §4.2. header byte
// 0x00 terminates; lengthBytes and offsetBytes come from the low/high
// nibbles; offsetBytes is a signed, sign-extended delta from the previous
// LCN; offsetBytes == 0 is a sparse run (no range emitted, parsing
// continues). Returns ok=false only if the run list itself is malformed
// (out-of-bounds field sizes) before any range is produced; a guard trip
// mid-parse just stops early and returns what was decoded so far.
func decodeDataRuns(data []byte, bytesPerCluster uint64) ([]model.ClusterRange, bool) {
	if bytesPerCluster == 0 {
		bytesPerCluster = 4096
	}
	maxClusters := uint64(maxDataRunBytes) / bytesPerCluster

	var ranges []model.ClusterRange
	var currentLCN int64
	var clustersAccumulated uint64

	offset := 0
	for offset < len(data) {
		header := data[offset]
		if header == 0 {
			break
		}
		lengthBytes := int(header & 0x0F)
		offsetBytes := int((header >> 4) & 0x0F)
		if lengthBytes == 0 || lengthBytes > 8 || offsetBytes > 8 {
			return ranges, len(ranges) > 0
		}
		offset++
		if offset+lengthBytes+offsetBytes > len(data) {
			return ranges, len(ranges) > 0
		}

		var runLength uint64
		for i := 0; i < lengthBytes; i++ {
			runLength |= uint64(data[offset+i]) << (8 * i)
		}
		offset += lengthBytes

		var lcnOffset int64
		for i := 0; i < offsetBytes; i++ {
			lcnOffset |= int64(data[offset+i]) << (8 * i)
		}
		if offsetBytes > 0 && data[offset+offsetBytes-1]&0x80 != 0 {
			for i := offsetBytes; i < 8; i++ {
				lcnOffset |= int64(0xFF) << (8 * i)
			}
		}
		offset += offsetBytes

		currentLCN += lcnOffset

		if offsetBytes == 0 {
			// Sparse run: no range, keep parsing.
			continue
		}

		if len(ranges) >= maxDataRunFragments || clustersAccumulated >= maxClusters {
			break
		}

		ranges = append(ranges, model.ClusterRange{StartLCN: uint64(currentLCN), Count: runLength})
		clustersAccumulated += runLength
	}

	return ranges, true
}
