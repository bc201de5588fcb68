// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package model holds the data shared across every walker, the carver, the
// orchestrator and the writer: the recoverable-entry record, cluster runs,
// carved hits and the error taxonomy from which every component's failures
// are built.
package model

import (
	"fmt"
	"time"
)

// FilesystemType identifies which on-disk filesystem a DeletedEntry came
// from, or that it was produced by the signature carver instead of any
// filesystem metadata.
type FilesystemType string

const (
	FilesystemNTFS   FilesystemType = "NTFS"
	FilesystemExFAT  FilesystemType = "exFAT"
	FilesystemFAT32  FilesystemType = "FAT32"
	FilesystemCarved FilesystemType = "carved"
)

// Path prefixes used when a virtual path is reconstructed for a recoverable
// candidate; see spec.md §3 DeletedEntry.path.
const (
	PathPrefixNTFS   = `<deleted>\`
	PathPrefixExFAT  = `<exFAT>\`
	PathPrefixFAT32  = `<FAT32>\`
	PathPrefixCarved = `<carved from free space>`
)

// ClusterRange is a contiguous run of logical cluster numbers. Count must be
// > 0; StartLCN must be >= 2 for any range located on a real filesystem
// (clusters 0 and 1 never belong to file data on NTFS/exFAT/FAT32).
type ClusterRange struct {
	StartLCN uint64
	Count    uint64
}

// End returns the logical cluster number one past the end of the range.
func (r ClusterRange) End() uint64 {
	return r.StartLCN + r.Count
}

// Adjacent reports whether r immediately precedes other (r.End() ==
// other.StartLCN), the condition under which MergeClusterRanges fuses them.
func (r ClusterRange) Adjacent(other ClusterRange) bool {
	return r.End() == other.StartLCN
}

// MergeClusterRanges coalesces adjacent ranges produced by a run-list
// decoder. Input order is preserved for non-adjacent runs; the result never
// contains two ranges where the first's End() equals the second's StartLCN.
func MergeClusterRanges(ranges []ClusterRange) []ClusterRange {
	if len(ranges) == 0 {
		return nil
	}

	merged := make([]ClusterRange, 0, len(ranges))
	cur := ranges[0]
	for _, r := range ranges[1:] {
		if cur.Adjacent(r) {
			cur.Count += r.Count
			continue
		}
		merged = append(merged, cur)
		cur = r
	}
	return append(merged, cur)
}

// ClustersNeeded returns ceil(size / clusterSize), the minimum number of
// clusters a recoverable, non-resident entry's location must cover per
// spec.md §8 invariant 1.
func ClustersNeeded(size, clusterSize uint64) uint64 {
	if clusterSize == 0 {
		return 0
	}
	return (size + clusterSize - 1) / clusterSize
}

// Location is a tagged union over the three ways a DeletedEntry's data can
// be described: resident bytes embedded in the entry's own metadata,
// NTFS-style extent ranges, or an explicit absolute-LCN list (exFAT, FAT32,
// and carved hits all reconstruct contiguous allocation this way). Exactly
// one field is populated; see DeletedEntry's invariants.
type Location struct {
	ResidentBytes []byte
	ClusterRanges []ClusterRange
	ClusterList   []uint64
}

// IsEmpty reports whether none of the three location variants carry data,
// the condition the writer rejects with ErrLocationLost.
func (l Location) IsEmpty() bool {
	return len(l.ResidentBytes) == 0 && len(l.ClusterRanges) == 0 && len(l.ClusterList) == 0
}

// ClusterCount returns the number of clusters described by whichever
// non-resident variant is populated (0 if the location is resident or
// empty).
func (l Location) ClusterCount() uint64 {
	var n uint64
	for _, r := range l.ClusterRanges {
		n += r.Count
	}
	n += uint64(len(l.ClusterList))
	return n
}

// DeletedEntry is one recoverable (or partially recoverable) candidate
// discovered by a walker or the carver. See spec.md §3.
type DeletedEntry struct {
	Name           string
	Path           string
	Size           uint64
	SizeFormatted  string
	FilesystemType FilesystemType
	IsRecoverable  bool
	ClusterSize    uint64
	Location       Location

	MFTRecord   *uint64
	DeletedTime *time.Time

	// Note is a short machine-checkable tag for entries whose recoverability
	// is qualified. The only tag set is "Partial (size limit)", by the exFAT
	// walker (§4.3 exFAT >10GiB); carved hits that outrun the mapped region
	// carry no tag.
	Note string
}

// Recoverable builds a DeletedEntry with is_recoverable=true and computes
// SizeFormatted; a thin constructor so every walker produces entries the
// same way.
func Recoverable(name, path string, size uint64, fs FilesystemType, clusterSize uint64, loc Location) DeletedEntry {
	return DeletedEntry{
		Name:           name,
		Path:           path,
		Size:           size,
		SizeFormatted:  FormatSizeSI(size),
		FilesystemType: fs,
		IsRecoverable:  true,
		ClusterSize:    clusterSize,
		Location:       loc,
	}
}

// Unrecoverable builds a metadata-only DeletedEntry: location unknown or
// deliberately not populated.
func Unrecoverable(name, path string, size uint64, fs FilesystemType, note string) DeletedEntry {
	return DeletedEntry{
		Name:           name,
		Path:           path,
		Size:           size,
		SizeFormatted:  FormatSizeSI(size),
		FilesystemType: fs,
		IsRecoverable:  false,
		Note:           note,
	}
}

// FormatSizeSI implements spec.md §8 invariant 5: decimal (1000-based) SI
// units, two decimal places, "<n> bytes" under 1000.
func FormatSizeSI(size uint64) string {
	const unit = 1000
	if size < unit {
		return fmt.Sprintf("%d bytes", size)
	}
	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.2f %s", float64(size)/float64(div), units[exp])
}

// CarvedHit is produced only by the signature carver (§4.6). FileSize is
// never zero: a validator that cannot claim a definite size must return
// ok=false instead of a zero-sized hit.
type CarvedHit struct {
	Signature    string
	Description  string
	StartCluster uint64
	FileSize     uint64
}

// UsnRecord is a decoded USN_RECORD_V2 (major=2, minor=0); see spec.md §3
// and §4.5.
type UsnRecord struct {
	RecordLength        uint32
	MajorVersion        uint16
	MinorVersion        uint16
	FileReferenceNumber uint64
	ParentFRN           uint64
	USN                 int64
	Timestamp           time.Time
	Reason              uint32
	SourceInfo          uint32
	SecurityID          uint32
	FileAttributes      uint32
	FileName            string
}

const (
	usnReasonFileDelete    = 0x00000200
	fileAttributeDirectory = 0x00000010

	// FrnMFTIndexMask isolates the low 48 bits of a file reference number
	// (an MFT index), shared by UsnRecord.MFTIndex and $FILE_NAME's
	// parentDirectory field, both of which pack sequence number into the
	// high 16 bits of the same 64-bit quantity.
	FrnMFTIndexMask uint64 = 0x0000_FFFF_FFFF_FFFF
)

// MFTIndex is the low 48 bits of the file reference number.
func (r UsnRecord) MFTIndex() uint64 { return r.FileReferenceNumber & FrnMFTIndexMask }

// Sequence is the high 16 bits of the file reference number.
func (r UsnRecord) Sequence() uint16 { return uint16(r.FileReferenceNumber >> 48) }

// IsDeletion reports whether USN_REASON_FILE_DELETE is set in Reason.
func (r UsnRecord) IsDeletion() bool { return r.Reason&usnReasonFileDelete != 0 }

// IsDirectory reports whether FILE_ATTRIBUTE_DIRECTORY is set.
func (r UsnRecord) IsDirectory() bool { return r.FileAttributes&fileAttributeDirectory != 0 }

// WindowsEpochToTime converts a Windows FILETIME (100-ns intervals since
// 1601-01-01) to a wall-clock time.Time, as used by $STANDARD_INFORMATION,
// $FILE_NAME timestamps and USN_RECORD_V2.
func WindowsEpochToTime(ft uint64) time.Time {
	const windowsToUnixEpochDeltaIn100ns = 116444736000000000
	if ft < windowsToUnixEpochDeltaIn100ns {
		return time.Time{}
	}
	unix100ns := ft - windowsToUnixEpochDeltaIn100ns
	sec := int64(unix100ns / 10_000_000)
	nsec := int64(unix100ns%10_000_000) * 100
	return time.Unix(sec, nsec).UTC()
}
