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

// Package recover implements spec.md §4.8: the cluster-to-output writer.
// Destination validation guards against recovering onto the volume being
// scanned; the per-file write streams either resident bytes or a cluster
// run/list straight from the BlockDevice, zero-filling any sector read
// failure rather than aborting (partial recovery beats none).
package recover

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

// ValidateDestination implements spec.md §4.8: UNC destinations are always
// allowed; otherwise dst is made absolute when it carries no drive letter,
// and its drive letter, uppercased, must differ from srcDrive's.
func ValidateDestination(srcDrive, dst string) error {
	if isUNC(dst) {
		return nil
	}
	if driveLetter(dst) == "" {
		if abs, err := filepath.Abs(dst); err == nil {
			dst = abs
		}
	}
	dstDrive := driveLetter(dst)
	if dstDrive != "" && strings.EqualFold(dstDrive, srcDrive) {
		return fmt.Errorf("%w: %s resolves to source volume %s", model.ErrDestinationIsSrc, dst, srcDrive)
	}
	return nil
}

func isUNC(path string) bool {
	return strings.HasPrefix(path, `\\`) || strings.HasPrefix(path, "//")
}

func driveLetter(path string) string {
	if len(path) >= 2 && path[1] == ':' {
		return strings.ToUpper(path[:1])
	}
	return ""
}

// WriteFile implements spec.md §4.8's per-file write algorithm: reject
// nothing-to-recover and location-lost entries up front, then stream either
// resident_bytes or the cluster run/list to destPath, truncating any
// existing file there.
func WriteFile(dev *disk.BlockDevice, entry model.DeletedEntry, destPath string) error {
	if entry.Size == 0 && len(entry.Location.ResidentBytes) == 0 {
		return fmt.Errorf("%w: %s: nothing to recover", model.ErrLocationLost, entry.Name)
	}
	if entry.Location.IsEmpty() {
		return fmt.Errorf("%w: %s", model.ErrLocationLost, entry.Name)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrInvalidDest, destPath, err)
	}
	defer out.Close()

	var written int64
	if len(entry.Location.ResidentBytes) > 0 {
		n, werr := out.Write(entry.Location.ResidentBytes)
		written = int64(n)
		if werr != nil {
			return werr
		}
	} else {
		written, err = writeNonResident(dev, entry, out)
		if err != nil {
			return err
		}
	}

	if err := out.Sync(); err != nil {
		return err
	}
	if written == 0 {
		return fmt.Errorf("%w: %s: zero bytes written", model.ErrLocationLost, entry.Name)
	}
	return nil
}

// writeNonResident reads entry's cluster_ranges or cluster_list in order,
// sectors_per_cluster sectors at a time, writing min(cluster_size,
// remaining) bytes per cluster and zero-filling any failed sector read, per
// spec.md §4.8.
func writeNonResident(dev *disk.BlockDevice, entry model.DeletedEntry, out *os.File) (int64, error) {
	clusterSize := entry.ClusterSize
	sectorSize := dev.SectorSize()
	if sectorSize == 0 {
		sectorSize = disk.DefaultSectorSize
	}
	if clusterSize == 0 {
		return 0, fmt.Errorf("%w: %s: zero cluster size", model.ErrLocationLost, entry.Name)
	}
	sectorsPerCluster := clusterSize / sectorSize
	if sectorsPerCluster == 0 {
		sectorsPerCluster = 1
	}

	remaining := entry.Size
	var written int64

	writeCluster := func(cluster uint64) error {
		if remaining == 0 {
			return nil
		}
		chunk := clusterSize
		if remaining < chunk {
			chunk = remaining
		}

		data := dev.ReadSectors(cluster*sectorsPerCluster, sectorsPerCluster, sectorSize)
		if uint64(len(data)) < chunk {
			padded := make([]byte, chunk)
			copy(padded, data)
			data = padded
		}

		n, err := out.Write(data[:chunk])
		written += int64(n)
		remaining -= chunk
		return err
	}

	for _, r := range entry.Location.ClusterRanges {
		for i := uint64(0); i < r.Count && remaining > 0; i++ {
			if err := writeCluster(r.StartLCN + i); err != nil {
				return written, err
			}
		}
	}
	for _, c := range entry.Location.ClusterList {
		if remaining == 0 {
			break
		}
		if err := writeCluster(c); err != nil {
			return written, err
		}
	}

	return written, nil
}

// RecoverMany implements spec.md §4.8's multi-file API and §6's
// recover_many(): each entry is written to destFolder joined with its own
// name; a failing file is skipped, not fatal (spec.md §7). Returns true if
// at least one file was written successfully.
func RecoverMany(dev *disk.BlockDevice, files []model.DeletedEntry, sourceDrive, destFolder string, progress func(msg string, fraction float64)) bool {
	report := func(msg string, f float64) {
		if progress != nil {
			progress(msg, f)
		}
	}

	if err := ValidateDestination(sourceDrive, destFolder); err != nil {
		report(fmt.Sprintf("recover: %v", err), -1)
		return false
	}

	total := len(files)
	if total == 0 {
		return false
	}

	var errs *multierror.Error
	var succeeded int

	for i, entry := range files {
		destPath := filepath.Join(destFolder, entry.Name)
		if err := WriteFile(dev, entry, destPath); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", entry.Name, err))
			report(fmt.Sprintf("recover: %s failed: %v", entry.Name, err), float64(i+1)/float64(total))
			continue
		}
		succeeded++
		report(fmt.Sprintf("recover: wrote %s (%d/%d)", entry.Name, i+1, total), float64(i+1)/float64(total))
	}

	if errs != nil {
		report(fmt.Sprintf("recover: %d of %d files failed: %v", errs.Len(), total, errs), -1)
	}
	return succeeded > 0
}
