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
package dfxml

import (
	"encoding/base64"
	"time"

	"github.com/nullsector/volrecover/internal/model"
)

// FromDeletedEntry converts a scan result into the fileobject this report
// format persists between `scan` and `recover`: byte_runs carry absolute
// image byte offsets (cluster number * cluster_size) so recover doesn't
// need anything but the report and the image to reconstruct a cluster list.
func FromDeletedEntry(e model.DeletedEntry) FileObject {
	fo := FileObject{
		Filename:    e.Name,
		FileSize:    e.Size,
		Filesystem:  string(e.FilesystemType),
		ClusterSize: e.ClusterSize,
		Recoverable: e.IsRecoverable,
		Note:        e.Note,
		MFTRecord:   e.MFTRecord,
	}
	if e.DeletedTime != nil {
		fo.DeletedTimeNS = e.DeletedTime.UnixNano()
	}
	if len(e.Location.ResidentBytes) > 0 {
		fo.ResidentData = base64.StdEncoding.EncodeToString(e.Location.ResidentBytes)
		return fo
	}

	clusterSize := e.ClusterSize
	var offset uint64
	addRun := func(startCluster, count uint64) {
		length := count * clusterSize
		fo.ByteRuns.Runs = append(fo.ByteRuns.Runs, ByteRun{
			Offset:    offset,
			ImgOffset: startCluster * clusterSize,
			Length:    length,
		})
		offset += length
	}
	for _, r := range e.Location.ClusterRanges {
		addRun(r.StartLCN, r.Count)
	}
	for _, c := range e.Location.ClusterList {
		addRun(c, 1)
	}
	return fo
}

// ToDeletedEntry reverses FromDeletedEntry, reconstructing a model.Location
// a *disk.BlockDevice/internal/recover.WriteFile can stream directly: each
// byte_run's img_offset/cluster_size pair recovers the original cluster
// number (the offsets FromDeletedEntry writes are always cluster-aligned).
func ToDeletedEntry(fo FileObject) model.DeletedEntry {
	e := model.DeletedEntry{
		Name:           fo.Filename,
		Path:           fo.Filename,
		Size:           fo.FileSize,
		SizeFormatted:  model.FormatSizeSI(fo.FileSize),
		FilesystemType: model.FilesystemType(fo.Filesystem),
		IsRecoverable:  fo.Recoverable,
		ClusterSize:    fo.ClusterSize,
		Note:           fo.Note,
		MFTRecord:      fo.MFTRecord,
	}
	if fo.DeletedTimeNS != 0 {
		t := time.Unix(0, fo.DeletedTimeNS)
		e.DeletedTime = &t
	}

	if fo.ResidentData != "" {
		data, err := base64.StdEncoding.DecodeString(fo.ResidentData)
		if err == nil {
			e.Location.ResidentBytes = data
		}
		return e
	}

	if fo.ClusterSize == 0 {
		return e
	}
	for _, run := range fo.ByteRuns.Runs {
		startCluster := run.ImgOffset / fo.ClusterSize
		count := run.Length / fo.ClusterSize
		if count == 0 {
			count = 1
		}
		e.Location.ClusterRanges = append(e.Location.ClusterRanges, model.ClusterRange{
			StartLCN: startCluster,
			Count:    count,
		})
	}
	e.Location.ClusterRanges = model.MergeClusterRanges(e.Location.ClusterRanges)
	return e
}
