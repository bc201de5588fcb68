package ntfs

import (
	"strings"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

// mftScanBatch is the number of MFT records walked between two progress
// reports during the volume walk. Each record in a batch is read with its
// own sector read; a batch is not fetched in one I/O.
const mftScanBatch = 1024

// cancelCheckInterval is how often (in records) Scan consults the
// cancellation flag, per spec.md §5: "checked at least every 10 records".
const cancelCheckInterval = 10

// Config narrows a scan per spec.md §6: FolderFilter and FilenameFilter are
// case-insensitive substring matches against the reconstructed path and the
// file's own name, respectively. An empty filter matches everything.
type Config struct {
	FolderFilter   string
	FilenameFilter string
}

// matches reports whether a candidate path/name pair satisfies cfg's
// filters.
func (c Config) matches(path, name string) bool {
	if c.FolderFilter != "" && !strings.Contains(strings.ToLower(path), strings.ToLower(c.FolderFilter)) {
		return false
	}
	if c.FilenameFilter != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(c.FilenameFilter)) {
		return false
	}
	return true
}

// Callbacks lets the orchestrator observe a scan in progress, per spec.md
// §6. Cancelled is polled at cancelCheckInterval granularity; FileFound and
// Progress may be nil.
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

// Walker scans one NTFS volume's $MFT for deleted file records and, on
// request, correlates them against $UsnJrnl:$J. See spec.md §4.2 and §4.5.
type Walker struct {
	dev   *disk.BlockDevice
	boot  BootSector
	paths *pathCache

	mftRecordCount uint64
}

// NewWalker parses dev's boot sector and derives the $MFT's own size (the
// number of records to scan), per spec.md §4.2: "$MFT's own $DATA run list
// gives the total record count".
func NewWalker(dev *disk.BlockDevice) (*Walker, error) {
	boot, err := ReadBootSector(dev)
	if err != nil {
		return nil, err
	}

	w := &Walker{dev: dev, boot: boot, paths: newPathCache()}

	mftRecord0, err := readMFTRecord(dev, boot, 0)
	if err != nil {
		return nil, err
	}
	mftRecord0 = applyFixups(mftRecord0, boot.BytesPerSector)
	pr, err := parseRecord(mftRecord0, boot.BytesPerCluster())
	if err != nil {
		return nil, err
	}

	recordSize := boot.MFTRecordSize()
	if recordSize == 0 {
		w.mftRecordCount = 0
	} else {
		w.mftRecordCount = pr.realSize / recordSize
	}
	return w, nil
}

// RecordCount returns the number of $MFT records this walker will scan.
func (w *Walker) RecordCount() uint64 {
	return w.mftRecordCount
}

// BootSector exposes the parsed boot sector geometry, for the orchestrator's
// carving-stage cluster arithmetic.
func (w *Walker) BootSector() BootSector {
	return w.boot
}

// Scan implements spec.md §4.2's volume walk: records are walked in batches
// of mftScanBatch (one progress report per batch, each record read on its
// own); a record is a candidate only once its in-use bit is
// cleared and it isn't a directory (that's what "deleted" looks like on an
// NTFS volume). Candidates are parsed, filtered, turned into a DeletedEntry
// and reported in MFT-ascending order. processed
// accumulates the MFT indices this walker actually emitted, for the
// orchestrator's Stage 2 USN-correlation dedup (spec.md §4.7).
func (w *Walker) Scan(cfg Config, cb Callbacks, processed map[uint64]bool) {
	total := w.mftRecordCount
	if total == 0 {
		return
	}

	var scanned uint64
	for start := uint64(0); start < total; start += mftScanBatch {
		end := start + mftScanBatch
		if end > total {
			end = total
		}

		for idx := start; idx < end; idx++ {
			scanned++
			if scanned%cancelCheckInterval == 0 && cb.cancelled() {
				return
			}

			record, err := readMFTRecord(w.dev, w.boot, idx)
			if err != nil {
				continue
			}
			record = applyFixups(record, w.boot.BytesPerSector)
			pr, err := parseRecord(record, w.boot.BytesPerCluster())
			if err != nil || pr.inUse || pr.isDirectory || len(pr.names) == 0 {
				continue
			}

			entry, ok := w.buildEntry(idx, pr)
			if !ok {
				continue
			}
			if !cfg.matches(entry.Path, entry.Name) {
				continue
			}

			processed[idx] = true
			cb.fileFound(entry)
		}

		cb.progress("ntfs_mft", float64(end)/float64(total))
	}
}

// buildEntry converts a parsed file record (a deleted one from Scan, or a
// Stage 2 re-read) into a DeletedEntry, per
// spec.md §3/§4.2. Resident data becomes ResidentBytes; non-resident data
// carries its cluster-range location.
func (w *Walker) buildEntry(mftIndex uint64, pr *parsedRecord) (model.DeletedEntry, bool) {
	if len(pr.names) == 0 {
		return model.DeletedEntry{}, false
	}
	fn := bestFileName(pr.names)

	parentPath := w.resolvePath(fn.parent, map[uint64]bool{mftIndex: true}, 0)
	path := buildPath(fn.name, parentPath)

	var loc model.Location
	switch {
	case pr.hasData && !pr.nonResident:
		loc.ResidentBytes = pr.residentData
	case pr.hasData && pr.nonResident:
		loc.ClusterRanges = pr.dataRuns
	}

	entry := model.Recoverable(fn.name, path, pr.realSize, model.FilesystemNTFS, w.boot.BytesPerCluster(), loc)
	if loc.IsEmpty() {
		entry.IsRecoverable = false
	}
	idx := mftIndex
	entry.MFTRecord = &idx
	if !pr.modifiedTime.IsZero() {
		t := pr.modifiedTime
		entry.DeletedTime = &t
	}
	return entry, true
}
