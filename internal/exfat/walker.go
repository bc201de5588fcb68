package exfat

import (
	"strings"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

// maxDeletedFileSize caps contiguous-allocation reconstruction for a
// deleted file, per spec.md §4.3: "Cap reconstruction at 10 GiB per file".
const maxDeletedFileSize = 10 * 1024 * 1024 * 1024

// partialSizeLimitNote is the note attached to a deleted entry larger than
// maxDeletedFileSize, per spec.md §4.3/§8.
const partialSizeLimitNote = "Partial (size limit)"

// maxDirectoriesScanned is the breadth-first traversal's safety limit,
// grounded on the original scanner's exfatDirectoryEntriesLimit guard.
const maxDirectoriesScanned = 1_000_000

type Config struct {
	FolderFilter   string
	FilenameFilter string
}

func (c Config) matches(path, name string) bool {
	if c.FolderFilter != "" && !strings.Contains(strings.ToLower(path), strings.ToLower(c.FolderFilter)) {
		return false
	}
	if c.FilenameFilter != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(c.FilenameFilter)) {
		return false
	}
	return true
}

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

// Walker performs a breadth-first scan of one exFAT volume for deleted
// files, per spec.md §4.3.
type Walker struct {
	dev  *disk.BlockDevice
	boot BootSector
}

func NewWalker(dev *disk.BlockDevice) (*Walker, error) {
	boot, err := ReadBootSector(dev)
	if err != nil {
		return nil, err
	}
	return &Walker{dev: dev, boot: boot}, nil
}

type queueItem struct {
	firstCluster uint32
	path         string
}

// Scan implements spec.md §4.3's directory-queue traversal: the root is
// seeded first, each active directory's cluster chain is followed (not
// assumed contiguous — only deleted entries get that treatment), and every
// deleted file entry is turned into a DeletedEntry. Cancellation is polled
// at each directory boundary.
func (w *Walker) Scan(cfg Config, cb Callbacks) {
	queue := []queueItem{{firstCluster: w.boot.RootDirCluster, path: ""}}
	var dirsScanned, filesFound int

	for len(queue) > 0 {
		if cb.cancelled() {
			return
		}

		item := queue[0]
		queue = queue[1:]

		data := readClusterChain(w.dev, w.boot, item.firstCluster)
		if data != nil {
			files, subdirs := processDirectory(data)

			for _, sd := range subdirs {
				queue = append(queue, queueItem{firstCluster: sd.firstCluster, path: joinPath(item.path, sd.name)})
			}

			for _, f := range files {
				entry, ok := w.buildEntry(f, item.path)
				if !ok {
					continue
				}
				if !cfg.matches(entry.Path, entry.Name) {
					continue
				}
				filesFound++
				cb.fileFound(entry)
			}
		}

		dirsScanned++
		if dirsScanned > maxDirectoriesScanned {
			break
		}
		cb.progress("exfat", float64(dirsScanned%100)/100.0)
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	if name == "" {
		return parent
	}
	return parent + `\` + name
}

// buildEntry converts one decoded deleted file into a DeletedEntry,
// assuming contiguous allocation starting at firstCluster (spec.md §4.3:
// deleted files' FAT entries are zeroed, so the chain can't be followed).
func (w *Walker) buildEntry(f foundFile, parentPath string) (model.DeletedEntry, bool) {
	fullPath := joinPath(parentPath, f.name)
	path := model.PathPrefixExFAT + fullPath

	clusterSize := w.boot.BytesPerCluster()
	if clusterSize == 0 || f.firstCluster < 2 {
		return model.Unrecoverable(f.name, path, f.size, model.FilesystemExFAT, ""), true
	}

	if f.size > maxDeletedFileSize {
		entry := model.Unrecoverable(f.name, path, f.size, model.FilesystemExFAT, partialSizeLimitNote)
		return entry, true
	}
	if f.size == 0 {
		return model.Recoverable(f.name, path, 0, model.FilesystemExFAT, clusterSize, model.Location{}), true
	}

	clustersNeeded := model.ClustersNeeded(f.size, clusterSize)
	clusterList := make([]uint64, 0, clustersNeeded)
	for i := uint64(0); i < clustersNeeded; i++ {
		clusterList = append(clusterList, w.boot.AbsoluteLCN(f.firstCluster+uint32(i)))
	}

	loc := model.Location{ClusterList: clusterList}
	return model.Recoverable(f.name, path, f.size, model.FilesystemExFAT, clusterSize, loc), true
}
