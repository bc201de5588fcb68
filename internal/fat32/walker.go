package fat32

import (
	"strings"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

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

// maxDirectoriesScanned bounds the breadth-first traversal, grounded on the
// original scanner's shared directory-count safety limit.
const maxDirectoriesScanned = 1_000_000

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

// Scan implements spec.md §4.4's breadth-first directory walk.
// Cancellation is polled at each directory boundary.
func (w *Walker) Scan(cfg Config, cb Callbacks) {
	queue := []queueItem{{firstCluster: w.boot.RootCluster, path: ""}}
	var dirsScanned int

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
				queue = append(queue, queueItem{firstCluster: sd.cluster, path: joinPath(item.path, sd.name)})
			}

			for _, f := range files {
				entry, ok := w.buildEntry(f, item.path)
				if !ok {
					continue
				}
				if !cfg.matches(entry.Path, entry.Name) {
					continue
				}
				cb.fileFound(entry)
			}
		}

		dirsScanned++
		if dirsScanned > maxDirectoriesScanned {
			break
		}
		cb.progress("fat32", float64(dirsScanned%100)/100.0)
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + `\` + name
}

// buildEntry converts a decoded deleted file into a DeletedEntry, assuming
// contiguous allocation starting at cluster (the FAT chain is cleared on
// deletion), per spec.md §4.4.
func (w *Walker) buildEntry(f foundEntry, parentPath string) (model.DeletedEntry, bool) {
	fullPath := joinPath(parentPath, f.name)
	path := model.PathPrefixFAT32 + fullPath
	size := uint64(f.size)

	clusterSize := w.boot.ClusterSize()
	if clusterSize == 0 || f.cluster < 2 {
		return model.Unrecoverable(f.name, path, size, model.FilesystemFAT32, ""), true
	}
	if size == 0 {
		return model.Recoverable(f.name, path, 0, model.FilesystemFAT32, clusterSize, model.Location{}), true
	}

	clustersNeeded := model.ClustersNeeded(size, clusterSize)
	clusterList := make([]uint64, 0, clustersNeeded)
	for i := uint64(0); i < clustersNeeded; i++ {
		clusterList = append(clusterList, w.boot.AbsoluteLCN(f.cluster+uint32(i)))
	}

	loc := model.Location{ClusterList: clusterList}
	return model.Recoverable(f.name, path, size, model.FilesystemFAT32, clusterSize, loc), true
}
