package ntfs

import (
	"fmt"
	"strings"

	"github.com/nullsector/volrecover/internal/model"
)

// maxPathDepth bounds path reconstruction recursion per spec.md §4.2/§9: "a
// depth limit (<= 50)".
const maxPathDepth = 50

const (
	rootDirMFTIndex0 = 0
	rootDirMFTIndex5 = 5
)

// pathCache memoizes MFT-index -> reconstructed path for the duration of
// one scan (spec.md §4.2 "Cache resolved paths by MFT index"). It is owned
// by the Walker, never shared across scans or with the caller, per §9
// ("never a hidden singleton").
type pathCache struct {
	resolved map[uint64]string
}

func newPathCache() *pathCache {
	return &pathCache{resolved: make(map[uint64]string)}
}

// resolvePath recursively walks parent $FILE_NAME references up to the
// volume root (MFT index 0 or 5), per spec.md §4.2/§9. visited and depth
// are threaded explicitly through the recursion — not a package-global —
// so concurrent walks (were the orchestrator ever to run more than one)
// can't corrupt each other's cycle detection.
func (w *Walker) resolvePath(mftIndex uint64, visited map[uint64]bool, depth int) string {
	if cached, ok := w.paths.resolved[mftIndex]; ok {
		return cached
	}
	if mftIndex == rootDirMFTIndex0 || mftIndex == rootDirMFTIndex5 {
		return ""
	}
	if depth >= maxPathDepth || visited[mftIndex] {
		return model.PathPrefixNTFS + "..."
	}
	visited[mftIndex] = true

	record, err := readMFTRecord(w.dev, w.boot, mftIndex)
	if err != nil {
		return model.PathPrefixNTFS + "..."
	}
	record = applyFixups(record, w.boot.BytesPerSector)
	pr, err := parseRecord(record, w.boot.BytesPerCluster())
	if err != nil || len(pr.names) == 0 {
		return model.PathPrefixNTFS + "..."
	}

	fn := bestFileName(pr.names)
	parentPath := w.resolvePath(fn.parent, visited, depth+1)

	full := fn.name
	if parentPath != "" {
		full = parentPath + `\` + fn.name
	}
	w.paths.resolved[mftIndex] = full
	return full
}

// bestFileName implements spec.md §4.2's preference order: Win32 (1), then
// POSIX (3), last resort DOS (2) — DOS-only names should already have been
// filtered by parseFileNameAttr, but a record can still carry more than one
// namespace and this picks the best available.
func bestFileName(names []parsedFileName) parsedFileName {
	best := names[0]
	for _, n := range names {
		if n.nameType == nameTypeWin32 {
			return n
		}
		if n.nameType == nameTypePOSIX && best.nameType != nameTypeWin32 {
			best = n
		}
	}
	return best
}

// buildPath prefixes a reconstructed path with <deleted>\, per spec.md §3.
// An empty parent resolution (root-adjacent file, or a path that hit the
// depth/cycle guard) still yields a sensible virtual path.
func buildPath(name string, parentPath string) string {
	if parentPath == "" {
		return model.PathPrefixNTFS + name
	}
	if strings.HasPrefix(parentPath, model.PathPrefixNTFS) {
		return parentPath + `\` + name
	}
	return fmt.Sprintf(`%s%s\%s`, model.PathPrefixNTFS, parentPath, name)
}
