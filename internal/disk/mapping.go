package disk

// MaxMappedRegion caps map_region's size per spec.md §4.1 ("clamp size to
// an upper bound of 256 MiB").
const MaxMappedRegion = 256 << 20

// MappedRegion is the user-facing, read-only view of a BlockDevice mapping:
// View is adjusted back to the caller's requested offset even though the
// underlying OS mapping was aligned down to the allocation granularity.
type MappedRegion struct {
	View []byte

	raw       []byte // the OS-aligned mapping; unmap() releases this
	allocSize int
}

func (m *MappedRegion) unmap() error {
	if m == nil || m.raw == nil {
		return nil
	}
	err := osUnmap(m.raw)
	m.raw = nil
	m.View = nil
	return err
}

// MapRegion aligns offset down to the OS allocation granularity, clamps
// size to MaxMappedRegion, and maps the region read-only. A nil result (no
// error) means the mapping could not be made, per spec.md §4.1 — callers
// (the carver) fall back to bulk sector reads in that case. Requesting a
// new mapping releases any previous one on this device.
func (d *BlockDevice) MapRegion(offset, size uint64) (*MappedRegion, error) {
	if d.mapping != nil {
		_ = d.mapping.unmap()
		d.mapping = nil
	}

	if size > MaxMappedRegion {
		size = MaxMappedRegion
	}

	offset += d.baseSector * d.sectorSize

	granularity := osAllocationGranularity()
	alignedOffset := offset - (offset % granularity)
	skew := offset - alignedOffset
	alignedSize := size + skew

	raw, err := osMmap(d.file, alignedOffset, alignedSize)
	if err != nil {
		return nil, nil //nolint:nilerr // spec: mapping failure yields a nil region, not an error the caller must branch on
	}

	region := &MappedRegion{
		raw:       raw,
		allocSize: len(raw),
		View:      raw[skew:],
	}
	if uint64(len(region.View)) > size {
		region.View = region.View[:size]
	}
	d.mapping = region
	return region, nil
}
