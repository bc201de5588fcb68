package carve

import (
	"bytes"
	"encoding/binary"
)

const pngMagic = "\x89PNG\r\n\x1a\n"

// validatePNG walks chunks from offset 8, per spec.md §4.6: chunkLen:u32 BE
// + type[4] + data + crc[4]; size is offset+12+chunkLen when type == IEND.
// Grounded on the teacher's png.go decoder's chunk-stage walk, adapted from
// a streaming bufio.Reader to direct offsets into the mapped region.
func validatePNG(region []byte, offset int) (uint64, bool) {
	pos := offset + 8
	for {
		if pos+8 > len(region) {
			return 0, false
		}
		chunkLen := binary.BigEndian.Uint32(region[pos : pos+4])
		chunkType := string(region[pos+4 : pos+8])

		chunkEnd := pos + 12 + int(chunkLen)
		if chunkEnd > len(region) || chunkEnd < pos {
			return 0, false
		}
		if chunkType == "IEND" {
			return uint64(chunkEnd - offset), true
		}
		pos = chunkEnd
	}
}

// validateJPEG scans for the FF D9 end-of-image marker, per spec.md §4.6.
// Grounded on the teacher's jpeg.go marker-walk (SOI/EOI framing).
func validateJPEG(region []byte, offset int) (uint64, bool) {
	idx := bytes.Index(region[offset:], []byte{0xFF, 0xD9})
	if idx < 0 {
		return 0, false
	}
	return uint64(idx + 2), true
}

// validateGIF scans for the trailer byte 0x3B, per spec.md §4.6. Grounded
// on the teacher's gif.go trailer detection.
func validateGIF(region []byte, offset int) (uint64, bool) {
	idx := bytes.IndexByte(region[offset:], 0x3B)
	if idx < 0 {
		return 0, false
	}
	return uint64(idx + 1), true
}

// validateBMP reads the file-size field (u32 LE) at offset+2, per spec.md
// §4.6. Grounded on the teacher's bmp.go BITMAPFILEHEADER layout.
func validateBMP(region []byte, offset int) (uint64, bool) {
	if offset+6 > len(region) {
		return 0, false
	}
	size := binaryOrder.Uint32(region[offset+2 : offset+6])
	if size == 0 {
		return 0, false
	}
	return uint64(size), true
}

// validatePDF searches the tail for the last %%EOF marker, per spec.md
// §4.6. Grounded on the teacher's pdf.go ScanPDF (repeated SeekAt over
// %%EOF, keeping the last match).
func validatePDF(region []byte, offset int) (uint64, bool) {
	marker := []byte("%%EOF")
	tail := region[offset:]

	var lastEnd = -1
	searchFrom := 0
	for {
		idx := bytes.Index(tail[searchFrom:], marker)
		if idx < 0 {
			break
		}
		lastEnd = searchFrom + idx + len(marker)
		searchFrom = lastEnd
	}
	if lastEnd < 0 {
		return 0, false
	}
	return uint64(lastEnd), true
}

// validateZIP locates the end-of-central-directory record (PK\x05\x06) in
// the tail and adds commentLen+22, per spec.md §4.6. Grounded on the
// teacher's zip.go EOCD scan.
func validateZIP(region []byte, offset int) (uint64, bool) {
	eocdSig := []byte{0x50, 0x4B, 0x05, 0x06}
	tail := region[offset:]

	idx := bytes.LastIndex(tail, eocdSig)
	if idx < 0 {
		return 0, false
	}
	if idx+22 > len(tail) {
		return 0, false
	}
	commentLen := binaryOrder.Uint16(tail[idx+20 : idx+22])
	end := idx + 22 + int(commentLen)
	if end > len(tail) {
		end = len(tail)
	}
	return uint64(end), true
}

// validateMP4 iterates top-level atoms (size:u32 BE + type[4]), summing
// sizes until the region runs out, per spec.md §4.6.
func validateMP4(region []byte, offset int) (uint64, bool) {
	pos := offset
	for pos+8 <= len(region) {
		atomSize := binary.BigEndian.Uint32(region[pos : pos+4])
		if atomSize < 8 {
			break
		}
		next := pos + int(atomSize)
		if next <= pos || next > len(region) {
			return uint64(pos - offset), pos > offset
		}
		pos = next
	}
	if pos == offset {
		return 0, false
	}
	return uint64(pos - offset), true
}

// validateRIFF reads the RIFF chunk size (u32 LE at offset+4) and adds 8,
// per spec.md §4.6 ("AVI/WAV"). Grounded on the teacher's wav.go RIFF
// header parse.
func validateRIFF(region []byte, offset int) (uint64, bool) {
	if offset+8 > len(region) {
		return 0, false
	}
	size := binaryOrder.Uint32(region[offset+4 : offset+8])
	if size == 0 {
		return 0, false
	}
	return uint64(size) + 8, true
}

// validateOLE2 reads the compound-file sector size and sector count, per
// spec.md §4.6: sectorSize = 1 << u16@30; totalSectors = u32@80; size =
// totalSectors*sectorSize when totalSectors < 1_000_000.
func validateOLE2(region []byte, offset int) (uint64, bool) {
	if offset+84 > len(region) {
		return 0, false
	}
	shift := binaryOrder.Uint16(region[offset+30 : offset+32])
	if shift == 0 || shift > 20 {
		return 0, false
	}
	sectorSize := uint64(1) << shift
	totalSectors := binaryOrder.Uint32(region[offset+80 : offset+84])
	if totalSectors == 0 || totalSectors >= 1_000_000 {
		return 0, false
	}
	return uint64(totalSectors) * sectorSize, true
}
