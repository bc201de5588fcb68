package carve

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePNG(t *testing.T) {
	buf := []byte(pngMagic)
	// IHDR chunk: length 13, type, 13 bytes data, 4-byte CRC.
	buf = append(buf, 0, 0, 0, 13)
	buf = append(buf, []byte("IHDR")...)
	buf = append(buf, make([]byte, 13)...)
	buf = append(buf, make([]byte, 4)...)
	// IEND chunk: length 0.
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, []byte("IEND")...)
	buf = append(buf, make([]byte, 4)...)

	size, ok := validatePNG(buf, 0)
	require.True(t, ok)
	require.Equal(t, uint64(len(buf)), size)
}

func TestValidatePNGTruncatedReturnsFalse(t *testing.T) {
	buf := []byte(pngMagic)
	buf = append(buf, 0, 0, 0, 13)
	buf = append(buf, []byte("IHDR")...)
	// Missing chunk data and CRC, and no IEND.
	_, ok := validatePNG(buf, 0)
	require.False(t, ok)
}

func TestValidateJPEG(t *testing.T) {
	buf := []byte{0xFF, 0xD8, 0xFF, 0x01, 0x02, 0xFF, 0xD9, 0xAA}
	size, ok := validateJPEG(buf, 0)
	require.True(t, ok)
	require.Equal(t, uint64(7), size)
}

func TestValidateGIF(t *testing.T) {
	buf := append([]byte("GIF89a"), 0x01, 0x02, 0x3B)
	size, ok := validateGIF(buf, 0)
	require.True(t, ok)
	require.Equal(t, uint64(9), size)
}

func TestValidateBMP(t *testing.T) {
	buf := make([]byte, 16)
	copy(buf, "BM")
	binary.LittleEndian.PutUint32(buf[2:6], 16)
	size, ok := validateBMP(buf, 0)
	require.True(t, ok)
	require.Equal(t, uint64(16), size)
}

func TestValidatePDFUsesLastEOF(t *testing.T) {
	buf := []byte("%PDF-1.4\n...garbage...%%EOF\nmore junk\n%%EOF")
	size, ok := validatePDF(buf, 0)
	require.True(t, ok)
	require.Equal(t, uint64(len(buf)), size)
}

func TestValidateZIP(t *testing.T) {
	buf := []byte{0x50, 0x4B, 0x03, 0x04}
	buf = append(buf, make([]byte, 20)...)
	eocd := []byte{0x50, 0x4B, 0x05, 0x06}
	buf = append(buf, eocd...)
	buf = append(buf, make([]byte, 18)...)
	binary.LittleEndian.PutUint16(buf[len(buf)-2:], 0) // commentLen

	size, ok := validateZIP(buf, 0)
	require.True(t, ok)
	require.Equal(t, uint64(len(buf)), size)
}

func TestValidateRIFF(t *testing.T) {
	buf := make([]byte, 12)
	copy(buf, "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 4)
	copy(buf[8:12], "WAVE")
	size, ok := validateRIFF(buf, 0)
	require.True(t, ok)
	require.Equal(t, uint64(12), size)
}

func TestValidateOLE2(t *testing.T) {
	buf := make([]byte, 84)
	binary.LittleEndian.PutUint16(buf[30:32], 9) // sectorSize = 512
	binary.LittleEndian.PutUint32(buf[80:84], 10)
	size, ok := validateOLE2(buf, 0)
	require.True(t, ok)
	require.Equal(t, uint64(5120), size)
}

func TestValidateOLE2RejectsHugeSectorCount(t *testing.T) {
	buf := make([]byte, 84)
	binary.LittleEndian.PutUint16(buf[30:32], 9)
	binary.LittleEndian.PutUint32(buf[80:84], 2_000_000)
	_, ok := validateOLE2(buf, 0)
	require.False(t, ok)
}

func TestNoSizeValidatorAlwaysFalse(t *testing.T) {
	_, ok := noSizeValidator(nil, 0)
	require.False(t, ok)
}
