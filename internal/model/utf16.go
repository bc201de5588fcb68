package model

import (
	"golang.org/x/text/encoding/unicode"
)

// utf16LEDecoder decodes the UTF-16LE names used by $FILE_NAME, exFAT
// file-name entries and FAT32 LFN fragments. golang.org/x/text's transform
// machinery (grounded on soypat-fat, which pulls in golang.org/x/text for
// its own UTF-16 table handling) replaces a hand-rolled unicode/utf16 loop
// per filesystem with one shared decoder.
var utf16LEDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// DecodeUTF16LE decodes raw UTF-16LE bytes (an odd trailing byte, which can
// show up when a caller over-reads a fixed-size name buffer, is dropped) to
// a UTF-8 Go string. Malformed input decodes best-effort rather than
// failing outright: walkers run against possibly-corrupt on-disk records
// and must keep going per spec.md §7.
func DecodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	out, err := utf16LEDecoder.Bytes(b)
	if err != nil {
		return string(out)
	}
	return string(out)
}
