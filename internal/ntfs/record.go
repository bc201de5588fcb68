package ntfs

import (
	"fmt"
	"time"

	"github.com/nullsector/volrecover/internal/disk"
	"github.com/nullsector/volrecover/internal/model"
)

const (
	flagInUse      uint16 = 0x0001
	flagIsDirectory uint16 = 0x0002

	attrStandardInfo = 0x10
	attrFileName     = 0x30
	attrData         = 0x80
	attrEnd          = 0xFFFFFFFF

	nameTypeWin32 = 0x01
	nameTypeDOS   = 0x02
	nameTypePOSIX = 0x03
)

// readMFTRecord computes the record's physical offset and reads enough
// sectors to span it, per spec.md §4.2
// "record_offset = mftCluster*bytesPerCluster + recordNum*mftRecordSize".
func readMFTRecord(dev *disk.BlockDevice, boot BootSector, recordNum uint64) ([]byte, error) {
	recordSize := boot.MFTRecordSize()
	if recordSize == 0 {
		return nil, fmt.Errorf("%w: zero MFT record size", model.ErrBadBootSector)
	}

	mftOffset := boot.MFTCluster * boot.BytesPerCluster()
	recordOffset := mftOffset + recordNum*recordSize
	sectorSize := boot.BytesPerSector

	startSector := recordOffset / sectorSize
	offsetInSector := recordOffset % sectorSize
	numSectors := (offsetInSector + recordSize + sectorSize - 1) / sectorSize

	buf := dev.ReadSectors(startSector, numSectors, sectorSize)
	if buf == nil {
		return nil, fmt.Errorf("%w: MFT record %d", model.ErrReadFailed, recordNum)
	}
	if offsetInSector >= uint64(len(buf)) {
		return nil, fmt.Errorf("%w: MFT record %d out of range", model.ErrReadFailed, recordNum)
	}
	end := offsetInSector + recordSize
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	record := buf[offsetInSector:end]
	if uint64(len(record)) < recordSize {
		return nil, fmt.Errorf("%w: MFT record %d truncated", model.ErrReadFailed, recordNum)
	}
	return record, nil
}

// applyFixups implements spec.md §4.2's update-sequence-array algorithm,
// mutating record in place and returning it. Mismatched sentinels are
// tolerated silently (already-patched records, or media without fixups).
func applyFixups(record []byte, sectorSize uint64) []byte {
	if len(record) < 8 {
		return record
	}
	usaOffset := binaryOrder.Uint16(record[4:6])
	usaCount := binaryOrder.Uint16(record[6:8])
	if usaCount == 0 || int(usaOffset)+int(usaCount)*2 > len(record) {
		return record
	}

	usa := record[usaOffset : usaOffset+usaCount*2]
	sentinel := usa[0:2]

	for i := 1; i < int(usaCount); i++ {
		sectorEnd := uint64(i) * sectorSize
		if sectorEnd > uint64(len(record)) {
			break
		}
		tail := record[sectorEnd-2 : sectorEnd]
		if tail[0] != sentinel[0] || tail[1] != sentinel[1] {
			continue
		}
		copy(tail, usa[i*2:i*2+2])
	}
	return record
}

// parsedFileName holds one decoded $FILE_NAME attribute.
type parsedFileName struct {
	name     string
	nameType uint8
	parent   uint64 // low 48 bits of parentDirectory
}

// parsedRecord is everything the walker needs out of one MFT file record.
type parsedRecord struct {
	inUse          bool
	isDirectory    bool
	sequenceNumber uint16
	names          []parsedFileName
	residentData   []byte
	hasData        bool
	nonResident    bool
	dataRuns       []model.ClusterRange
	realSize       uint64
	modifiedTime   time.Time
}

// parseRecord checks the FILE signature, then walks the attribute stream
// starting at firstAttrOffset,
// stopping at the 0xFFFFFFFF end marker or a zero-length attribute, per
// spec.md §4.2. bytesPerCluster feeds the data-run decoder's corruption
// guard (the 100 GiB-accumulated-clusters cap is expressed in clusters).
func parseRecord(data []byte, bytesPerCluster uint64) (*parsedRecord, error) {
	if len(data) < 48 || string(data[0:4]) != "FILE" {
		return nil, fmt.Errorf("%w: missing FILE signature", model.ErrRecordCorrupt)
	}

	flags := binaryOrder.Uint16(data[22:24])
	firstAttrOffset := binaryOrder.Uint16(data[20:22])

	pr := &parsedRecord{
		inUse:          flags&flagInUse != 0,
		isDirectory:    flags&flagIsDirectory != 0,
		sequenceNumber: binaryOrder.Uint16(data[16:18]),
	}

	offset := uint32(firstAttrOffset)
	for int(offset)+16 <= len(data) {
		attrType := binaryOrder.Uint32(data[offset : offset+4])
		if attrType == attrEnd {
			break
		}
		attrLen := binaryOrder.Uint32(data[offset+4 : offset+8])
		if attrLen == 0 || int(offset+attrLen) > len(data) {
			break
		}
		attrBody := data[offset : offset+attrLen]

		switch attrType {
		case attrStandardInfo:
			if t, ok := parseStandardInfoAttr(attrBody); ok {
				pr.modifiedTime = t
			}
		case attrFileName:
			if fn, ok := parseFileNameAttr(attrBody); ok {
				pr.names = append(pr.names, fn)
			}
		case attrData:
			if len(attrBody) > 8 {
				if attrBody[8] == 0 {
					parseResidentData(attrBody, pr)
				} else {
					parseNonResidentData(attrBody, pr, bytesPerCluster)
				}
			}
		}

		offset += attrLen
	}

	return pr, nil
}

// parseStandardInfoAttr reads $STANDARD_INFORMATION's modification time
// (the second of its four FILETIME fields), resident-only.
func parseStandardInfoAttr(attr []byte) (time.Time, bool) {
	if len(attr) < 24 || attr[8] != 0 {
		return time.Time{}, false
	}
	valueLength := binaryOrder.Uint32(attr[16:20])
	valueOffset := binaryOrder.Uint16(attr[20:22])
	if int(valueOffset)+16 > len(attr) || valueLength < 16 {
		return time.Time{}, false
	}
	value := attr[valueOffset:]
	modified := binaryOrder.Uint64(value[8:16])
	return model.WindowsEpochToTime(modified), true
}

func parseFileNameAttr(attr []byte) (parsedFileName, bool) {
	if len(attr) < 24 {
		return parsedFileName{}, false
	}
	nonResident := attr[8]
	if nonResident != 0 {
		return parsedFileName{}, false
	}
	valueLength := binaryOrder.Uint32(attr[16:20])
	valueOffset := binaryOrder.Uint16(attr[20:22])
	if int(valueOffset)+int(valueLength) > len(attr) || valueLength < 66 {
		return parsedFileName{}, false
	}
	value := attr[valueOffset : uint32(valueOffset)+valueLength]

	parent := binaryOrder.Uint64(value[0:8]) & model.FrnMFTIndexMask
	nameLen := value[64]
	nameType := value[65]
	nameBytes := value[66:]
	if int(nameLen)*2 > len(nameBytes) {
		return parsedFileName{}, false
	}
	if nameType == nameTypeDOS {
		return parsedFileName{}, false
	}
	name := model.DecodeUTF16LE(nameBytes[:int(nameLen)*2])
	return parsedFileName{name: name, nameType: nameType, parent: parent}, true
}

func parseResidentData(attr []byte, pr *parsedRecord) bool {
	if len(attr) < 24 {
		return false
	}
	valueLength := binaryOrder.Uint32(attr[16:20])
	valueOffset := binaryOrder.Uint16(attr[20:22])
	if int(valueOffset)+int(valueLength) > len(attr) {
		return false
	}
	pr.residentData = append([]byte(nil), attr[valueOffset:uint32(valueOffset)+valueLength]...)
	pr.realSize = uint64(valueLength)
	pr.hasData = true
	pr.nonResident = false
	return true
}

func parseNonResidentData(attr []byte, pr *parsedRecord, bytesPerCluster uint64) bool {
	if len(attr) < 64 {
		return false
	}
	realSize := binaryOrder.Uint64(attr[48:56])
	runOffset := binaryOrder.Uint16(attr[32:34])
	if int(runOffset) >= len(attr) {
		return false
	}
	runs, ok := decodeDataRuns(attr[runOffset:], bytesPerCluster)
	if !ok {
		return false
	}
	pr.dataRuns = model.MergeClusterRanges(runs)
	pr.realSize = realSize
	pr.hasData = true
	pr.nonResident = true
	return true
}
