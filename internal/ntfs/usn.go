package ntfs

import (
	"fmt"

	"github.com/nullsector/volrecover/internal/model"
)

// Constants from spec.md §4.5: $UsnJrnl lives at MFT record 38 by
// convention; the journal read is capped at ~100K clusters and the decoded
// record stream at a configurable maximum.
const (
	UsnJrnlRecordNumber  = 38
	DefaultMaxJournalClusters = 100_000
	DefaultMaxUsnRecords      = 100_000

	usnRecordNameOffset = "$J"
)

// ReadUsnJournal implements spec.md §4.5: locate $UsnJrnl:$J, read its data
// runs, and decode the USN_RECORD_V2 stream, grouped by MFT index.
func (w *Walker) ReadUsnJournal(maxRecords int) (map[uint64][]model.UsnRecord, error) {
	record, err := readMFTRecord(w.dev, w.boot, UsnJrnlRecordNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrJournalAbsent, err)
	}
	record = applyFixups(record, w.boot.BytesPerSector)

	ranges, err := locateJStream(record)
	if err != nil || len(ranges) == 0 {
		return nil, model.ErrJournalAbsent
	}

	data := w.readClusters(ranges, DefaultMaxJournalClusters)
	if maxRecords <= 0 {
		maxRecords = DefaultMaxUsnRecords
	}
	records := decodeUsnRecords(data, maxRecords)

	out := make(map[uint64][]model.UsnRecord)
	for _, r := range records {
		out[r.MFTIndex()] = append(out[r.MFTIndex()], r)
	}
	return out, nil
}

// locateJStream parses a decoded $UsnJrnl MFT record's attributes for the
// non-resident $DATA attribute named "$J", per spec.md §4.5.
func locateJStream(mftData []byte) ([]model.ClusterRange, error) {
	if len(mftData) < 48 || string(mftData[0:4]) != "FILE" {
		return nil, fmt.Errorf("%w: missing FILE signature", model.ErrRecordCorrupt)
	}

	firstAttrOffset := binaryOrder.Uint16(mftData[20:22])
	offset := int(firstAttrOffset)

	for offset+16 < len(mftData) {
		attrType := binaryOrder.Uint32(mftData[offset : offset+4])
		if attrType == attrEnd {
			break
		}
		attrLen := binaryOrder.Uint32(mftData[offset+4 : offset+8])
		if attrLen == 0 || offset+int(attrLen) > len(mftData) {
			break
		}

		if attrType == attrData {
			nameLength := mftData[offset+9]
			nameOffset := binaryOrder.Uint16(mftData[offset+10 : offset+12])
			if nameLength > 0 && offset+int(nameOffset)+int(nameLength)*2 <= len(mftData) {
				name := model.DecodeUTF16LE(mftData[offset+int(nameOffset) : offset+int(nameOffset)+int(nameLength)*2])
				if name == usnRecordNameOffset {
					attrBody := mftData[offset : offset+int(attrLen)]
					if len(attrBody) < 64 || attrBody[8] == 0 {
						break
					}
					runOffset := binaryOrder.Uint16(attrBody[32:34])
					if int(runOffset) >= len(attrBody) {
						break
					}
					runs, _ := decodeDataRuns(attrBody[runOffset:], 4096)
					return model.MergeClusterRanges(runs), nil
				}
			}
		}

		offset += int(attrLen)
	}

	return nil, model.ErrJournalAbsent
}

// readClusters reads a run list cluster-by-cluster up to maxClusters,
// zero-filling any sector read failure, per spec.md §4.5's "capping at a
// maximum total clusters read".
func (w *Walker) readClusters(ranges []model.ClusterRange, maxClusters uint64) []byte {
	bytesPerCluster := w.boot.BytesPerCluster()
	sectorsPerCluster := w.boot.SectorsPerCluster

	var out []byte
	var read uint64
	for _, r := range ranges {
		if read >= maxClusters {
			break
		}
		count := r.Count
		if read+count > maxClusters {
			count = maxClusters - read
		}
		for i := uint64(0); i < count; i++ {
			cluster := r.StartLCN + i
			sector := cluster * sectorsPerCluster
			data := w.dev.ReadSectors(sector, sectorsPerCluster, w.boot.BytesPerSector)
			if data == nil {
				data = make([]byte, bytesPerCluster)
			}
			out = append(out, data...)
			read++
		}
	}
	return out
}

// decodeUsnRecords implements spec.md §4.5's USN_RECORD_V2 decode: fields
// at fixed little-endian offsets, recordLength validated to [60, 65536]
// and to buffer bounds, bad records skipped by 8 bytes and resynchronized,
// each record's end re-aligned to 8 bytes.
func decodeUsnRecords(buf []byte, maxRecords int) []model.UsnRecord {
	var records []model.UsnRecord
	offset := 0

	for offset+60 < len(buf) && len(records) < maxRecords {
		recordLength := binaryOrder.Uint32(buf[offset : offset+4])
		if recordLength < 60 || recordLength > 65536 || offset+int(recordLength) > len(buf) {
			offset += 8
			continue
		}

		rec := model.UsnRecord{
			RecordLength:        recordLength,
			MajorVersion:        binaryOrder.Uint16(buf[offset+4 : offset+6]),
			MinorVersion:        binaryOrder.Uint16(buf[offset+6 : offset+8]),
			FileReferenceNumber: binaryOrder.Uint64(buf[offset+8 : offset+16]),
			ParentFRN:           binaryOrder.Uint64(buf[offset+16 : offset+24]),
			USN:                 int64(binaryOrder.Uint64(buf[offset+24 : offset+32])),
			Timestamp:           model.WindowsEpochToTime(binaryOrder.Uint64(buf[offset+32 : offset+40])),
			Reason:              binaryOrder.Uint32(buf[offset+40 : offset+44]),
			SourceInfo:          binaryOrder.Uint32(buf[offset+44 : offset+48]),
			SecurityID:          binaryOrder.Uint32(buf[offset+48 : offset+52]),
			FileAttributes:      binaryOrder.Uint32(buf[offset+52 : offset+56]),
		}

		filenameLength := binaryOrder.Uint16(buf[offset+56 : offset+58])
		filenameOffset := binaryOrder.Uint16(buf[offset+58 : offset+60])
		if filenameOffset > 0 && filenameLength > 0 && offset+int(filenameOffset)+int(filenameLength) <= len(buf) {
			rec.FileName = model.DecodeUTF16LE(buf[offset+int(filenameOffset) : offset+int(filenameOffset)+int(filenameLength)])
		}

		records = append(records, rec)
		offset += int(recordLength)
		offset = (offset + 7) &^ 7
	}

	return records
}

// RereadRecordSequence re-reads the MFT record at mftIndex and returns its
// sequence number plus a fully-decoded parsedRecord, ignoring the in-use
// flag — used by the orchestrator's Stage 2 tombstone correlation (spec.md
// §4.5 step 1-2): the record may still be marked "in use" as far as the
// directory is concerned, or already reused, and the caller decides which
// based on sequence-number equality.
func (w *Walker) RereadRecordSequence(mftIndex uint64) (uint16, *parsedRecord, error) {
	record, err := readMFTRecord(w.dev, w.boot, mftIndex)
	if err != nil {
		return 0, nil, err
	}
	record = applyFixups(record, w.boot.BytesPerSector)
	pr, err := parseRecord(record, w.boot.BytesPerCluster())
	if err != nil {
		return 0, nil, err
	}
	return pr.sequenceNumber, pr, nil
}

// BuildEntryFromRecord converts a re-read parsedRecord into a DeletedEntry
// the same way the main MFT walk does, for Stage 2's "still a tombstone"
// path.
func (w *Walker) BuildEntryFromRecord(mftIndex uint64, pr *parsedRecord) (model.DeletedEntry, bool) {
	return w.buildEntry(mftIndex, pr)
}
