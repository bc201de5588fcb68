package model

import "errors"

// Error taxonomy (spec.md §7). Each is a sentinel compared with errors.Is;
// callers that need the offending LBA wrap ErrReadFailed with fmt.Errorf
// ("%w", ErrReadFailed) rather than a distinct type per failure, matching
// the teacher's habit of keeping error variants flat and testable.
var (
	ErrDeviceOpen       = errors.New("volrecover: cannot open raw volume")
	ErrBadBootSector    = errors.New("volrecover: bad boot sector")
	ErrReadFailed       = errors.New("volrecover: sector read failed")
	ErrRecordCorrupt    = errors.New("volrecover: filesystem record corrupt")
	ErrLocationLost     = errors.New("volrecover: no recoverable location for entry")
	ErrDestinationIsSrc = errors.New("volrecover: destination resolves to the source volume")
	ErrInvalidDest      = errors.New("volrecover: invalid destination")
	ErrJournalAbsent    = errors.New("volrecover: $UsnJrnl:$J not present")
)
