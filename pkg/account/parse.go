package account

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Cirrus/pkg/abi"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
)

// Count reads the declared account count. It fails with
// program.ErrMalformedInput if the buffer cannot hold the count itself or
// the count exceeds abi.MaxAccounts.
func Count(buf []byte) (int, error) {
	if len(buf) < abi.CountSize {
		return 0, program.ErrMalformedInput
	}
	n := binary.LittleEndian.Uint64(buf)
	if n > abi.MaxAccounts {
		return 0, program.ErrMalformedInput
	}
	return int(n), nil
}

// Parse walks the record for account index starting at off.
//
// resolved holds the record offsets of indices 0..index-1 and is used to
// follow duplicate markers. It returns the offset of the non-duplicate
// record this index refers to and the offset of the next record.
func Parse(buf []byte, off, index int, resolved []int) (record, next int, err error) {
	if off >= len(buf) {
		return 0, 0, program.ErrMalformedInput
	}

	if marker := buf[off]; marker != abi.NonDupMarker {
		if int(marker) >= index || off+abi.DuplicateRecordSize > len(buf) {
			return 0, 0, program.ErrMalformedInput
		}
		return resolved[marker], off + abi.DuplicateRecordSize, nil
	}

	if off+abi.AccountHeaderSize > len(buf) {
		return 0, 0, program.ErrMalformedInput
	}
	originalLen := int(binary.LittleEndian.Uint32(buf[off+abi.OffsetOriginalDataLen:]))
	dataLen := binary.LittleEndian.Uint64(buf[off+abi.OffsetDataLen:])
	if originalLen > abi.MaxAccountDataSize ||
		dataLen > uint64(originalLen+abi.MaxPermittedDataIncrease) {
		return 0, 0, program.ErrMalformedInput
	}

	size := abi.RecordSize(originalLen)
	if size > len(buf)-off {
		return 0, 0, program.ErrMalformedInput
	}
	return off, off + size, nil
}

// Trailer validates the instruction data and program id that follow the
// last account record at off. It returns the bounds of the instruction
// data.
func Trailer(buf []byte, off int) (start, end int, err error) {
	if off+abi.CountSize > len(buf) {
		return 0, 0, program.ErrMalformedInput
	}
	n := binary.LittleEndian.Uint64(buf[off:])
	start = off + abi.CountSize
	if n > uint64(len(buf)-start) || int(n) > len(buf)-start-abi.TrailerSize {
		return 0, 0, program.ErrMalformedInput
	}
	return start, start + int(n), nil
}
