// Package abi describes the Raw Call Buffer the host hands to a program.
//
// The layout is the aligned loader input format and is wire contract with
// the host. Every offset used anywhere in the runtime is derived from the
// constants in this file:
//
//	u64 num_accounts
//	for each account:
//	  duplicate:
//	    u8  index of first occurrence
//	    [7] padding
//	  otherwise:
//	    u8  NonDupMarker (0xff)
//	    u8  is_signer
//	    u8  is_writable
//	    u8  executable
//	    u32 original_data_len
//	    [32] key
//	    [32] owner
//	    u64 lamports
//	    u64 data_len
//	    [data_len] data
//	    [MaxPermittedDataIncrease] realloc region
//	    padding to 8-byte alignment
//	    u64 rent_epoch
//	u64 instruction_data_len
//	[instruction_data_len] instruction_data
//	[32] program_id
//
// All integers are little-endian.
package abi

// NonDupMarker marks a record that is not a duplicate of an earlier one.
const NonDupMarker = 0xff

// Sizes and limits.
const (
	// MaxAccounts is the largest account count a buffer may declare.
	// Duplicate markers are a single byte and 0xff is reserved.
	MaxAccounts = 254

	// MaxPermittedDataIncrease is the realloc headroom reserved after each
	// account's data region.
	MaxPermittedDataIncrease = 10 * 1024

	// MaxAccountDataSize is the host's ceiling on any single account.
	MaxAccountDataSize = 10 * 1024 * 1024

	// MaxInstructionDataSize bounds the instruction payload.
	MaxInstructionDataSize = 10 * 1024

	// Alignment of the data region end and every u64 field.
	Alignment = 8

	PubkeySize = 32
)

// Offsets within a non-duplicate account record.
const (
	OffsetDupMarker       = 0
	OffsetIsSigner        = 1
	OffsetIsWritable      = 2
	OffsetIsExecutable    = 3
	OffsetOriginalDataLen = 4
	OffsetKey             = 8
	OffsetOwner           = OffsetKey + PubkeySize
	OffsetLamports        = OffsetOwner + PubkeySize
	OffsetDataLen         = OffsetLamports + 8
	OffsetData            = OffsetDataLen + 8

	// AccountHeaderSize is the fixed prefix before the data region.
	AccountHeaderSize = OffsetData

	// DuplicateRecordSize is the full size of a duplicate marker record.
	DuplicateRecordSize = 8

	// CountSize is the size of the leading account count and of the
	// instruction data length.
	CountSize = 8
)

// AlignPadding returns the padding needed after n bytes to reach Alignment.
func AlignPadding(n int) int {
	return (Alignment - n%Alignment) % Alignment
}

// RecordSize returns the size of a non-duplicate record whose data region
// held originalDataLen bytes at serialization time.
func RecordSize(originalDataLen int) int {
	return AccountHeaderSize + originalDataLen + MaxPermittedDataIncrease +
		AlignPadding(originalDataLen) + 8
}

// RentEpochOffset returns the offset of rent_epoch within a record.
func RentEpochOffset(originalDataLen int) int {
	return RecordSize(originalDataLen) - 8
}

// TrailerSize is the fixed part that follows the instruction data.
const TrailerSize = PubkeySize

// MinBufferSize is the size of a valid buffer with no accounts and no
// instruction data.
const MinBufferSize = CountSize + CountSize + TrailerSize
