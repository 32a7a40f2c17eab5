package abi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/X1-Cirrus/internal/types"
)

// Serialization errors.
var (
	ErrTooManyAccounts     = errors.New("too many accounts")
	ErrInstructionTooLarge = errors.New("instruction data too large")
	ErrAccountTooLarge     = errors.New("account data too large")
	ErrInvalidAccountData  = errors.New("invalid account data")
	ErrInvalidRealloc      = errors.New("account data grew beyond realloc limit")
)

// AccountInfo holds an account as the host sees it, before serialization
// and after the program returns.
type AccountInfo struct {
	// Key is the account public key.
	Key types.Pubkey

	// Owner is the program that owns this account.
	Owner types.Pubkey

	// Lamports is the account balance.
	Lamports uint64

	// Data is the account data.
	Data []byte

	// Executable indicates if this is a program account.
	Executable bool

	// RentEpoch is the rent epoch.
	RentEpoch uint64

	// IsSigner indicates if this account signed the transaction.
	IsSigner bool

	// IsWritable indicates if this account can be modified.
	IsWritable bool

	originalData     []byte
	originalLamports uint64
	originalOwner    types.Pubkey
}

// MarkOriginal marks the current state as original for change detection.
func (a *AccountInfo) MarkOriginal() {
	a.originalData = make([]byte, len(a.Data))
	copy(a.originalData, a.Data)
	a.originalLamports = a.Lamports
	a.originalOwner = a.Owner
}

// IsModified returns true if the account differs from its marked state.
func (a *AccountInfo) IsModified() bool {
	return a.Lamports != a.originalLamports ||
		a.Owner != a.originalOwner ||
		!bytes.Equal(a.Data, a.originalData)
}

// OriginalLamports returns the lamports recorded by MarkOriginal.
func (a *AccountInfo) OriginalLamports() uint64 {
	return a.originalLamports
}

// OriginalOwner returns the owner recorded by MarkOriginal.
func (a *AccountInfo) OriginalOwner() types.Pubkey {
	return a.originalOwner
}

// DataChanged reports whether the data region differs from its marked state.
func (a *AccountInfo) DataChanged() bool {
	return !bytes.Equal(a.Data, a.originalData)
}

// firstOccurrence returns, for each position, the index of the first
// account with the same key.
func firstOccurrence(accounts []*AccountInfo) []int {
	first := make([]int, len(accounts))
	seen := make(map[types.Pubkey]int, len(accounts))
	for i, acc := range accounts {
		if j, ok := seen[acc.Key]; ok {
			first[i] = j
			continue
		}
		seen[acc.Key] = i
		first[i] = i
	}
	return first
}

// SerializedSize returns the buffer size Serialize will produce.
func SerializedSize(accounts []*AccountInfo, data []byte) int {
	size := CountSize
	first := firstOccurrence(accounts)
	for i, acc := range accounts {
		if first[i] != i {
			size += DuplicateRecordSize
			continue
		}
		size += RecordSize(len(acc.Data))
	}
	return size + CountSize + len(data) + TrailerSize
}

// Serialize builds the Raw Call Buffer for an invocation.
//
// Accounts sharing a key are emitted once; later positions become duplicate
// records pointing at the first. The first record carries the union of the
// signer and writable privileges of every position.
func Serialize(programID types.Pubkey, accounts []*AccountInfo, data []byte) ([]byte, error) {
	if len(accounts) > MaxAccounts {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyAccounts, len(accounts), MaxAccounts)
	}
	if len(data) > MaxInstructionDataSize {
		return nil, ErrInstructionTooLarge
	}

	first := firstOccurrence(accounts)
	signer := make([]bool, len(accounts))
	writable := make([]bool, len(accounts))
	for i, acc := range accounts {
		if len(acc.Data) > MaxAccountDataSize {
			return nil, fmt.Errorf("%w: %s", ErrAccountTooLarge, acc.Key)
		}
		signer[first[i]] = signer[first[i]] || acc.IsSigner
		writable[first[i]] = writable[first[i]] || acc.IsWritable
	}

	buf := make([]byte, SerializedSize(accounts, data))
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], uint64(len(accounts)))
	offset += CountSize

	for i, acc := range accounts {
		// Mark original state for change detection
		acc.MarkOriginal()

		if first[i] != i {
			buf[offset] = byte(first[i])
			offset += DuplicateRecordSize
			continue
		}

		rec := buf[offset:]
		rec[OffsetDupMarker] = NonDupMarker
		if signer[i] {
			rec[OffsetIsSigner] = 1
		}
		if writable[i] {
			rec[OffsetIsWritable] = 1
		}
		if acc.Executable {
			rec[OffsetIsExecutable] = 1
		}
		binary.LittleEndian.PutUint32(rec[OffsetOriginalDataLen:], uint32(len(acc.Data)))
		copy(rec[OffsetKey:], acc.Key[:])
		copy(rec[OffsetOwner:], acc.Owner[:])
		binary.LittleEndian.PutUint64(rec[OffsetLamports:], acc.Lamports)
		binary.LittleEndian.PutUint64(rec[OffsetDataLen:], uint64(len(acc.Data)))
		copy(rec[OffsetData:], acc.Data)
		binary.LittleEndian.PutUint64(rec[RentEpochOffset(len(acc.Data)):], acc.RentEpoch)

		offset += RecordSize(len(acc.Data))
	}

	binary.LittleEndian.PutUint64(buf[offset:], uint64(len(data)))
	offset += CountSize

	copy(buf[offset:], data)
	offset += len(data)

	copy(buf[offset:], programID[:])

	return buf, nil
}

// Deserialize reads the program's changes back out of the buffer into the
// accounts it was serialized from.
//
// Only writable first occurrences are read; duplicate positions are then
// brought in line with their first occurrence. Read-only records are
// compared against their original state so the caller can reject a program
// that wrote through memory it did not own.
func Deserialize(input []byte, accounts []*AccountInfo) error {
	if len(input) < CountSize {
		return ErrInvalidAccountData
	}
	if binary.LittleEndian.Uint64(input) != uint64(len(accounts)) {
		return fmt.Errorf("%w: account count changed", ErrInvalidAccountData)
	}

	first := firstOccurrence(accounts)
	offset := CountSize

	for i, acc := range accounts {
		if first[i] != i {
			if offset+DuplicateRecordSize > len(input) {
				return ErrInvalidAccountData
			}
			offset += DuplicateRecordSize
			continue
		}

		originalLen := len(acc.originalData)
		size := RecordSize(originalLen)
		if offset+size > len(input) {
			return ErrInvalidAccountData
		}
		rec := input[offset : offset+size]
		offset += size

		if !writableAt(accounts, first, i) {
			continue
		}

		acc.Lamports = binary.LittleEndian.Uint64(rec[OffsetLamports:])

		dataLen := binary.LittleEndian.Uint64(rec[OffsetDataLen:])
		if dataLen > uint64(originalLen+MaxPermittedDataIncrease) {
			return fmt.Errorf("%w: %s", ErrInvalidRealloc, acc.Key)
		}
		if uint64(len(acc.Data)) != dataLen {
			acc.Data = make([]byte, dataLen)
		}
		copy(acc.Data, rec[OffsetData:OffsetData+int(dataLen)])

		copy(acc.Owner[:], rec[OffsetOwner:OffsetOwner+PubkeySize])
		acc.RentEpoch = binary.LittleEndian.Uint64(rec[RentEpochOffset(originalLen):])
	}

	for i, acc := range accounts {
		if j := first[i]; j != i && acc != accounts[j] {
			orig := accounts[j]
			acc.Lamports = orig.Lamports
			acc.Owner = orig.Owner
			acc.RentEpoch = orig.RentEpoch
			acc.Data = append(acc.Data[:0], orig.Data...)
		}
	}

	return nil
}

// ReadOnlyModified reports the keys of non-writable accounts whose bytes in
// the buffer no longer match what was serialized.
func ReadOnlyModified(input []byte, accounts []*AccountInfo) ([]types.Pubkey, error) {
	if len(input) < CountSize {
		return nil, ErrInvalidAccountData
	}

	first := firstOccurrence(accounts)
	offset := CountSize
	var modified []types.Pubkey

	for i, acc := range accounts {
		if first[i] != i {
			offset += DuplicateRecordSize
			continue
		}
		originalLen := len(acc.originalData)
		size := RecordSize(originalLen)
		if offset+size > len(input) {
			return nil, ErrInvalidAccountData
		}
		rec := input[offset : offset+size]
		offset += size

		if writableAt(accounts, first, i) {
			continue
		}
		if binary.LittleEndian.Uint64(rec[OffsetLamports:]) != acc.originalLamports ||
			binary.LittleEndian.Uint64(rec[OffsetDataLen:]) != uint64(originalLen) ||
			!bytes.Equal(rec[OffsetData:OffsetData+originalLen], acc.originalData) ||
			!bytes.Equal(rec[OffsetOwner:OffsetOwner+PubkeySize], acc.originalOwner[:]) {
			modified = append(modified, acc.Key)
		}
	}

	return modified, nil
}

// writableAt reports whether any position sharing first occurrence i is
// writable.
func writableAt(accounts []*AccountInfo, first []int, i int) bool {
	for k, acc := range accounts {
		if first[k] == i && acc.IsWritable {
			return true
		}
	}
	return false
}

// FindModified returns the keys of writable first occurrences that changed.
func FindModified(accounts []*AccountInfo) []types.Pubkey {
	first := firstOccurrence(accounts)
	modified := make([]types.Pubkey, 0)
	for i, acc := range accounts {
		if first[i] == i && writableAt(accounts, first, i) && acc.IsModified() {
			modified = append(modified, acc.Key)
		}
	}
	return modified
}
