// Package account implements zero-copy views over account records in the
// Raw Call Buffer.
//
// A View is two words: the buffer and the record offset. Every accessor
// reads straight from the buffer at an offset computed from the abi
// constants; nothing is copied into a separate container. Views never
// outlive the buffer they were taken from.
//
// Duplicate positions in a call resolve to the record of their first
// occurrence, so two views of the same account share bytes and observe
// each other's writes.
package account

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/abi"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
)

// View is a non-owning reference to a non-duplicate account record.
type View struct {
	buf []byte
	off int
}

// At returns a view of the record at off. The caller is responsible for
// off having been validated with Parse.
func At(buf []byte, off int) View {
	return View{buf: buf, off: off}
}

// Valid reports whether the view refers to a record.
func (v View) Valid() bool {
	return v.buf != nil
}

// RecordOffset returns the offset of the record in the call buffer.
func (v View) RecordOffset() int {
	return v.off
}

// Key returns the account identity. The pointer aliases the call buffer and
// must be treated as read-only. The host never reads a key back from the
// buffer.
func (v View) Key() *types.Pubkey {
	o := v.off + abi.OffsetKey
	return (*types.Pubkey)(v.buf[o : o+types.PubkeySize])
}

// Owner returns the owning program. The pointer aliases the call buffer and
// must be treated as read-only, whatever the view's write access; Assign is
// the checked way to change it.
func (v View) Owner() *types.Pubkey {
	o := v.off + abi.OffsetOwner
	return (*types.Pubkey)(v.buf[o : o+types.PubkeySize])
}

// IsOwnedBy reports whether the account is owned by programID.
func (v View) IsOwnedBy(programID *types.Pubkey) bool {
	return *v.Owner() == *programID
}

func (v View) IsSigner() bool {
	return v.buf[v.off+abi.OffsetIsSigner] != 0
}

func (v View) IsWritable() bool {
	return v.buf[v.off+abi.OffsetIsWritable] != 0
}

func (v View) IsExecutable() bool {
	return v.buf[v.off+abi.OffsetIsExecutable] != 0
}

// Lamports returns the account balance.
func (v View) Lamports() uint64 {
	return binary.LittleEndian.Uint64(v.buf[v.off+abi.OffsetLamports:])
}

// DataLen returns the current length of the data region.
func (v View) DataLen() int {
	return int(binary.LittleEndian.Uint64(v.buf[v.off+abi.OffsetDataLen:]))
}

// OriginalDataLen returns the data length at serialization time. Realloc
// limits and the record size are computed from it.
func (v View) OriginalDataLen() int {
	return int(binary.LittleEndian.Uint32(v.buf[v.off+abi.OffsetOriginalDataLen:]))
}

// RentEpoch returns the rent epoch metadata following the data region.
func (v View) RentEpoch() uint64 {
	return binary.LittleEndian.Uint64(v.buf[v.off+abi.RentEpochOffset(v.OriginalDataLen()):])
}

// Data returns the data region. The slice aliases the call buffer and must
// be treated as read-only; use DataMut to write.
func (v View) Data() []byte {
	start := v.off + abi.OffsetData
	end := start + v.DataLen()
	return v.buf[start:end:end]
}

// DataMut returns the writable data region.
func (v View) DataMut() ([]byte, error) {
	if !v.IsWritable() {
		return nil, program.ErrReadOnlyViolation
	}
	return v.Data(), nil
}

// SetLamports overwrites the balance.
func (v View) SetLamports(lamports uint64) error {
	if !v.IsWritable() {
		return program.ErrReadOnlyViolation
	}
	binary.LittleEndian.PutUint64(v.buf[v.off+abi.OffsetLamports:], lamports)
	return nil
}

// AddLamports credits the account with a checked add.
func (v View) AddLamports(amount uint64) error {
	cur := v.Lamports()
	if cur+amount < cur {
		return program.ErrArithmeticOverflow
	}
	return v.SetLamports(cur + amount)
}

// SubLamports debits the account.
func (v View) SubLamports(amount uint64) error {
	cur := v.Lamports()
	if amount > cur {
		return program.ErrInsufficientFunds
	}
	return v.SetLamports(cur - amount)
}

// Resize changes the data length within the realloc headroom the host
// reserved. Growth is zero-filled.
func (v View) Resize(newLen int) error {
	if !v.IsWritable() {
		return program.ErrReadOnlyViolation
	}
	if newLen < 0 || newLen > v.OriginalDataLen()+abi.MaxPermittedDataIncrease {
		return program.ErrInvalidRealloc
	}

	cur := v.DataLen()
	if newLen > cur {
		start := v.off + abi.OffsetData
		clear(v.buf[start+cur : start+newLen])
	}
	binary.LittleEndian.PutUint64(v.buf[v.off+abi.OffsetDataLen:], uint64(newLen))
	return nil
}

// Assign transfers ownership of the account to owner.
func (v View) Assign(owner *types.Pubkey) error {
	if !v.IsWritable() {
		return program.ErrReadOnlyViolation
	}
	copy(v.buf[v.off+abi.OffsetOwner:], owner[:])
	return nil
}
