// Package record maps typed fields onto account data without copying.
//
// A Layout is declared once with a Builder, usually at package init, and then
// bound to an account's data on every call:
//
//	b := record.Discriminated(1)
//	count := b.U64()
//	owner := b.Pubkey()
//	label := b.Tail()
//	layout := b.MustBuild()
//
//	r, err := record.Bind(view.Data(), layout)
//	n := r.Uint64(count)
//
// Fixed-size fields come first, in declaration order, and at most one
// variable-length Tail may follow them. Numeric fields must sit at an offset
// that is a multiple of their size.
package record

import (
	"encoding/binary"
	"errors"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
)

// Layout errors, reported by Build.
var (
	ErrFieldOrder = errors.New("record: field declared after tail")
	ErrMisaligned = errors.New("record: numeric field not aligned to its size")
)

// TagSize is the width of the account-type tag of a Discriminated layout.
const TagSize = 8

type kind uint8

const (
	kindBytes kind = iota
	kindU8
	kindU16
	kindU32
	kindU64
	kindI64
	kindBool
	kindPubkey
	kindPadding
	kindTail
)

// Field is a handle to one declared field.
type Field struct {
	off  int
	size int
	kind kind
}

// Offset returns the field's byte offset in the record.
func (f Field) Offset() int { return f.off }

// Size returns the field's width. A tail reports 0.
func (f Field) Size() int { return f.size }

// Builder declares a layout field by field.
type Builder struct {
	off    int
	tail   bool
	tag    uint64
	tagged bool
	tagF   Field
	err    error
}

// NewBuilder starts an empty layout.
func NewBuilder() *Builder {
	return &Builder{}
}

// Discriminated starts a layout whose first field is an 8-byte tag that
// identifies the account type.
func Discriminated(tag uint64) *Builder {
	b := &Builder{tag: tag, tagged: true}
	b.tagF = b.U64()
	return b
}

func (b *Builder) add(k kind, size int, align bool) Field {
	if b.tail {
		b.setErr(ErrFieldOrder)
		return Field{}
	}
	if align && b.off%size != 0 {
		b.setErr(ErrMisaligned)
	}
	f := Field{off: b.off, size: size, kind: k}
	b.off += size
	return f
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) U8() Field  { return b.add(kindU8, 1, false) }
func (b *Builder) U16() Field { return b.add(kindU16, 2, true) }
func (b *Builder) U32() Field { return b.add(kindU32, 4, true) }
func (b *Builder) U64() Field { return b.add(kindU64, 8, true) }
func (b *Builder) I64() Field { return b.add(kindI64, 8, true) }

// Bool is one byte; any non-zero value reads as true.
func (b *Builder) Bool() Field { return b.add(kindBool, 1, false) }

func (b *Builder) Pubkey() Field { return b.add(kindPubkey, types.PubkeySize, false) }

// Bytes declares a fixed run of n raw bytes.
func (b *Builder) Bytes(n int) Field { return b.add(kindBytes, n, false) }

// Padding reserves n bytes that no accessor reads.
func (b *Builder) Padding(n int) Field { return b.add(kindPadding, n, false) }

// Tail declares the variable-length remainder of the data. No field may
// follow it.
func (b *Builder) Tail() Field {
	if b.tail {
		b.setErr(ErrFieldOrder)
		return Field{}
	}
	b.tail = true
	return Field{off: b.off, kind: kindTail}
}

// Build finishes the layout.
func (b *Builder) Build() (Layout, error) {
	if b.err != nil {
		return Layout{}, b.err
	}
	return Layout{
		size:    b.off,
		hasTail: b.tail,
		tag:     b.tag,
		tagged:  b.tagged,
		tagF:    b.tagF,
	}, nil
}

// MustBuild is Build for package-level layouts; it panics on error.
func (b *Builder) MustBuild() Layout {
	l, err := b.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// Layout is a finished record shape.
type Layout struct {
	size    int
	hasTail bool
	tag     uint64
	tagged  bool
	tagF    Field
}

// Size returns the length of the fixed part. Data shorter than this cannot
// be bound.
func (l Layout) Size() int { return l.size }

// HasTail reports whether the layout ends in a variable-length tail.
func (l Layout) HasTail() bool { return l.hasTail }

// Tag returns the account-type tag of a Discriminated layout.
func (l Layout) Tag() (uint64, bool) { return l.tag, l.tagged }

// Record is a layout bound to a data slice. Reads and writes go straight to
// the slice.
type Record struct {
	data   []byte
	layout Layout
}

// Bind binds data to layout. It fails with ErrAccountDataTooSmall when data
// does not cover the fixed part.
func Bind(data []byte, layout Layout) (Record, error) {
	if len(data) < layout.size {
		return Record{}, program.ErrAccountDataTooSmall
	}
	return Record{data: data, layout: layout}, nil
}

// Layout returns the bound layout.
func (r Record) Layout() Layout { return r.layout }

// CheckTag verifies the tag of a Discriminated record. Records of untagged
// layouts always pass.
func (r Record) CheckTag() error {
	if !r.layout.tagged {
		return nil
	}
	if r.Uint64(r.layout.tagF) != r.layout.tag {
		return program.ErrInvalidAccountData
	}
	return nil
}

// PutTag writes the layout's tag, marking the data as initialized.
func (r Record) PutTag() {
	if r.layout.tagged {
		r.PutUint64(r.layout.tagF, r.layout.tag)
	}
}

// IsZeroed reports whether the fixed part is all zero bytes, the state of a
// freshly allocated account.
func (r Record) IsZeroed() bool {
	for _, c := range r.data[:r.layout.size] {
		if c != 0 {
			return false
		}
	}
	return true
}

func (r Record) field(f Field) []byte {
	return r.data[f.off : f.off+f.size : f.off+f.size]
}

func (r Record) Uint8(f Field) uint8   { return r.data[f.off] }
func (r Record) Uint16(f Field) uint16 { return binary.LittleEndian.Uint16(r.field(f)) }
func (r Record) Uint32(f Field) uint32 { return binary.LittleEndian.Uint32(r.field(f)) }
func (r Record) Uint64(f Field) uint64 { return binary.LittleEndian.Uint64(r.field(f)) }
func (r Record) Int64(f Field) int64   { return int64(binary.LittleEndian.Uint64(r.field(f))) }
func (r Record) Bool(f Field) bool     { return r.data[f.off] != 0 }

// Pubkey returns a pointer into the data.
func (r Record) Pubkey(f Field) *types.Pubkey {
	return (*types.Pubkey)(r.field(f))
}

// Bytes returns the field's bytes. Writes through the slice land in the
// record.
func (r Record) Bytes(f Field) []byte { return r.field(f) }

// Tail returns everything after the fixed part.
func (r Record) Tail(f Field) []byte {
	return r.data[f.off:len(r.data):len(r.data)]
}

func (r Record) PutUint8(f Field, v uint8)   { r.data[f.off] = v }
func (r Record) PutUint16(f Field, v uint16) { binary.LittleEndian.PutUint16(r.field(f), v) }
func (r Record) PutUint32(f Field, v uint32) { binary.LittleEndian.PutUint32(r.field(f), v) }
func (r Record) PutUint64(f Field, v uint64) { binary.LittleEndian.PutUint64(r.field(f), v) }
func (r Record) PutInt64(f Field, v int64)   { binary.LittleEndian.PutUint64(r.field(f), uint64(v)) }

func (r Record) PutBool(f Field, v bool) {
	if v {
		r.data[f.off] = 1
	} else {
		r.data[f.off] = 0
	}
}

func (r Record) PutPubkey(f Field, k *types.Pubkey) { copy(r.field(f), k[:]) }

// PutBytes copies b into a fixed Bytes field, zero-filling what b leaves.
func (r Record) PutBytes(f Field, b []byte) {
	dst := r.field(f)
	n := copy(dst, b)
	clear(dst[n:])
}

// PutTail copies b into the tail. The data must already be sized to hold it;
// it returns ErrAccountDataTooSmall otherwise.
func (r Record) PutTail(f Field, b []byte) error {
	tail := r.Tail(f)
	if len(b) > len(tail) {
		return program.ErrAccountDataTooSmall
	}
	n := copy(tail, b)
	clear(tail[n:])
	return nil
}
