package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
)

func TestBuilderOffsets(t *testing.T) {
	b := NewBuilder()
	a := b.U8()
	flag := b.Bool()
	c := b.U16()
	d := b.U32()
	e := b.U64()
	key := b.Pubkey()
	raw := b.Bytes(3)
	b.Padding(5)
	f := b.I64()
	tail := b.Tail()

	layout, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, 0, a.Offset())
	assert.Equal(t, 1, flag.Offset())
	assert.Equal(t, 2, c.Offset())
	assert.Equal(t, 4, d.Offset())
	assert.Equal(t, 8, e.Offset())
	assert.Equal(t, 16, key.Offset())
	assert.Equal(t, 48, raw.Offset())
	assert.Equal(t, 56, f.Offset())
	assert.Equal(t, 64, tail.Offset())
	assert.Equal(t, 0, tail.Size())
	assert.Equal(t, 64, layout.Size())
	assert.True(t, layout.HasTail())
}

func TestBuilderErrors(t *testing.T) {
	t.Run("field after tail", func(t *testing.T) {
		b := NewBuilder()
		b.U64()
		b.Tail()
		b.U8()
		_, err := b.Build()
		assert.Equal(t, ErrFieldOrder, err)
	})

	t.Run("two tails", func(t *testing.T) {
		b := NewBuilder()
		b.Tail()
		b.Tail()
		_, err := b.Build()
		assert.Equal(t, ErrFieldOrder, err)
	})

	t.Run("misaligned u64", func(t *testing.T) {
		b := NewBuilder()
		b.U8()
		b.U64()
		_, err := b.Build()
		assert.Equal(t, ErrMisaligned, err)
	})

	t.Run("misaligned u16", func(t *testing.T) {
		b := NewBuilder()
		b.Bool()
		b.U16()
		_, err := b.Build()
		assert.Equal(t, ErrMisaligned, err)
	})

	t.Run("must build panics", func(t *testing.T) {
		b := NewBuilder()
		b.U8()
		b.U32()
		assert.Panics(t, func() { b.MustBuild() })
	})
}

func TestBindAndAccess(t *testing.T) {
	b := NewBuilder()
	count := b.U64()
	delta := b.I64()
	key := b.Pubkey()
	small := b.U32()
	half := b.U16()
	flag := b.Bool()
	bump := b.U8()
	name := b.Bytes(8)
	label := b.Tail()
	layout := b.MustBuild()

	data := make([]byte, layout.Size()+4)
	r, err := Bind(data, layout)
	require.NoError(t, err)
	assert.True(t, r.IsZeroed())

	owner := types.MustPubkeyFromBase58("BPFLoader1111111111111111111111111111111111")
	r.PutUint64(count, 42)
	r.PutInt64(delta, -7)
	r.PutPubkey(key, &owner)
	r.PutUint32(small, 0xdeadbeef)
	r.PutUint16(half, 0xbeef)
	r.PutBool(flag, true)
	r.PutUint8(bump, 254)
	r.PutBytes(name, []byte("abc"))
	require.NoError(t, r.PutTail(label, []byte("hi")))

	assert.Equal(t, uint64(42), r.Uint64(count))
	assert.Equal(t, int64(-7), r.Int64(delta))
	assert.Equal(t, owner, *r.Pubkey(key))
	assert.Equal(t, uint32(0xdeadbeef), r.Uint32(small))
	assert.Equal(t, uint16(0xbeef), r.Uint16(half))
	assert.True(t, r.Bool(flag))
	assert.Equal(t, uint8(254), r.Uint8(bump))
	assert.Equal(t, []byte("abc\x00\x00\x00\x00\x00"), r.Bytes(name))
	assert.Equal(t, []byte("hi\x00\x00"), r.Tail(label))
	assert.False(t, r.IsZeroed())

	// Writes land in the caller's slice.
	assert.Equal(t, byte(42), data[0])

	// The returned key aliases the data.
	r.Pubkey(key)[0] = 9
	assert.Equal(t, byte(9), data[key.Offset()])

	assert.Equal(t, program.ErrAccountDataTooSmall, r.PutTail(label, []byte("too long")))
	r.PutBool(flag, false)
	assert.False(t, r.Bool(flag))
}

func TestBindTooSmall(t *testing.T) {
	b := NewBuilder()
	b.U64()
	b.Pubkey()
	layout := b.MustBuild()

	_, err := Bind(make([]byte, layout.Size()-1), layout)
	assert.Equal(t, program.ErrAccountDataTooSmall, err)

	_, err = Bind(make([]byte, layout.Size()), layout)
	assert.NoError(t, err)
}

func TestDiscriminated(t *testing.T) {
	b := Discriminated(0x1122334455667788)
	value := b.U64()
	layout := b.MustBuild()

	tag, ok := layout.Tag()
	assert.True(t, ok)
	assert.Equal(t, uint64(0x1122334455667788), tag)
	assert.Equal(t, TagSize, value.Offset())

	r, err := Bind(make([]byte, layout.Size()), layout)
	require.NoError(t, err)
	assert.Equal(t, program.ErrInvalidAccountData, r.CheckTag())

	r.PutTag()
	assert.NoError(t, r.CheckTag())

	_, ok = NewBuilder().MustBuild().Tag()
	assert.False(t, ok)
	plain, err := Bind(nil, NewBuilder().MustBuild())
	require.NoError(t, err)
	assert.NoError(t, plain.CheckTag())
}
