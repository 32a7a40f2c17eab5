package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Cirrus/pkg/program"
)

type call struct {
	name string
	args []byte
}

func record(name string) Handler[*[]call] {
	return func(calls *[]call, args []byte) error {
		*calls = append(*calls, call{name, args})
		return nil
	}
}

func TestSingle(t *testing.T) {
	r := Single(record("only"))
	assert.Equal(t, 0, r.Width())

	var calls []call
	require.NoError(t, r.Dispatch(&calls, []byte("hello")))
	require.NoError(t, r.Dispatch(&calls, nil))
	assert.Equal(t, []call{{"only", []byte("hello")}, {"only", nil}}, calls)
}

func TestByByte(t *testing.T) {
	r := ByByte(
		Route1[*[]call]{Disc: 0, Handler: record("init")},
		Route1[*[]call]{Disc: 7, Handler: record("seven")},
		Route1[*[]call]{Disc: 255, Handler: record("last")},
	)
	assert.Equal(t, 1, r.Width())

	var calls []call
	require.NoError(t, r.Dispatch(&calls, []byte{0}))
	require.NoError(t, r.Dispatch(&calls, []byte{7, 1, 2}))
	require.NoError(t, r.Dispatch(&calls, []byte{255, 9}))
	assert.Equal(t, []call{
		{"init", []byte{}},
		{"seven", []byte{1, 2}},
		{"last", []byte{9}},
	}, calls)

	// Every unregistered byte fails without calling anything.
	calls = nil
	for b := 0; b < 256; b++ {
		if b == 0 || b == 7 || b == 255 {
			continue
		}
		assert.Equal(t, program.ErrUnknownDiscriminator, r.Dispatch(&calls, []byte{byte(b)}))
	}
	assert.Equal(t, program.ErrUnknownDiscriminator, r.Dispatch(&calls, nil))
	assert.Empty(t, calls)
}

func TestByPrefix(t *testing.T) {
	r := ByPrefix(4,
		RouteN[*[]call]{Disc: 0x01020304, Handler: record("a")},
		RouteN[*[]call]{Disc: 0xdeadbeef, Handler: record("b")},
	)
	assert.Equal(t, 4, r.Width())

	var calls []call
	require.NoError(t, r.Dispatch(&calls, Encode(4, 0x01020304, []byte("x"))))
	require.NoError(t, r.Dispatch(&calls, []byte{0xef, 0xbe, 0xad, 0xde}))
	assert.Equal(t, []call{{"a", []byte("x")}, {"b", []byte{}}}, calls)

	calls = nil
	assert.Equal(t, program.ErrUnknownDiscriminator, r.Dispatch(&calls, []byte{4, 3, 2}))
	assert.Equal(t, program.ErrUnknownDiscriminator, r.Dispatch(&calls, []byte{4, 3, 2, 0}))
	// Big-endian bytes of a registered key are a different discriminator.
	assert.Equal(t, program.ErrUnknownDiscriminator, r.Dispatch(&calls, []byte{1, 2, 3, 4}))
	assert.Empty(t, calls)
}

func TestAnchorRouting(t *testing.T) {
	disc := Anchor("initialize")
	// sha256("global:initialize")[:8] = afaf6d1f0d989bed
	assert.Equal(t, []byte{0xaf, 0xaf, 0x6d, 0x1f, 0x0d, 0x98, 0x9b, 0xed}, Encode(8, disc, nil))

	r := ByPrefix(8,
		RouteN[*[]call]{Disc: disc, Handler: record("initialize")},
		RouteN[*[]call]{Disc: Anchor("increment"), Handler: record("increment")},
	)
	var calls []call
	require.NoError(t, r.Dispatch(&calls, Encode(8, Anchor("increment"), []byte{5})))
	assert.Equal(t, []call{{"increment", []byte{5}}}, calls)
}

func TestConstructionPanics(t *testing.T) {
	h := record("h")

	assert.Panics(t, func() { Single[*[]call](nil) })
	assert.Panics(t, func() {
		ByByte(Route1[*[]call]{Disc: 1, Handler: h}, Route1[*[]call]{Disc: 1, Handler: h})
	})
	assert.Panics(t, func() { ByByte(Route1[*[]call]{Disc: 1}) })
	assert.Panics(t, func() { ByPrefix[*[]call](1) })
	assert.Panics(t, func() { ByPrefix[*[]call](9) })
	assert.Panics(t, func() {
		ByPrefix(2, RouteN[*[]call]{Disc: 0x10000, Handler: h})
	})
	assert.Panics(t, func() {
		ByPrefix(3, RouteN[*[]call]{Disc: 5, Handler: h}, RouteN[*[]call]{Disc: 5, Handler: h})
	})
	assert.NotPanics(t, func() {
		ByPrefix(8, RouteN[*[]call]{Disc: ^uint64(0), Handler: h})
	})
}

func TestEncode(t *testing.T) {
	assert.Equal(t, []byte("abc"), Encode(0, 0, []byte("abc")))
	assert.Equal(t, []byte{3, 'a'}, Encode(1, 3, []byte("a")))
	assert.Equal(t, []byte{0x34, 0x12}, Encode(2, 0x1234, nil))
}
