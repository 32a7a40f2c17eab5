// Package counter is a program that keeps a per-authority counter in a
// program derived account.
//
// The counter for an authority lives at the address derived from
// ["counter", authority]. The account is created by the System Program,
// signed for by its seeds, and then initialized here. Handlers are written
// against entrypoint.Accounts so the same logic is exported behind both the
// eager and the lazy entrypoint.
//
// Account data layout:
//
//	 0  tag        u64
//	 8  count      u64
//	16  authority  [32]byte
//	48  bump       u8
//	49  (padding)  [7]byte
//	56  label      remainder
package counter

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/account"
	"github.com/fortiblox/X1-Cirrus/pkg/dispatch"
	"github.com/fortiblox/X1-Cirrus/pkg/entrypoint"
	"github.com/fortiblox/X1-Cirrus/pkg/pda"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
	"github.com/fortiblox/X1-Cirrus/pkg/record"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

// ProgramID is the address the program is registered under.
var ProgramID = types.MustPubkeyFromBase58("Counter111111111111111111111111111111111111")

// Instruction discriminators.
const (
	InstructionInitialize uint8 = 0
	InstructionIncrement  uint8 = 1
	InstructionWithdraw   uint8 = 2
	InstructionSetLabel   uint8 = 3
	InstructionClose      uint8 = 4
)

// AccountTag marks initialized counter data ("counter" in little-endian).
const AccountTag uint64 = 0x0072_6574_6e75_6f63

// MaxLabel is the longest label SetLabel accepts.
const MaxLabel = 64

// SeedPrefix is the first seed of every counter address.
var SeedPrefix = []byte("counter")

// Counter errors.
var (
	ErrWrongAuthority = program.Custom(0)
	ErrLabelTooLong   = program.Custom(1)
)

type layout struct {
	record.Layout
	count     record.Field
	authority record.Field
	bump      record.Field
	label     record.Field
}

func newLayout() layout {
	b := record.Discriminated(AccountTag)
	var l layout
	l.count = b.U64()
	l.authority = b.Pubkey()
	l.bump = b.U8()
	b.Padding(7)
	l.label = b.Tail()
	l.Layout = b.MustBuild()
	return l
}

var counterLayout = newLayout()

// Space is the data size a counter account is created with.
var Space = counterLayout.Size()

var router = dispatch.ByByte(
	dispatch.Route1[entrypoint.Accounts]{Disc: InstructionInitialize, Handler: initialize},
	dispatch.Route1[entrypoint.Accounts]{Disc: InstructionIncrement, Handler: increment},
	dispatch.Route1[entrypoint.Accounts]{Disc: InstructionWithdraw, Handler: withdraw},
	dispatch.Route1[entrypoint.Accounts]{Disc: InstructionSetLabel, Handler: setLabel},
	dispatch.Route1[entrypoint.Accounts]{Disc: InstructionClose, Handler: closeCounter},
)

// Entrypoint parses every account before dispatch.
var Entrypoint = entrypoint.Entry(func(ctx *entrypoint.Context) error {
	return router.Dispatch(ctx, ctx.InstructionData())
})

// EntrypointLazy reads accounts only as handlers ask for them.
var EntrypointLazy = entrypoint.EntryLazy(func(ctx *entrypoint.Lazy) error {
	return router.Dispatch(ctx, ctx.InstructionData())
})

// Seeds returns the seeds of authority's counter, without the bump.
func Seeds(authority types.Pubkey) [][]byte {
	return [][]byte{SeedPrefix, authority[:]}
}

// Address returns the counter address of authority and its bump.
func Address(authority types.Pubkey) (types.Pubkey, uint8, error) {
	return pda.Derive(Seeds(authority), &ProgramID)
}

// State is a decoded counter account.
type State struct {
	Count     uint64
	Authority types.Pubkey
	Bump      uint8
	Label     string
}

// Decode reads counter account data.
func Decode(data []byte) (State, error) {
	r, err := record.Bind(data, counterLayout.Layout)
	if err != nil {
		return State{}, err
	}
	if err := r.CheckTag(); err != nil {
		return State{}, err
	}
	return State{
		Count:     r.Uint64(counterLayout.count),
		Authority: *r.Pubkey(counterLayout.authority),
		Bump:      r.Uint8(counterLayout.bump),
		Label:     string(r.Tail(counterLayout.label)),
	}, nil
}

// initialize: [counter(w), authority(s)].
func initialize(ctx entrypoint.Accounts, _ []byte) error {
	acc, err := entrypoint.Owned(ctx, 0)
	if err != nil {
		return err
	}
	authority, err := entrypoint.Signer(ctx, 1)
	if err != nil {
		return err
	}

	addr, bump, err := syscall.FindProgramAddress(ctx.Sys(), Seeds(*authority.Key()), ctx.ProgramID())
	if err != nil {
		return err
	}
	if addr != *acc.Key() {
		ctx.Log("Initialize: counter address does not match authority")
		return program.ErrInvalidSeeds
	}

	data, err := acc.DataMut()
	if err != nil {
		return err
	}
	r, err := record.Bind(data, counterLayout.Layout)
	if err != nil {
		return err
	}
	if !r.IsZeroed() {
		return program.ErrAccountAlreadyInitialized
	}

	r.PutTag()
	r.PutUint64(counterLayout.count, 0)
	r.PutPubkey(counterLayout.authority, authority.Key())
	r.PutUint8(counterLayout.bump, bump)
	return nil
}

// load checks accounts [counter(w), authority(s)] and binds the counter.
func load(ctx entrypoint.Accounts) (account.View, record.Record, error) {
	acc, err := entrypoint.Owned(ctx, 0)
	if err != nil {
		return account.View{}, record.Record{}, err
	}
	authority, err := entrypoint.Signer(ctx, 1)
	if err != nil {
		return account.View{}, record.Record{}, err
	}
	data, err := acc.DataMut()
	if err != nil {
		return account.View{}, record.Record{}, err
	}
	r, err := record.Bind(data, counterLayout.Layout)
	if err != nil {
		return account.View{}, record.Record{}, err
	}
	if err := r.CheckTag(); err != nil {
		return account.View{}, record.Record{}, program.ErrUninitializedAccount
	}

	stored := r.Pubkey(counterLayout.authority)
	if *stored != *authority.Key() {
		return account.View{}, record.Record{}, ErrWrongAuthority
	}
	if !pda.Verify(Seeds(*stored), r.Uint8(counterLayout.bump), ctx.ProgramID(), acc.Key()) {
		return account.View{}, record.Record{}, program.ErrInvalidSeeds
	}
	return acc, r, nil
}

// increment: [counter(w), authority(s)], args optional amount u64.
func increment(ctx entrypoint.Accounts, args []byte) error {
	amount := uint64(1)
	if len(args) >= 8 {
		amount = binary.LittleEndian.Uint64(args)
	}

	_, r, err := load(ctx)
	if err != nil {
		return err
	}
	count := r.Uint64(counterLayout.count)
	if count+amount < count {
		return program.ErrArithmeticOverflow
	}
	count += amount
	r.PutUint64(counterLayout.count, count)

	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], count)
	return ctx.Sys().SetReturnData(*ctx.ProgramID(), out[:])
}

// withdraw: [counter(w), authority(s), destination(w)], args lamports u64.
func withdraw(ctx entrypoint.Accounts, args []byte) error {
	if len(args) < 8 {
		return program.ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(args)

	acc, _, err := load(ctx)
	if err != nil {
		return err
	}
	dest, err := entrypoint.Writable(ctx, 2)
	if err != nil {
		return err
	}
	if err := acc.SubLamports(lamports); err != nil {
		return err
	}
	return dest.AddLamports(lamports)
}

// setLabel: [counter(w), authority(s)], args label bytes.
func setLabel(ctx entrypoint.Accounts, args []byte) error {
	if len(args) > MaxLabel {
		return ErrLabelTooLong
	}
	acc, _, err := load(ctx)
	if err != nil {
		return err
	}
	if err := acc.Resize(Space + len(args)); err != nil {
		return err
	}
	data, err := acc.DataMut()
	if err != nil {
		return err
	}
	r, err := record.Bind(data, counterLayout.Layout)
	if err != nil {
		return err
	}
	return r.PutTail(counterLayout.label, args)
}

// closeCounter: [counter(w), authority(s), destination(w)]. Moves every
// lamport to destination and drops the data, so the host deletes the
// account.
func closeCounter(ctx entrypoint.Accounts, _ []byte) error {
	acc, _, err := load(ctx)
	if err != nil {
		return err
	}
	dest, err := entrypoint.Writable(ctx, 2)
	if err != nil {
		return err
	}
	if *dest.Key() == *acc.Key() {
		return program.ErrInvalidArgument
	}
	if err := dest.AddLamports(acc.Lamports()); err != nil {
		return err
	}
	if err := acc.SetLamports(0); err != nil {
		return err
	}
	return acc.Resize(0)
}

// InitializeData encodes an Initialize payload.
func InitializeData() []byte {
	return dispatch.Encode(1, uint64(InstructionInitialize), nil)
}

// IncrementData encodes an Increment payload.
func IncrementData(amount uint64) []byte {
	return dispatch.Encode(1, uint64(InstructionIncrement), binary.LittleEndian.AppendUint64(nil, amount))
}

// WithdrawData encodes a Withdraw payload.
func WithdrawData(lamports uint64) []byte {
	return dispatch.Encode(1, uint64(InstructionWithdraw), binary.LittleEndian.AppendUint64(nil, lamports))
}

// SetLabelData encodes a SetLabel payload.
func SetLabelData(label string) []byte {
	return dispatch.Encode(1, uint64(InstructionSetLabel), []byte(label))
}

// CloseData encodes a Close payload.
func CloseData() []byte {
	return dispatch.Encode(1, uint64(InstructionClose), nil)
}
