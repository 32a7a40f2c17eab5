// Package system is a native System Program for the host harness.
//
// It covers the subset programs need to get accounts into existence:
// creating an account, assigning it to a program, transferring lamports and
// allocating space. Instructions are routed by a 4-byte little-endian
// discriminant, the numbering used on chain.
//
// Space is bounded by the realloc headroom the host reserves in the call
// buffer, so a single CreateAccount or Allocate can reserve at most
// abi.MaxPermittedDataIncrease bytes.
package system

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/abi"
	"github.com/fortiblox/X1-Cirrus/pkg/account"
	"github.com/fortiblox/X1-Cirrus/pkg/dispatch"
	"github.com/fortiblox/X1-Cirrus/pkg/entrypoint"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount uint64 = 0
	InstructionAssign        uint64 = 1
	InstructionTransfer      uint64 = 2
	InstructionAllocate      uint64 = 8
)

// Discriminant width in bytes.
const discWidth = 4

// System errors, numbered as the on-chain SystemError enum.
var (
	ErrAccountAlreadyInUse        = program.Custom(0)
	ErrResultWithNegativeLamports = program.Custom(1)
	ErrInvalidAccountDataLength   = program.Custom(3)
)

var router = dispatch.ByPrefix(discWidth,
	dispatch.RouteN[*entrypoint.Lazy]{Disc: InstructionCreateAccount, Handler: createAccount},
	dispatch.RouteN[*entrypoint.Lazy]{Disc: InstructionAssign, Handler: assign},
	dispatch.RouteN[*entrypoint.Lazy]{Disc: InstructionTransfer, Handler: transfer},
	dispatch.RouteN[*entrypoint.Lazy]{Disc: InstructionAllocate, Handler: allocate},
)

// Entrypoint is the program entry registered with the host.
var Entrypoint = entrypoint.EntryLazy(process)

func process(ctx *entrypoint.Lazy) error {
	return router.Dispatch(ctx, ctx.InstructionData())
}

// isUnused reports whether acc looks like an account nobody created yet.
func isUnused(acc account.View) bool {
	return acc.IsOwnedBy(&ProgramID) && acc.DataLen() == 0 && acc.Lamports() == 0
}

// createAccount: [funder(s,w), new(s,w)], args lamports u64 | space u64 | owner.
func createAccount(ctx *entrypoint.Lazy, args []byte) error {
	if len(args) < 16+types.PubkeySize {
		return program.ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(args)
	space := binary.LittleEndian.Uint64(args[8:])
	owner := (*types.Pubkey)(args[16 : 16+types.PubkeySize])

	funder, err := signerWritable(ctx, 0)
	if err != nil {
		return err
	}
	created, err := signerWritable(ctx, 1)
	if err != nil {
		return err
	}
	if !isUnused(created) {
		ctx.Log("Create Account: account already in use")
		return ErrAccountAlreadyInUse
	}

	if err := allocateAndAssign(created, space, owner); err != nil {
		return err
	}
	return move(funder, created, lamports)
}

// assign: [acc(s,w)], args owner.
func assign(ctx *entrypoint.Lazy, args []byte) error {
	if len(args) < types.PubkeySize {
		return program.ErrInvalidInstructionData
	}
	owner := (*types.Pubkey)(args[:types.PubkeySize])

	acc, err := signerWritable(ctx, 0)
	if err != nil {
		return err
	}
	if *acc.Owner() == *owner {
		return nil
	}
	if !acc.IsOwnedBy(&ProgramID) {
		return program.ErrInvalidAccountOwner
	}
	return acc.Assign(owner)
}

// transfer: [from(s,w), to(w)], args lamports u64.
func transfer(ctx *entrypoint.Lazy, args []byte) error {
	if len(args) < 8 {
		return program.ErrInvalidInstructionData
	}
	lamports := binary.LittleEndian.Uint64(args)

	from, err := signerWritable(ctx, 0)
	if err != nil {
		return err
	}
	to, err := entrypoint.Writable(ctx, 1)
	if err != nil {
		return err
	}
	if from.DataLen() != 0 {
		ctx.Log("Transfer: `from` must not carry data")
		return program.ErrInvalidArgument
	}
	if !from.IsOwnedBy(&ProgramID) {
		return program.ErrInvalidAccountOwner
	}
	return move(from, to, lamports)
}

// allocate: [acc(s,w)], args space u64.
func allocate(ctx *entrypoint.Lazy, args []byte) error {
	if len(args) < 8 {
		return program.ErrInvalidInstructionData
	}
	space := binary.LittleEndian.Uint64(args)

	acc, err := signerWritable(ctx, 0)
	if err != nil {
		return err
	}
	if acc.DataLen() != 0 || !acc.IsOwnedBy(&ProgramID) {
		ctx.Log("Allocate: account already in use")
		return ErrAccountAlreadyInUse
	}
	return resize(acc, space)
}

func allocateAndAssign(acc account.View, space uint64, owner *types.Pubkey) error {
	if err := resize(acc, space); err != nil {
		return err
	}
	return acc.Assign(owner)
}

func resize(acc account.View, space uint64) error {
	if space > abi.MaxAccountDataSize {
		return ErrInvalidAccountDataLength
	}
	return acc.Resize(int(space))
}

func move(from, to account.View, lamports uint64) error {
	if from.Lamports() < lamports {
		return ErrResultWithNegativeLamports
	}
	if err := from.SubLamports(lamports); err != nil {
		return err
	}
	return to.AddLamports(lamports)
}

func signerWritable(ctx *entrypoint.Lazy, i int) (account.View, error) {
	acc, err := entrypoint.Signer(ctx, i)
	if err != nil {
		return account.View{}, err
	}
	if !acc.IsWritable() {
		return account.View{}, program.ErrReadOnlyViolation
	}
	return acc, nil
}

// CreateAccountData encodes a CreateAccount payload.
func CreateAccountData(lamports, space uint64, owner types.Pubkey) []byte {
	args := make([]byte, 0, 16+types.PubkeySize)
	args = binary.LittleEndian.AppendUint64(args, lamports)
	args = binary.LittleEndian.AppendUint64(args, space)
	args = append(args, owner[:]...)
	return dispatch.Encode(discWidth, InstructionCreateAccount, args)
}

// AssignData encodes an Assign payload.
func AssignData(owner types.Pubkey) []byte {
	return dispatch.Encode(discWidth, InstructionAssign, owner[:])
}

// TransferData encodes a Transfer payload.
func TransferData(lamports uint64) []byte {
	return dispatch.Encode(discWidth, InstructionTransfer, binary.LittleEndian.AppendUint64(nil, lamports))
}

// AllocateData encodes an Allocate payload.
func AllocateData(space uint64) []byte {
	return dispatch.Encode(discWidth, InstructionAllocate, binary.LittleEndian.AppendUint64(nil, space))
}
