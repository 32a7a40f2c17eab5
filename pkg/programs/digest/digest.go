// Package digest hashes its instruction payload with one of the host's
// hashing syscalls and returns the 32-byte digest as return data.
//
// The first payload byte selects the algorithm; the rest is hashed as is.
// The program takes no accounts.
package digest

import (
	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/dispatch"
	"github.com/fortiblox/X1-Cirrus/pkg/entrypoint"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

// ProgramID is the address the program is registered under.
var ProgramID = types.MustPubkeyFromBase58("Digest1111111111111111111111111111111111111")

// Instruction discriminators.
const (
	InstructionSha256    uint8 = 0
	InstructionKeccak256 uint8 = 1
	InstructionBlake3    uint8 = 2
)

// Algorithms maps algorithm names to their discriminators.
var Algorithms = map[string]uint8{
	"sha256":    InstructionSha256,
	"keccak256": InstructionKeccak256,
	"blake3":    InstructionBlake3,
}

type hashFunc func(h syscall.Host, parts ...[]byte) (types.Hash, error)

func handler(fn hashFunc) dispatch.Handler[*entrypoint.Lazy] {
	return func(ctx *entrypoint.Lazy, args []byte) error {
		sum, err := fn(ctx.Sys(), args)
		if err != nil {
			return err
		}
		syscall.LogData(ctx.Sys(), sum[:])
		return ctx.Sys().SetReturnData(*ctx.ProgramID(), sum[:])
	}
}

var router = dispatch.ByByte(
	dispatch.Route1[*entrypoint.Lazy]{Disc: InstructionSha256, Handler: handler(syscall.Sha256)},
	dispatch.Route1[*entrypoint.Lazy]{Disc: InstructionKeccak256, Handler: handler(syscall.Keccak256)},
	dispatch.Route1[*entrypoint.Lazy]{Disc: InstructionBlake3, Handler: handler(syscall.Blake3)},
)

// Entrypoint is the program entry registered with the host.
var Entrypoint = entrypoint.EntryLazy(func(ctx *entrypoint.Lazy) error {
	return router.Dispatch(ctx, ctx.InstructionData())
})

// Data builds the payload that hashes msg with the algorithm alg.
func Data(alg uint8, msg []byte) []byte {
	return dispatch.Encode(1, uint64(alg), msg)
}
