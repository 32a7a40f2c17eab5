// Package hello is the smallest useful program: it takes no accounts, logs
// its instruction payload and echoes it back as return data.
package hello

import (
	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/dispatch"
	"github.com/fortiblox/X1-Cirrus/pkg/entrypoint"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

// ProgramID is the address the program is registered under.
var ProgramID = types.MustPubkeyFromBase58("He11o11111111111111111111111111111111111111")

// Greeting is logged when the payload is empty.
const Greeting = "Hello, world!"

var router = dispatch.Single[*entrypoint.Context](greet)

// Entrypoint is the program entry registered with the host.
var Entrypoint = entrypoint.Entry(func(ctx *entrypoint.Context) error {
	return router.Dispatch(ctx, ctx.InstructionData())
})

func greet(ctx *entrypoint.Context, args []byte) error {
	if len(args) == 0 {
		ctx.Log(Greeting)
		return nil
	}
	ctx.LogBytes(args)
	if len(args) > syscall.MaxReturnData {
		return nil
	}
	return ctx.Sys().SetReturnData(*ctx.ProgramID(), args)
}
