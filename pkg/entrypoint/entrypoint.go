// Package entrypoint implements the boundary between the host and a
// program: it turns the raw call buffer into a call context, runs the
// program's logic and reduces the outcome to a single status code.
//
// Two strategies are offered. Process materializes every account view
// before the handler runs. ProcessLazy hands the handler a Lazy context
// that walks the buffer only as far as the handler reads it, and validates
// the rest after the handler returns. Either way a buffer whose counts or
// lengths do not fit its physical size is reported as
// program.ErrMalformedInput.
//
// Neither strategy allocates per call. Process and ProcessLazy run in a
// package scratch context; ProcessInto and ProcessLazyInto run in one the
// caller owns. A context is only valid until the handler returns.
//
// Panics in handlers are not recovered. The host treats a panic as an abort.
package entrypoint

import (
	"sync"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/account"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

// Func is the entry a program exports to the host. The returned value is
// program.Success or a program.Error code.
type Func func(input []byte, sys syscall.Host) uint64

// Accounts is what handlers see of a call context. Both *Context and *Lazy
// satisfy it, so a handler written against Accounts runs under either
// strategy.
type Accounts interface {
	AccountCount() int
	Account(i int) (account.View, error)
	InstructionData() []byte
	ProgramID() *types.Pubkey
	Sys() syscall.Host
	Log(msg string)
}

var (
	_ Accounts = (*Context)(nil)
	_ Accounts = (*Lazy)(nil)
)

// Scratch contexts serve one call at a time. A concurrent or nested call
// finds them locked and gets a fresh context instead.
var (
	eagerScratch struct {
		sync.Mutex
		ctx Context
	}
	lazyScratch struct {
		sync.Mutex
		ctx Lazy
	}
)

// Process runs fn under an eagerly parsed Context.
func Process(input []byte, sys syscall.Host, fn func(*Context) error) uint64 {
	if !eagerScratch.TryLock() {
		return ProcessInto(input, sys, new(Context), fn)
	}
	defer eagerScratch.Unlock()
	return ProcessInto(input, sys, &eagerScratch.ctx, fn)
}

// ProcessInto is Process with scratch as the context. scratch must not be
// in use by another call.
func ProcessInto(input []byte, sys syscall.Host, scratch *Context, fn func(*Context) error) uint64 {
	defer scratch.release()
	if err := scratch.parse(input, sys); err != nil {
		return uint64(program.ErrMalformedInput)
	}
	return program.Status(fn(scratch))
}

// ProcessLazy runs fn under a Lazy context. The buffer is validated in full
// after fn returns; a malformed buffer overrides fn's result.
func ProcessLazy(input []byte, sys syscall.Host, fn func(*Lazy) error) uint64 {
	if !lazyScratch.TryLock() {
		return ProcessLazyInto(input, sys, new(Lazy), fn)
	}
	defer lazyScratch.Unlock()
	return ProcessLazyInto(input, sys, &lazyScratch.ctx, fn)
}

// ProcessLazyInto is ProcessLazy with scratch as the context. scratch must
// not be in use by another call.
func ProcessLazyInto(input []byte, sys syscall.Host, scratch *Lazy, fn func(*Lazy) error) uint64 {
	defer scratch.reset(nil, nil)
	scratch.reset(input, sys)
	err := fn(scratch)
	if scratch.Validate() != nil {
		return uint64(program.ErrMalformedInput)
	}
	return program.Status(err)
}

// Entry wraps fn as an eager Func.
func Entry(fn func(*Context) error) Func {
	return func(input []byte, sys syscall.Host) uint64 {
		return Process(input, sys, fn)
	}
}

// EntryLazy wraps fn as a lazy Func.
func EntryLazy(fn func(*Lazy) error) Func {
	return func(input []byte, sys syscall.Host) uint64 {
		return ProcessLazy(input, sys, fn)
	}
}

// Signer returns account i, failing with ErrMissingRequiredSignature if it
// did not sign the call.
func Signer[C Accounts](c C, i int) (account.View, error) {
	v, err := c.Account(i)
	if err != nil {
		return account.View{}, err
	}
	if !v.IsSigner() {
		return account.View{}, program.ErrMissingRequiredSignature
	}
	return v, nil
}

// Writable returns account i, failing with ErrReadOnlyViolation if the
// call did not grant write access to it.
func Writable[C Accounts](c C, i int) (account.View, error) {
	v, err := c.Account(i)
	if err != nil {
		return account.View{}, err
	}
	if !v.IsWritable() {
		return account.View{}, program.ErrReadOnlyViolation
	}
	return v, nil
}

// Owned returns account i, failing with ErrIllegalOwner unless the running
// program owns it.
func Owned[C Accounts](c C, i int) (account.View, error) {
	v, err := c.Account(i)
	if err != nil {
		return account.View{}, err
	}
	if !v.IsOwnedBy(c.ProgramID()) {
		return account.View{}, program.ErrIllegalOwner
	}
	return v, nil
}
