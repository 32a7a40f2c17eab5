// Package program defines the status codes a program hands back to the host.
//
// The Execution Entry Contract returns a single uint64. Zero is success.
// Builtin failures are encoded as index<<32 and custom program failures as
// the raw u32 value, matching the host's ProgramError encoding, so codes
// pass through to the host unchanged.
//
// Error strings are static. Nothing in this package formats on the hot path.
package program

import (
	"errors"
)

// Success is the status returned when a program completes without error.
const Success uint64 = 0

const builtinShift = 32

// Error is a host-visible status code. The zero value is not an error and
// is never returned as one.
type Error uint64

// Builtin program errors. The order of the index values is ABI.
const (
	ErrCustomZero                     Error = 1 << builtinShift
	ErrInvalidArgument                Error = 2 << builtinShift
	ErrInvalidInstructionData         Error = 3 << builtinShift
	ErrInvalidAccountData             Error = 4 << builtinShift
	ErrAccountDataTooSmall            Error = 5 << builtinShift
	ErrInsufficientFunds              Error = 6 << builtinShift
	ErrIncorrectProgramID             Error = 7 << builtinShift
	ErrMissingRequiredSignature       Error = 8 << builtinShift
	ErrAccountAlreadyInitialized      Error = 9 << builtinShift
	ErrUninitializedAccount           Error = 10 << builtinShift
	ErrNotEnoughAccountKeys           Error = 11 << builtinShift
	ErrAccountBorrowFailed            Error = 12 << builtinShift
	ErrMaxSeedLengthExceeded          Error = 13 << builtinShift
	ErrInvalidSeeds                   Error = 14 << builtinShift
	ErrBorshIO                        Error = 15 << builtinShift
	ErrAccountNotRentExempt           Error = 16 << builtinShift
	ErrUnsupportedSysvar              Error = 17 << builtinShift
	ErrIllegalOwner                   Error = 18 << builtinShift
	ErrMaxAccountsDataAllocations     Error = 19 << builtinShift
	ErrInvalidRealloc                 Error = 20 << builtinShift
	ErrMaxInstructionTraceLength      Error = 21 << builtinShift
	ErrBuiltinMustConsumeComputeUnits Error = 22 << builtinShift
	ErrInvalidAccountOwner            Error = 23 << builtinShift
	ErrArithmeticOverflow             Error = 24 << builtinShift
	ErrImmutable                      Error = 25 << builtinShift
	ErrIncorrectAuthority             Error = 26 << builtinShift
)

// Runtime failure classes. Three alias the builtin code the host already
// understands for that failure. MalformedInput and NoValidBump have codes of
// their own so they never read as a handler's ordinary rejection.
const (
	// ErrMalformedInput: the call buffer's counts or lengths exceed its
	// physical bounds. Fatal; the call itself is invalid.
	ErrMalformedInput Error = 0xf7 << builtinShift

	// ErrOutOfRange: an account index at or beyond account_count.
	ErrOutOfRange = ErrNotEnoughAccountKeys

	// ErrReadOnlyViolation: mutation attempted through a non-writable view.
	ErrReadOnlyViolation = ErrImmutable

	// ErrUnknownDiscriminator: no handler matches the instruction prefix.
	ErrUnknownDiscriminator = ErrInvalidInstructionData

	// ErrNoValidBump: no bump in 255..1 yields an off-curve address.
	ErrNoValidBump Error = 0xf8 << builtinShift
)

// Host-side codes. The host reports these when a call broke a rule the
// runtime enforces after the program returns; programs never return them.
const (
	ErrExternalDataModified  Error = 0xf9 << builtinShift
	ErrExternalLamportSpend  Error = 0xfa << builtinShift
	ErrModifiedProgramID     Error = 0xfb << builtinShift
	ErrUnbalancedInstruction Error = 0xfc << builtinShift
	ErrExecutableModified    Error = 0xfd << builtinShift
	ErrComputeBudgetExceeded Error = 0xff << builtinShift
)

var reservedMessages = map[Error]string{
	ErrMalformedInput:        "malformed call buffer",
	ErrNoValidBump:           "unable to find a viable program address bump seed",
	ErrExternalDataModified:  "instruction modified data of an account it does not own",
	ErrExternalLamportSpend:  "instruction spent from the balance of an account it does not own",
	ErrModifiedProgramID:     "instruction illegally modified the program id of an account",
	ErrUnbalancedInstruction: "sum of account balances before and after instruction do not match",
	ErrExecutableModified:    "instruction changed executable account",
	ErrComputeBudgetExceeded: "compute budget exceeded",
}

var builtinMessages = [...]string{
	1:  "custom program error: 0",
	2:  "invalid argument",
	3:  "invalid instruction data",
	4:  "invalid account data",
	5:  "account data too small",
	6:  "insufficient funds",
	7:  "incorrect program id",
	8:  "missing required signature",
	9:  "account already initialized",
	10: "uninitialized account",
	11: "not enough account keys",
	12: "account borrow failed",
	13: "max seed length exceeded",
	14: "invalid seeds",
	15: "borsh io error",
	16: "account not rent exempt",
	17: "unsupported sysvar",
	18: "illegal owner",
	19: "max accounts data allocations exceeded",
	20: "invalid realloc",
	21: "max instruction trace length exceeded",
	22: "builtin programs must consume compute units",
	23: "invalid account owner",
	24: "arithmetic overflow",
	25: "immutable",
	26: "incorrect authority",
}

// Custom returns the status for a program-defined error code.
// Custom(0) is encoded as ErrCustomZero so it cannot be mistaken for success.
func Custom(code uint32) Error {
	if code == 0 {
		return ErrCustomZero
	}
	return Error(code)
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.IsCustom() {
		return "custom program error"
	}
	if msg, ok := reservedMessages[e]; ok {
		return msg
	}
	idx := uint64(e) >> builtinShift
	if idx < uint64(len(builtinMessages)) && builtinMessages[idx] != "" {
		return builtinMessages[idx]
	}
	return "unknown program error"
}

// IsCustom reports whether e carries a program-defined code.
func (e Error) IsCustom() bool {
	return e != 0 && uint64(e)>>builtinShift == 0
}

// CustomCode returns the program-defined code, if any.
func (e Error) CustomCode() (uint32, bool) {
	if e == ErrCustomZero {
		return 0, true
	}
	if !e.IsCustom() {
		return 0, false
	}
	return uint32(e), true
}

// Status maps an error to the status code handed back to the host.
// Errors that do not wrap an Error are reported as ErrInvalidArgument;
// programs that care about precise codes return Error values.
func Status(err error) uint64 {
	if err == nil {
		return Success
	}
	if pe, ok := err.(Error); ok && pe != 0 {
		return uint64(pe)
	}
	var pe Error
	if errors.As(err, &pe) && pe != 0 {
		return uint64(pe)
	}
	return uint64(ErrInvalidArgument)
}

// FromStatus converts a status code back into an error. It returns nil for
// Success.
func FromStatus(status uint64) error {
	if status == Success {
		return nil
	}
	return Error(status)
}
