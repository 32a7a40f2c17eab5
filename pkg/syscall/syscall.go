// Package syscall defines the host services a program may call while it
// runs: logging, return data, hashing and compute metering.
//
// The host supplies a Host to the entrypoint. Programs reach it through the
// call context and never hold on to it after returning.
package syscall

import (
	"errors"
)

// Syscall errors.
var (
	ErrComputeExceeded  = errors.New("compute budget exceeded")
	ErrReturnDataTooBig = errors.New("return data too large")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Compute costs for syscalls.
const (
	CUSyscallBase      = uint64(100)
	CULogBase          = uint64(100)
	CULogPerByte       = uint64(1)
	CULogData          = uint64(100)
	CUSha256Base       = uint64(85)
	CUSha256PerByte    = uint64(1)
	CUKeccak256Base    = uint64(85)
	CUKeccak256PerByte = uint64(1)
	CUBlake3Base       = uint64(85)
	CUBlake3PerByte    = uint64(1)
	CUCreatePDA        = uint64(1500)
	CUFindPDA          = uint64(1500)
)

// Maximum sizes.
const (
	MaxLogMsgLen  = 10000
	MaxReturnData = 1024
	MaxHashSlices = 100
)

// Host provides execution services to a running program.
type Host interface {
	// Logging
	Log(msg string)
	LogData(data [][]byte)

	// Return data
	SetReturnData(programID [32]byte, data []byte) error
	ReturnData() (programID [32]byte, data []byte)

	// Compute metering
	ConsumeCU(cost uint64) error
	RemainingCU() uint64
}

// Log writes msg to the host log, charging CULogBase plus one unit per
// byte. It compiles to nothing when built with the cirrus_nolog tag.
func Log(h Host, msg string) {
	if !LoggingEnabled {
		return
	}
	if len(msg) > MaxLogMsgLen {
		msg = msg[:MaxLogMsgLen]
	}
	if h.ConsumeCU(CULogBase+CULogPerByte*uint64(len(msg))) != nil {
		return
	}
	h.Log(msg)
}

// LogBytes logs raw bytes as a message.
func LogBytes(h Host, b []byte) {
	if !LoggingEnabled {
		return
	}
	Log(h, string(b))
}

// LogData logs binary slices, charging per byte.
func LogData(h Host, data ...[]byte) {
	if !LoggingEnabled {
		return
	}
	cost := CULogData
	for _, d := range data {
		cost += CULogPerByte * uint64(len(d))
	}
	if h.ConsumeCU(cost) != nil {
		return
	}
	h.LogData(data)
}

// Nop is a Host that records nothing and never runs out of compute. It is
// what off-chain callers and tests pass when they do not care about logs.
type Nop struct{}

func (Nop) Log(string) {}

func (Nop) LogData([][]byte) {}

func (Nop) SetReturnData([32]byte, []byte) error { return nil }

func (Nop) ReturnData() ([32]byte, []byte) { return [32]byte{}, nil }

func (Nop) ConsumeCU(uint64) error { return nil }

func (Nop) RemainingCU() uint64 { return CUMax }

var _ Host = Nop{}
