package entrypoint

import (
	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/abi"
	"github.com/fortiblox/X1-Cirrus/pkg/account"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

// Lazy is a call context that parses on demand. Account i is walked the
// first time any index >= i is requested; its offset is cached after that.
// The first malformed record seen sticks and every later read reports it.
type Lazy struct {
	buf []byte
	sys syscall.Host

	count     int
	countRead bool

	offsets [abi.MaxAccounts]int
	parsed  int // records walked so far
	cursor  int // offset of record number parsed
	next    int // NextAccount position

	dataStart int
	dataEnd   int
	trailer   bool

	err error
}

// NewLazy wraps input without reading it.
func NewLazy(input []byte, sys syscall.Host) *Lazy {
	l := new(Lazy)
	l.reset(input, sys)
	return l
}

// reset points l at input. Cached offsets are only read below parsed, so
// the array is left as it is.
func (l *Lazy) reset(input []byte, sys syscall.Host) {
	l.buf, l.sys = input, sys
	l.count, l.countRead = 0, false
	l.parsed, l.cursor, l.next = 0, abi.CountSize, 0
	l.dataStart, l.dataEnd, l.trailer = 0, 0, false
	l.err = nil
}

func (l *Lazy) readCount() bool {
	if !l.countRead {
		l.countRead = true
		l.count, l.err = account.Count(l.buf)
	}
	return l.err == nil
}

// AccountCount reads the header. A malformed header reads as zero accounts
// and surfaces from Validate.
func (l *Lazy) AccountCount() int {
	if !l.readCount() {
		return 0
	}
	return l.count
}

// walk parses records until at least n are cached.
func (l *Lazy) walk(n int) error {
	for l.parsed < n {
		rec, next, err := account.Parse(l.buf, l.cursor, l.parsed, l.offsets[:l.parsed])
		if err != nil {
			l.err = err
			return err
		}
		l.offsets[l.parsed] = rec
		l.parsed++
		l.cursor = next
	}
	return nil
}

// Account returns the view at index i, walking forward to it if needed.
func (l *Lazy) Account(i int) (account.View, error) {
	if !l.readCount() {
		return account.View{}, l.err
	}
	if i < 0 || i >= l.count {
		return account.View{}, program.ErrOutOfRange
	}
	if i >= l.parsed {
		if l.err != nil {
			return account.View{}, l.err
		}
		if err := l.walk(i + 1); err != nil {
			return account.View{}, err
		}
	}
	return account.At(l.buf, l.offsets[i]), nil
}

// NextAccount returns the account after the one it returned last,
// starting at index 0.
func (l *Lazy) NextAccount() (account.View, error) {
	v, err := l.Account(l.next)
	if err != nil {
		return account.View{}, err
	}
	l.next++
	return v, nil
}

func (l *Lazy) readTrailer() bool {
	if l.trailer {
		return true
	}
	if !l.readCount() || l.err != nil || l.walk(l.count) != nil {
		return false
	}
	start, end, err := account.Trailer(l.buf, l.cursor)
	if err != nil {
		l.err = err
		return false
	}
	l.dataStart, l.dataEnd, l.trailer = start, end, true
	return true
}

// InstructionData returns the instruction payload. It walks every account
// record the first time it is called. A malformed buffer yields nil.
func (l *Lazy) InstructionData() []byte {
	if !l.readTrailer() {
		return nil
	}
	return l.buf[l.dataStart:l.dataEnd:l.dataEnd]
}

// ProgramID returns the id of the running program. A malformed buffer
// yields the zero key.
func (l *Lazy) ProgramID() *types.Pubkey {
	if !l.readTrailer() {
		return new(types.Pubkey)
	}
	return (*types.Pubkey)(l.buf[l.dataEnd : l.dataEnd+types.PubkeySize])
}

// Validate walks whatever has not been walked yet and reports whether the
// account count and instruction length fit the buffer.
func (l *Lazy) Validate() error {
	if !l.readTrailer() {
		return l.err
	}
	return nil
}

// Sys returns the host services for this call.
func (l *Lazy) Sys() syscall.Host { return l.sys }

// Log writes msg to the host log.
func (l *Lazy) Log(msg string) { syscall.Log(l.sys, msg) }

// LogBytes writes b to the host log.
func (l *Lazy) LogBytes(b []byte) { syscall.LogBytes(l.sys, b) }
