package entrypoint

import (
	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/abi"
	"github.com/fortiblox/X1-Cirrus/pkg/account"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

// Context is an eagerly parsed call. Every account view, the instruction
// data and the program id are resolved before the handler runs.
type Context struct {
	accounts  [abi.MaxAccounts]account.View
	offsets   [abi.MaxAccounts]int
	count     int
	data      []byte
	programID *types.Pubkey
	sys       syscall.Host
}

// Parse walks the whole buffer and validates every bound.
func Parse(input []byte, sys syscall.Host) (*Context, error) {
	c := new(Context)
	if err := c.parse(input, sys); err != nil {
		return nil, err
	}
	return c, nil
}

// parse fills c from input. Views left over from an earlier call are only
// reachable below count, so c can be reused without clearing.
func (c *Context) parse(input []byte, sys syscall.Host) error {
	count, err := account.Count(input)
	if err != nil {
		return err
	}

	c.count, c.sys = 0, sys
	off := abi.CountSize
	for i := 0; i < count; i++ {
		rec, next, err := account.Parse(input, off, i, c.offsets[:i])
		if err != nil {
			return err
		}
		c.offsets[i] = rec
		c.accounts[i] = account.At(input, rec)
		c.count++
		off = next
	}

	start, end, err := account.Trailer(input, off)
	if err != nil {
		return err
	}
	c.data = input[start:end:end]
	c.programID = (*types.Pubkey)(input[end : end+types.PubkeySize])
	return nil
}

// release drops the references c holds into the last call's buffer.
func (c *Context) release() {
	clear(c.accounts[:c.count])
	c.count, c.data, c.programID, c.sys = 0, nil, nil, nil
}

// AccountCount returns the number of accounts in the call.
func (c *Context) AccountCount() int { return c.count }

// Account returns the view at index i, or ErrOutOfRange.
func (c *Context) Account(i int) (account.View, error) {
	if i < 0 || i >= c.count {
		return account.View{}, program.ErrOutOfRange
	}
	return c.accounts[i], nil
}

// Accounts returns all views in call order. Duplicates share a record.
func (c *Context) Accounts() []account.View { return c.accounts[:c.count] }

// InstructionData returns the instruction payload.
func (c *Context) InstructionData() []byte { return c.data }

// ProgramID returns the id of the running program.
func (c *Context) ProgramID() *types.Pubkey { return c.programID }

// Sys returns the host services for this call.
func (c *Context) Sys() syscall.Host { return c.sys }

// Log writes msg to the host log.
func (c *Context) Log(msg string) { syscall.Log(c.sys, msg) }

// LogBytes writes b to the host log.
func (c *Context) LogBytes(b []byte) { syscall.LogBytes(c.sys, b) }
