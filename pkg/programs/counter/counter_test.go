package counter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/abi"
	"github.com/fortiblox/X1-Cirrus/pkg/entrypoint"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

var (
	authority = types.MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	stranger  = types.MustPubkeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

var entrypoints = []struct {
	name string
	fn   entrypoint.Func
}{
	{"eager", Entrypoint},
	{"lazy", EntrypointLazy},
}

// call serializes accounts, runs fn and reads the changes back.
func call(t *testing.T, fn entrypoint.Func, accounts []*abi.AccountInfo, data []byte) (uint64, *syscall.Recorder) {
	t.Helper()
	input, err := abi.Serialize(ProgramID, accounts, data)
	require.NoError(t, err)
	rec := syscall.NewRecorder(syscall.CUDefault)
	status := fn(input, rec)
	if status == program.Success {
		require.NoError(t, abi.Deserialize(input, accounts))
	}
	return status, rec
}

func fresh(t *testing.T, auth types.Pubkey) (counter, signer *abi.AccountInfo) {
	t.Helper()
	addr, _, err := Address(auth)
	require.NoError(t, err)
	counter = &abi.AccountInfo{
		Key:        addr,
		Owner:      ProgramID,
		Lamports:   1_000_000,
		Data:       make([]byte, Space),
		IsWritable: true,
	}
	signer = &abi.AccountInfo{Key: auth, Owner: types.SystemProgramAddr, IsSigner: true}
	return counter, signer
}

func initialized(t *testing.T, fn entrypoint.Func) (counter, signer *abi.AccountInfo) {
	t.Helper()
	counter, signer = fresh(t, authority)
	status, _ := call(t, fn, []*abi.AccountInfo{counter, signer}, InitializeData())
	require.Equal(t, program.Success, status)
	return counter, signer
}

func TestLayout(t *testing.T) {
	assert.Equal(t, 56, Space)
	assert.Equal(t, 8, counterLayout.count.Offset())
	assert.Equal(t, 16, counterLayout.authority.Offset())
	assert.Equal(t, 48, counterLayout.bump.Offset())
	assert.Equal(t, 56, counterLayout.label.Offset())
	assert.True(t, counterLayout.HasTail())
}

func TestInitialize(t *testing.T) {
	for _, ep := range entrypoints {
		t.Run(ep.name, func(t *testing.T) {
			counter, _ := initialized(t, ep.fn)

			st, err := Decode(counter.Data)
			require.NoError(t, err)
			_, bump, _ := Address(authority)
			assert.Equal(t, uint64(0), st.Count)
			assert.Equal(t, authority, st.Authority)
			assert.Equal(t, bump, st.Bump)
			assert.Empty(t, st.Label)
		})
	}
}

func TestInitializeRejects(t *testing.T) {
	t.Run("twice", func(t *testing.T) {
		counter, signer := initialized(t, Entrypoint)
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, InitializeData())
		assert.Equal(t, uint64(program.ErrAccountAlreadyInitialized), status)
	})

	t.Run("wrong address", func(t *testing.T) {
		counter, _ := fresh(t, authority)
		other := &abi.AccountInfo{Key: stranger, IsSigner: true}
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, other}, InitializeData())
		assert.Equal(t, uint64(program.ErrInvalidSeeds), status)
	})

	t.Run("not signed", func(t *testing.T) {
		counter, signer := fresh(t, authority)
		signer.IsSigner = false
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, InitializeData())
		assert.Equal(t, uint64(program.ErrMissingRequiredSignature), status)
	})

	t.Run("foreign owner", func(t *testing.T) {
		counter, signer := fresh(t, authority)
		counter.Owner = types.SystemProgramAddr
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, InitializeData())
		assert.Equal(t, uint64(program.ErrIllegalOwner), status)
	})

	t.Run("too small", func(t *testing.T) {
		counter, signer := fresh(t, authority)
		counter.Data = make([]byte, Space-1)
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, InitializeData())
		assert.Equal(t, uint64(program.ErrAccountDataTooSmall), status)
	})

	t.Run("missing accounts", func(t *testing.T) {
		counter, _ := fresh(t, authority)
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter}, InitializeData())
		assert.Equal(t, uint64(program.ErrOutOfRange), status)
	})
}

func TestIncrement(t *testing.T) {
	for _, ep := range entrypoints {
		t.Run(ep.name, func(t *testing.T) {
			counter, signer := initialized(t, ep.fn)

			status, rec := call(t, ep.fn, []*abi.AccountInfo{counter, signer}, IncrementData(5))
			require.Equal(t, program.Success, status)
			_, ret := rec.ReturnData()
			assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(ret))

			// A bare discriminator increments by one.
			status, _ = call(t, ep.fn, []*abi.AccountInfo{counter, signer}, []byte{InstructionIncrement})
			require.Equal(t, program.Success, status)

			st, err := Decode(counter.Data)
			require.NoError(t, err)
			assert.Equal(t, uint64(6), st.Count)
		})
	}
}

func TestIncrementRejects(t *testing.T) {
	t.Run("wrong authority", func(t *testing.T) {
		counter, _ := initialized(t, Entrypoint)
		other := &abi.AccountInfo{Key: stranger, IsSigner: true}
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, other}, IncrementData(1))
		assert.Equal(t, uint64(ErrWrongAuthority), status)
	})

	t.Run("uninitialized", func(t *testing.T) {
		counter, signer := fresh(t, authority)
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, IncrementData(1))
		assert.Equal(t, uint64(program.ErrUninitializedAccount), status)
	})

	t.Run("overflow", func(t *testing.T) {
		counter, signer := initialized(t, Entrypoint)
		binary.LittleEndian.PutUint64(counter.Data[8:], ^uint64(0))
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, IncrementData(1))
		assert.Equal(t, uint64(program.ErrArithmeticOverflow), status)
	})

	t.Run("tampered bump", func(t *testing.T) {
		counter, signer := initialized(t, Entrypoint)
		counter.Data[48]--
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, IncrementData(1))
		assert.Equal(t, uint64(program.ErrInvalidSeeds), status)
	})

	t.Run("read-only counter", func(t *testing.T) {
		counter, signer := initialized(t, Entrypoint)
		counter.IsWritable = false
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, IncrementData(1))
		assert.Equal(t, uint64(program.ErrReadOnlyViolation), status)
	})

	t.Run("unknown instruction", func(t *testing.T) {
		counter, signer := initialized(t, Entrypoint)
		status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer}, []byte{0x7f})
		assert.Equal(t, uint64(program.ErrUnknownDiscriminator), status)
	})
}

func TestWithdraw(t *testing.T) {
	counter, signer := initialized(t, EntrypointLazy)
	dest := &abi.AccountInfo{Key: stranger, Owner: types.SystemProgramAddr, IsWritable: true}

	status, _ := call(t, EntrypointLazy, []*abi.AccountInfo{counter, signer, dest}, WithdrawData(400_000))
	require.Equal(t, program.Success, status)
	assert.Equal(t, uint64(600_000), counter.Lamports)
	assert.Equal(t, uint64(400_000), dest.Lamports)

	status, _ = call(t, EntrypointLazy, []*abi.AccountInfo{counter, signer, dest}, WithdrawData(600_001))
	assert.Equal(t, uint64(program.ErrInsufficientFunds), status)

	status, _ = call(t, EntrypointLazy, []*abi.AccountInfo{counter, signer, dest}, []byte{InstructionWithdraw, 1})
	assert.Equal(t, uint64(program.ErrInvalidInstructionData), status)
}

func TestSetLabel(t *testing.T) {
	for _, ep := range entrypoints {
		t.Run(ep.name, func(t *testing.T) {
			counter, signer := initialized(t, ep.fn)

			status, _ := call(t, ep.fn, []*abi.AccountInfo{counter, signer}, SetLabelData("visits"))
			require.Equal(t, program.Success, status)
			require.Len(t, counter.Data, Space+len("visits"))

			st, err := Decode(counter.Data)
			require.NoError(t, err)
			assert.Equal(t, "visits", st.Label)

			status, _ = call(t, ep.fn, []*abi.AccountInfo{counter, signer}, SetLabelData("v"))
			require.Equal(t, program.Success, status)
			st, _ = Decode(counter.Data)
			assert.Equal(t, "v", st.Label)

			long := make([]byte, MaxLabel+1)
			status, _ = call(t, ep.fn, []*abi.AccountInfo{counter, signer}, SetLabelData(string(long)))
			assert.Equal(t, uint64(ErrLabelTooLong), status)
		})
	}
}

func TestClose(t *testing.T) {
	counter, signer := initialized(t, Entrypoint)
	dest := &abi.AccountInfo{Key: stranger, Owner: types.SystemProgramAddr, Lamports: 5, IsWritable: true}

	status, _ := call(t, Entrypoint, []*abi.AccountInfo{counter, signer, dest}, CloseData())
	require.Equal(t, program.Success, status)
	assert.Zero(t, counter.Lamports)
	assert.Empty(t, counter.Data)
	assert.Equal(t, uint64(1_000_005), dest.Lamports)

	counter, signer = initialized(t, Entrypoint)
	status, _ = call(t, Entrypoint, []*abi.AccountInfo{counter, signer, counter}, CloseData())
	assert.Equal(t, uint64(program.ErrInvalidArgument), status)
}

func TestDecodeRejectsForeignData(t *testing.T) {
	_, err := Decode(make([]byte, Space))
	assert.Equal(t, program.ErrInvalidAccountData, err)

	_, err = Decode(make([]byte, 8))
	assert.Equal(t, program.ErrAccountDataTooSmall, err)
}
