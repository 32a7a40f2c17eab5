// Package host runs native programs against an accounts database.
//
// The Executor plays the part of the on-chain runtime for one instruction:
// it loads the accounts an instruction names, serializes them into a Raw
// Call Buffer, hands the buffer to the program's entrypoint and, if the
// program succeeds and the result obeys the runtime's ownership rules,
// writes the changed accounts back in a single batch.
package host

import (
	"bytes"
	"context"
	"math/bits"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/abi"
	"github.com/fortiblox/X1-Cirrus/pkg/accounts"
	"github.com/fortiblox/X1-Cirrus/pkg/entrypoint"
	"github.com/fortiblox/X1-Cirrus/pkg/fixture"
	"github.com/fortiblox/X1-Cirrus/pkg/pda"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

// Executor errors. These describe instructions the host refused to run;
// a program failure is reported through Result.Status instead.
var (
	ErrProgramNotFound = errors.New("program not registered")
	ErrSeedsMismatch   = errors.New("signer seeds do not derive the account key")
)

// Config controls execution.
type Config struct {
	// ComputeBudget is the compute unit limit for each instruction.
	ComputeBudget uint64
}

// DefaultConfig returns the default execution settings.
func DefaultConfig() Config {
	return Config{ComputeBudget: syscall.CUDefault}
}

// AccountMeta names one account position of an instruction.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool

	// Seeds, when set, make the position a signer if they derive Pubkey
	// under SeedProgram. This stands in for invoke_signed.
	Seeds       [][]byte
	SeedProgram types.Pubkey
}

// Instruction is one program invocation.
type Instruction struct {
	// Name labels the call when it is captured. Optional.
	Name string

	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Result describes a completed invocation.
type Result struct {
	// Status is the code the host settled on. Zero is success.
	Status uint64

	// Err is Status as an error, nil on success.
	Err error

	Logs             []string
	ComputeUnitsUsed uint64
	ReturnData       []byte

	// Modified lists the accounts written back, sorted.
	Modified []types.Pubkey

	// DeltaHash commits to the post-state of Modified.
	DeltaHash types.Hash

	// Capture is the archive name of the call, if it was captured.
	Capture string
}

// Sink receives captured calls.
type Sink interface {
	Put(c fixture.Call) (string, error)
}

// Executor runs instructions against an accounts database.
type Executor struct {
	cfg Config
	db  accounts.DB
	log *logrus.Entry

	mu       sync.RWMutex
	programs map[types.Pubkey]entrypoint.Func
	sink     Sink

	// serializes Execute so load, run and commit see one consistent state
	execMu sync.Mutex
}

// NewExecutor creates an executor over db. A nil log uses the standard
// logger. A budget above syscall.CUMax is lowered to it.
func NewExecutor(cfg Config, db accounts.DB, log *logrus.Entry) *Executor {
	if log == nil {
		log = logrus.StandardLogger().WithField("component", "host")
	}
	if cfg.ComputeBudget == 0 {
		cfg.ComputeBudget = syscall.CUDefault
	}
	if cfg.ComputeBudget > syscall.CUMax {
		log.WithFields(logrus.Fields{
			"requested": cfg.ComputeBudget,
			"limit":     syscall.CUMax,
		}).Warn("compute budget lowered to the limit")
		cfg.ComputeBudget = syscall.CUMax
	}
	return &Executor{
		cfg:      cfg,
		db:       db,
		log:      log,
		programs: make(map[types.Pubkey]entrypoint.Func),
	}
}

// Config returns the settings the executor runs with.
func (e *Executor) Config() Config { return e.cfg }

// Register makes fn the entrypoint for id, replacing any earlier one.
func (e *Executor) Register(id types.Pubkey, fn entrypoint.Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs[id] = fn
}

// SetSink captures every subsequent call into s. A nil s stops capture.
func (e *Executor) SetSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = s
}

func (e *Executor) lookup(id types.Pubkey) (entrypoint.Func, Sink, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.programs[id]
	return fn, e.sink, ok
}

// Execute runs ix. The returned error is non-nil only when the host could
// not run the instruction at all; a program failure comes back as a Result
// with a non-zero Status and leaves the database untouched.
func (e *Executor) Execute(ctx context.Context, ix Instruction) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := e.log.WithFields(logrus.Fields{
		"type":    "host/execute",
		"program": ix.ProgramID.String(),
	})

	fn, sink, ok := e.lookup(ix.ProgramID)
	if !ok {
		return nil, errors.Wrapf(ErrProgramNotFound, "%s", ix.ProgramID)
	}

	e.execMu.Lock()
	defer e.execMu.Unlock()

	infos, err := e.load(ix)
	if err != nil {
		return nil, err
	}

	input, err := abi.Serialize(ix.ProgramID, infos, ix.Data)
	if err != nil {
		return nil, errors.Wrap(err, "serialize call")
	}
	var captured []byte
	if sink != nil {
		captured = bytes.Clone(input)
	}

	rec := syscall.NewRecorder(e.cfg.ComputeBudget)
	start := time.Now()
	status := fn(input, rec)
	elapsed := time.Since(start)
	if rec.Exceeded() {
		status = uint64(program.ErrComputeBudgetExceeded)
	}

	res := &Result{
		Status:           status,
		Logs:             rec.Logs(),
		ComputeUnitsUsed: rec.Meter().Consumed(),
	}
	if _, data := rec.ReturnData(); len(data) > 0 {
		res.ReturnData = data
	}

	if res.Status == program.Success {
		res.Status = uint64(verify(input, ix.ProgramID, infos))
	}
	if res.Status == program.Success {
		if err := e.commit(infos, res); err != nil {
			return nil, err
		}
	}
	res.Err = program.FromStatus(res.Status)

	if sink != nil {
		name, err := sink.Put(fixture.Call{
			Name:             ix.Name,
			ProgramID:        ix.ProgramID,
			Input:            captured,
			Status:           status,
			Logs:             res.Logs,
			ComputeUnitsUsed: res.ComputeUnitsUsed,
		})
		if err != nil {
			log.WithError(err).Warn("failure capturing call")
		} else {
			res.Capture = name
		}
	}

	log = log.WithFields(logrus.Fields{
		"status":   res.Status,
		"cu":       res.ComputeUnitsUsed,
		"modified": len(res.Modified),
		"elapsed":  elapsed,
	})
	if res.Err != nil {
		log.WithError(res.Err).Debug("instruction failed")
	} else {
		log.Debug("instruction succeeded")
	}
	return res, nil
}

// load builds one AccountInfo per position. Accounts missing from the
// database are presented as empty system accounts.
func (e *Executor) load(ix Instruction) ([]*abi.AccountInfo, error) {
	infos := make([]*abi.AccountInfo, len(ix.Accounts))
	cache := make(map[types.Pubkey]*accounts.Account, len(ix.Accounts))

	for i, meta := range ix.Accounts {
		acc, ok := cache[meta.Pubkey]
		if !ok {
			var err error
			acc, err = e.db.GetAccount(meta.Pubkey)
			if errors.Is(err, accounts.ErrAccountNotFound) {
				acc, err = accounts.Empty(), nil
			}
			if err != nil {
				return nil, errors.Wrapf(err, "load account %s", meta.Pubkey)
			}
			cache[meta.Pubkey] = acc
		}

		signer := meta.IsSigner
		if meta.Seeds != nil {
			seedProgram := meta.SeedProgram
			if seedProgram.IsZero() {
				seedProgram = ix.ProgramID
			}
			addr, err := pda.Create(meta.Seeds, &seedProgram)
			if err != nil || addr != meta.Pubkey {
				return nil, errors.Wrapf(ErrSeedsMismatch, "account %d (%s)", i, meta.Pubkey)
			}
			signer = true
		}

		infos[i] = &abi.AccountInfo{
			Key:        meta.Pubkey,
			Owner:      acc.Owner,
			Lamports:   acc.Lamports,
			Data:       bytes.Clone(acc.Data),
			Executable: acc.Executable,
			RentEpoch:  acc.RentEpoch,
			IsSigner:   signer,
			IsWritable: meta.IsWritable,
		}
	}
	return infos, nil
}

// verify applies the runtime's post-execution rules to a successful call.
func verify(input []byte, programID types.Pubkey, infos []*abi.AccountInfo) program.Error {
	touched, err := abi.ReadOnlyModified(input, infos)
	if err != nil {
		return program.ErrInvalidAccountData
	}
	if len(touched) > 0 {
		return program.ErrReadOnlyViolation
	}

	if err := abi.Deserialize(input, infos); err != nil {
		if errors.Is(err, abi.ErrInvalidRealloc) {
			return program.ErrInvalidRealloc
		}
		return program.ErrInvalidAccountData
	}

	var beforeHi, beforeLo, afterHi, afterLo uint64
	seen := make(map[types.Pubkey]bool, len(infos))
	for _, acc := range infos {
		if seen[acc.Key] {
			continue
		}
		seen[acc.Key] = true

		var carry uint64
		beforeLo, carry = bits.Add64(beforeLo, acc.OriginalLamports(), 0)
		beforeHi += carry
		afterLo, carry = bits.Add64(afterLo, acc.Lamports, 0)
		afterHi += carry

		if !acc.IsModified() {
			continue
		}
		owned := acc.OriginalOwner() == programID
		if acc.Executable {
			return program.ErrExecutableModified
		}
		if acc.Owner != acc.OriginalOwner() && (!owned || !zeroed(acc.Data)) {
			return program.ErrModifiedProgramID
		}
		if acc.DataChanged() && !owned {
			return program.ErrExternalDataModified
		}
		if acc.Lamports < acc.OriginalLamports() && !owned {
			return program.ErrExternalLamportSpend
		}
	}

	if beforeHi != afterHi || beforeLo != afterLo {
		return program.ErrUnbalancedInstruction
	}
	return 0
}

func zeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// commit writes the modified accounts back and fills in res.
func (e *Executor) commit(infos []*abi.AccountInfo, res *Result) error {
	keys := abi.FindModified(infos)
	if len(keys) == 0 {
		return nil
	}
	accounts.SortPubkeys(keys)

	byKey := make(map[types.Pubkey]*abi.AccountInfo, len(infos))
	for _, acc := range infos {
		if _, ok := byKey[acc.Key]; !ok {
			byKey[acc.Key] = acc
		}
	}

	entries := make([]accounts.Entry, 0, len(keys))
	for _, k := range keys {
		acc := byKey[k]
		entries = append(entries, accounts.Entry{
			Pubkey: k,
			Account: &accounts.Account{
				Lamports:   acc.Lamports,
				Data:       acc.Data,
				Owner:      acc.Owner,
				Executable: acc.Executable,
				RentEpoch:  acc.RentEpoch,
			},
		})
	}
	if err := e.db.Apply(entries); err != nil {
		return errors.Wrap(err, "commit accounts")
	}

	hash, err := accounts.ComputeDeltaHash(e.db, keys)
	if err != nil {
		return errors.Wrap(err, "compute delta hash")
	}
	res.Modified = keys
	res.DeltaHash = hash
	return nil
}

// Account returns the stored state of key, or nil if it does not exist.
func (e *Executor) Account(key types.Pubkey) (*accounts.Account, error) {
	acc, err := e.db.GetAccount(key)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, nil
	}
	return acc, err
}
