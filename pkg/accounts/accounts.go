// Package accounts holds the host-side account state that program
// invocations read and write.
//
// The host loads every account an instruction names from a DB, serializes
// them into the call buffer, and after a successful call writes the changed
// ones back in a single Apply. A failed call writes nothing.
//
// Two implementations are provided:
//   - MemoryDB: a map guarded by a mutex, for tests and one-shot runs
//   - BadgerDB: persistent storage on github.com/dgraph-io/badger/v4
//
// Every Apply bumps the DB version, so callers can tell whether state moved
// between two reads.
package accounts

import (
	"encoding/binary"
	"errors"
	"slices"
	"sync"

	"github.com/fortiblox/X1-Cirrus/internal/types"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when a stored account is malformed.
	ErrInvalidData = errors.New("invalid account data")
)

// MaxDataSize is the largest account data the store accepts.
const MaxDataSize = 10 * 1024 * 1024

// encodedHeaderSize is lamports + data_len + owner + executable + rent_epoch.
const encodedHeaderSize = 8 + 8 + 32 + 1 + 8

// Account is the stored state of one account.
type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
}

// Empty returns the account the host substitutes for a key it has never
// stored: no lamports, no data, owned by the System Program.
func Empty() *Account {
	return &Account{Owner: types.SystemProgramAddr}
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = slices.Clone(a.Data)
	if c.Data == nil {
		c.Data = []byte{}
	}
	return &c
}

// IsZero reports whether the account has neither lamports nor data. Zero
// accounts are deleted instead of stored.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Size returns the encoded size of the account.
func (a *Account) Size() int {
	return encodedHeaderSize + len(a.Data)
}

// Serialize encodes the account for storage:
// lamports (8) | data_len (8) | data | owner (32) | executable (1) | rent_epoch (8).
func (a *Account) Serialize() []byte {
	buf := make([]byte, 0, a.Size())
	buf = binary.LittleEndian.AppendUint64(buf, a.Lamports)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(a.Data)))
	buf = append(buf, a.Data...)
	buf = append(buf, a.Owner[:]...)
	if a.Executable {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return binary.LittleEndian.AppendUint64(buf, a.RentEpoch)
}

// DeserializeAccount decodes an account written by Serialize. The returned
// account does not alias data.
func DeserializeAccount(data []byte) (*Account, error) {
	if len(data) < encodedHeaderSize {
		return nil, ErrInvalidData
	}
	dataLen := binary.LittleEndian.Uint64(data[8:])
	if dataLen > MaxDataSize || uint64(len(data)) != encodedHeaderSize+dataLen {
		return nil, ErrInvalidData
	}
	n := int(dataLen)
	rest := data[16+n:]

	acc := &Account{
		Lamports:   binary.LittleEndian.Uint64(data),
		Data:       slices.Clone(data[16 : 16+n]),
		Executable: rest[32] != 0,
		RentEpoch:  binary.LittleEndian.Uint64(rest[33:]),
	}
	if acc.Data == nil {
		acc.Data = []byte{}
	}
	copy(acc.Owner[:], rest[:32])
	return acc, nil
}

// Entry pairs a pubkey with its account. A nil or zero Account in an Apply
// deletes the key.
type Entry struct {
	Pubkey  types.Pubkey
	Account *Account
}

// DB is the accounts database interface.
// Implementations must be safe for concurrent use.
type DB interface {
	// GetAccount returns a copy of the stored account, or ErrAccountNotFound.
	GetAccount(pubkey types.Pubkey) (*Account, error)

	// HasAccount checks if an account exists.
	HasAccount(pubkey types.Pubkey) (bool, error)

	// SetAccount stores one account. Zero accounts are deleted.
	SetAccount(pubkey types.Pubkey, account *Account) error

	// DeleteAccount removes an account. Missing keys are not an error.
	DeleteAccount(pubkey types.Pubkey) error

	// Apply writes all entries atomically and bumps the version.
	Apply(entries []Entry) error

	// ForEach calls fn for every account in ascending pubkey order.
	// Returning an error from fn stops the walk.
	ForEach(fn func(pubkey types.Pubkey, account *Account) error) error

	// Version returns the number of Apply calls committed so far.
	Version() uint64

	// AccountsCount returns the number of stored accounts.
	AccountsCount() (uint64, error)

	// Close closes the database.
	Close() error
}

// MemoryDB is an in-memory DB.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*Account
	version  uint64
	closed   bool
}

// NewMemoryDB creates a new in-memory accounts database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*Account),
	}
}

func (m *MemoryDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	acc, ok := m.accounts[pubkey]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (m *MemoryDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.accounts[pubkey]
	return ok, nil
}

func (m *MemoryDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.putLocked(pubkey, account)
	return nil
}

func (m *MemoryDB) putLocked(pubkey types.Pubkey, account *Account) {
	if account == nil || account.IsZero() {
		delete(m.accounts, pubkey)
		return
	}
	m.accounts[pubkey] = account.Clone()
}

func (m *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.accounts, pubkey)
	return nil
}

func (m *MemoryDB) Apply(entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, e := range entries {
		m.putLocked(e.Pubkey, e.Account)
	}
	m.version++
	return nil
}

func (m *MemoryDB) ForEach(fn func(pubkey types.Pubkey, account *Account) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	entries := make([]Entry, 0, len(m.accounts))
	for k, v := range m.accounts {
		entries = append(entries, Entry{Pubkey: k, Account: v.Clone()})
	}
	m.mu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int { return a.Pubkey.Compare(b.Pubkey) })
	for _, e := range entries {
		if err := fn(e.Pubkey, e.Account); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDB) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *MemoryDB) AccountsCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.accounts)), nil
}

func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.accounts = nil
	return nil
}

var _ DB = (*MemoryDB)(nil)
