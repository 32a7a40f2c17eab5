package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/fortiblox/X1-Cirrus/internal/types"
)

// Key prefixes for BadgerDB storage.
var (
	// prefixAccount + pubkey (32 bytes) -> Account.Serialize()
	prefixAccount = []byte{0x01}

	// prefixMeta + name -> u64
	prefixMeta = []byte{0x02}

	metaVersion       = append(append([]byte{}, prefixMeta...), "version"...)
	metaAccountsCount = append(append([]byte{}, prefixMeta...), "count"...)
)

const accountKeySize = 1 + types.PubkeySize

// BadgerDBConfig contains configuration for BadgerDB.
type BadgerDBConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites syncs every commit to disk before Apply returns.
	SyncWrites bool

	// NumCompactors is the number of compaction workers.
	NumCompactors int

	// Log receives badger's own messages. Nil silences them.
	Log *logrus.Entry
}

// DefaultBadgerDBConfig returns default configuration.
func DefaultBadgerDBConfig(path string) BadgerDBConfig {
	return BadgerDBConfig{
		Path:          path,
		SyncWrites:    true,
		NumCompactors: 2,
	}
}

// BadgerDB is a DB on BadgerDB. Each Apply is one badger transaction, so
// an invocation's writes land together or not at all.
type BadgerDB struct {
	db *badger.DB

	version       atomic.Uint64
	accountsCount atomic.Uint64

	// mu serializes writers so the cached counters match disk.
	mu sync.Mutex

	closed atomic.Bool
}

// NewBadgerDB opens (or creates) a BadgerDB-backed accounts database.
func NewBadgerDB(cfg BadgerDBConfig) (*BadgerDB, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites)
	if cfg.NumCompactors > 0 {
		opts = opts.WithNumCompactors(cfg.NumCompactors)
	}
	if cfg.Log != nil {
		opts = opts.WithLogger(cfg.Log)
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	b := &BadgerDB{db: db}
	if err := b.loadMetadata(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return b, nil
}

func (b *BadgerDB) loadMetadata() error {
	return b.db.View(func(txn *badger.Txn) error {
		version, err := readUint64(txn, metaVersion)
		if err != nil {
			return err
		}
		count, err := readUint64(txn, metaAccountsCount)
		if err != nil {
			return err
		}
		b.version.Store(version)
		b.accountsCount.Store(count)
		return nil
	})
}

func readUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return ErrInvalidData
		}
		v = binary.LittleEndian.Uint64(val)
		return nil
	})
	return v, err
}

func accountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, accountKeySize)
	key[0] = prefixAccount[0]
	copy(key[1:], pubkey[:])
	return key
}

func (b *BadgerDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var account *Account
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(pubkey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			account, err = DeserializeAccount(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (b *BadgerDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		exists, err = hasKey(txn, accountKey(pubkey))
		return err
	})
	return exists, err
}

func hasKey(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// SetAccount stores one account outside of any Apply. It does not bump the
// version.
func (b *BadgerDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	return b.write([]Entry{{Pubkey: pubkey, Account: account}}, false)
}

func (b *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	return b.write([]Entry{{Pubkey: pubkey}}, false)
}

func (b *BadgerDB) Apply(entries []Entry) error {
	return b.write(entries, true)
}

// write commits entries and the updated counters in one transaction.
func (b *BadgerDB) write(entries []Entry, bump bool) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.accountsCount.Load()
	version := b.version.Load()
	if bump {
		version++
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			key := accountKey(e.Pubkey)
			exists, err := hasKey(txn, key)
			if err != nil {
				return err
			}

			if e.Account == nil || e.Account.IsZero() {
				if exists {
					if err := txn.Delete(key); err != nil {
						return err
					}
					count--
				}
				continue
			}

			if err := txn.Set(key, e.Account.Serialize()); err != nil {
				return err
			}
			if !exists {
				count++
			}
		}

		if err := txn.Set(metaAccountsCount, binary.LittleEndian.AppendUint64(nil, count)); err != nil {
			return err
		}
		return txn.Set(metaVersion, binary.LittleEndian.AppendUint64(nil, version))
	})
	if err != nil {
		return fmt.Errorf("commit accounts: %w", err)
	}

	b.accountsCount.Store(count)
	b.version.Store(version)
	return nil
}

// ForEach walks accounts in key order. Badger keys are the prefix plus the
// raw pubkey, so iteration order is ascending pubkey order.
func (b *BadgerDB) ForEach(fn func(pubkey types.Pubkey, account *Account) error) error {
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != accountKeySize {
				continue
			}
			var pubkey types.Pubkey
			copy(pubkey[:], key[1:])

			err := item.Value(func(val []byte) error {
				account, err := DeserializeAccount(val)
				if err != nil {
					return err
				}
				return fn(pubkey, account)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerDB) Version() uint64 {
	return b.version.Load()
}

func (b *BadgerDB) AccountsCount() (uint64, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	return b.accountsCount.Load(), nil
}

func (b *BadgerDB) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	return b.db.Close()
}

var _ DB = (*BadgerDB)(nil)
