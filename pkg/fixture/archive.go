// Package fixture records program invocations and replays them.
//
// An Archive is a BoltDB file. Every captured call keeps the exact call
// buffer the host built, compressed with zstd, together with the status and
// logs the program produced. Replaying a call feeds a fresh copy of that
// buffer to an entrypoint and checks that the status is unchanged, so a
// captured session doubles as a regression suite.
package fixture

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/entrypoint"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
	"github.com/fortiblox/X1-Cirrus/pkg/syscall"
)

var (
	// ErrNotFound is returned when no call is stored under a name.
	ErrNotFound = errors.New("fixture not found")

	// ErrStatusMismatch is returned by Replay when the program's status
	// differs from the recorded one.
	ErrStatusMismatch = errors.New("replayed status differs from recorded status")

	// ErrClosed is returned when operating on a closed archive.
	ErrClosed = errors.New("archive closed")
)

// Bucket names.
var (
	bucketCalls = []byte("calls")
	bucketMeta  = []byte("meta")
)

var keySchema = []byte("schema")

const schemaVersion = 1

// Call is one captured invocation.
type Call struct {
	// Name identifies the call in the archive. Put assigns one if empty.
	Name string

	ProgramID types.Pubkey

	// Input is the call buffer as the host serialized it, before the
	// program ran.
	Input []byte

	// Status is what the entrypoint returned, before any check the host
	// applies afterwards.
	Status           uint64
	Logs             []string
	ComputeUnitsUsed uint64
	Recorded         time.Time
}

// stored is the on-disk form of a Call.
type stored struct {
	ProgramID        types.Pubkey
	Input            []byte // zstd
	Status           uint64
	Logs             []string
	ComputeUnitsUsed uint64
	Recorded         time.Time
}

// Archive is a BoltDB-backed store of captured calls.
type Archive struct {
	db  *bolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open creates or opens an archive at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create archive directory")
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCalls, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keySchema); v != nil && !bytes.Equal(v, []byte{schemaVersion}) {
			return errors.Errorf("unsupported archive schema %v", v)
		}
		return meta.Put(keySchema, []byte{schemaVersion})
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, errors.Wrap(err, "create zstd decoder")
	}

	return &Archive{db: db, enc: enc, dec: dec}, nil
}

// Put stores c and returns the name it was stored under. An existing call
// with the same name is replaced.
func (a *Archive) Put(c Call) (string, error) {
	if a.db == nil {
		return "", ErrClosed
	}
	if c.Recorded.IsZero() {
		c.Recorded = time.Now().UTC()
	}

	rec := stored{
		ProgramID:        c.ProgramID,
		Input:            a.enc.EncodeAll(c.Input, nil),
		Status:           c.Status,
		Logs:             c.Logs,
		ComputeUnitsUsed: c.ComputeUnitsUsed,
		Recorded:         c.Recorded,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return "", errors.Wrap(err, "encode call")
	}

	name := c.Name
	err := a.db.Update(func(tx *bolt.Tx) error {
		calls := tx.Bucket(bucketCalls)
		if name == "" {
			seq, err := calls.NextSequence()
			if err != nil {
				return err
			}
			name = fmt.Sprintf("%s-%06d", c.ProgramID.String()[:8], seq)
		}
		return calls.Put([]byte(name), buf.Bytes())
	})
	if err != nil {
		return "", errors.Wrapf(err, "store call %q", name)
	}
	return name, nil
}

// Get loads the call stored under name.
func (a *Archive) Get(name string) (*Call, error) {
	if a.db == nil {
		return nil, ErrClosed
	}

	var raw []byte
	err := a.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCalls).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		raw = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get %q", name)
	}

	var rec stored
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, errors.Wrapf(err, "decode %q", name)
	}
	input, err := a.dec.DecodeAll(rec.Input, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %q", name)
	}

	return &Call{
		Name:             name,
		ProgramID:        rec.ProgramID,
		Input:            input,
		Status:           rec.Status,
		Logs:             rec.Logs,
		ComputeUnitsUsed: rec.ComputeUnitsUsed,
		Recorded:         rec.Recorded,
	}, nil
}

// List returns the names of all stored calls in byte order.
func (a *Archive) List() ([]string, error) {
	if a.db == nil {
		return nil, ErrClosed
	}
	var names []string
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCalls).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, errors.Wrap(err, "list calls")
}

// Delete removes the call stored under name.
func (a *Archive) Delete(name string) error {
	if a.db == nil {
		return ErrClosed
	}
	return errors.Wrapf(a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCalls).Delete([]byte(name))
	}), "delete %q", name)
}

// Replay runs fn on a fresh copy of the recorded buffer and returns the
// status it produced. It fails with ErrStatusMismatch when that status
// differs from the recorded one.
func (a *Archive) Replay(name string, fn entrypoint.Func, budget uint64) (uint64, error) {
	c, err := a.Get(name)
	if err != nil {
		return 0, err
	}
	rec := syscall.NewRecorder(budget)
	status := fn(bytes.Clone(c.Input), rec)
	if rec.Exceeded() {
		status = uint64(program.ErrComputeBudgetExceeded)
	}
	if status != c.Status {
		return status, errors.Wrapf(ErrStatusMismatch, "%s: recorded %#x, replayed %#x", name, c.Status, status)
	}
	return status, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.db == nil {
		return ErrClosed
	}
	a.enc.Close()
	a.dec.Close()
	err := a.db.Close()
	a.db = nil
	return err
}
