package accounts

import (
	"crypto/sha256"
	"encoding/binary"
	"slices"

	"github.com/fortiblox/X1-Cirrus/internal/types"
)

// ComputeAccountHash hashes one account:
// SHA256(lamports || rent_epoch || data || executable || owner || pubkey).
// A nil account hashes to the zero hash.
func ComputeAccountHash(pubkey types.Pubkey, account *Account) types.Hash {
	if account == nil {
		return types.Hash{}
	}
	var word [8]byte
	h := sha256.New()
	binary.LittleEndian.PutUint64(word[:], account.Lamports)
	h.Write(word[:])
	binary.LittleEndian.PutUint64(word[:], account.RentEpoch)
	h.Write(word[:])
	h.Write(account.Data)
	if account.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(account.Owner[:])
	h.Write(pubkey[:])

	var out types.Hash
	h.Sum(out[:0])
	return out
}

// ComputeStateHash is the Merkle root over every account in db, in
// ascending pubkey order. Two DBs with the same accounts hash the same
// regardless of how they got there.
func ComputeStateHash(db DB) (types.Hash, error) {
	var hashes []types.Hash
	err := db.ForEach(func(pubkey types.Pubkey, account *Account) error {
		hashes = append(hashes, ComputeAccountHash(pubkey, account))
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeDeltaHash is the Merkle root over the given accounts, sorted by
// pubkey first. Deleted accounts contribute the zero hash.
func ComputeDeltaHash(db DB, pubkeys []types.Pubkey) (types.Hash, error) {
	if len(pubkeys) == 0 {
		return types.Hash{}, nil
	}
	sorted := slices.Clone(pubkeys)
	SortPubkeys(sorted)
	sorted = slices.Compact(sorted)

	hashes := make([]types.Hash, 0, len(sorted))
	for _, pubkey := range sorted {
		account, err := db.GetAccount(pubkey)
		if err == ErrAccountNotFound {
			hashes = append(hashes, types.Hash{})
			continue
		}
		if err != nil {
			return types.Hash{}, err
		}
		hashes = append(hashes, ComputeAccountHash(pubkey, account))
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeMerkleRoot builds a binary SHA256 tree over hashes.
//
//	leaf: SHA256(0x00 || hash)
//	node: SHA256(0x01 || left || right)
//
// An odd node at any level is paired with the zero hash.
func ComputeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(hashes))
	for i, h := range hashes {
		level[i] = leafHash(h)
	}
	for len(level) > 1 {
		next := level[:(len(level)+1)/2]
		for i := 0; i < len(level); i += 2 {
			var right types.Hash
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = nodeHash(level[i], right)
		}
		level = next
	}
	return level[0]
}

func leafHash(h types.Hash) types.Hash {
	var buf [1 + 32]byte
	copy(buf[1:], h[:])
	return sha256.Sum256(buf[:])
}

func nodeHash(left, right types.Hash) types.Hash {
	var buf [1 + 32 + 32]byte
	buf[0] = 0x01
	copy(buf[1:], left[:])
	copy(buf[33:], right[:])
	return sha256.Sum256(buf[:])
}

// SortPubkeys sorts pubkeys in ascending byte order.
func SortPubkeys(pubkeys []types.Pubkey) {
	slices.SortFunc(pubkeys, func(a, b types.Pubkey) int { return a.Compare(b) })
}
