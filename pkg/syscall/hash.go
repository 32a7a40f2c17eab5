package syscall

import (
	"crypto/sha256"
	"hash"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/pda"
)

// Sha256 hashes the concatenation of parts, charging the sol_sha256 cost.
func Sha256(h Host, parts ...[]byte) (types.Hash, error) {
	return digest(h, sha256.New(), CUSha256Base, CUSha256PerByte, parts)
}

// Keccak256 hashes the concatenation of parts with legacy Keccak-256.
func Keccak256(h Host, parts ...[]byte) (types.Hash, error) {
	return digest(h, sha3.NewLegacyKeccak256(), CUKeccak256Base, CUKeccak256PerByte, parts)
}

// Blake3 hashes the concatenation of parts with BLAKE3-256.
func Blake3(h Host, parts ...[]byte) (types.Hash, error) {
	return digest(h, blake3.New(), CUBlake3Base, CUBlake3PerByte, parts)
}

func digest(h Host, hasher hash.Hash, base, perByte uint64, parts [][]byte) (types.Hash, error) {
	var out types.Hash
	if len(parts) > MaxHashSlices {
		return out, ErrInvalidArgument
	}
	if err := h.ConsumeCU(base); err != nil {
		return out, err
	}
	for _, p := range parts {
		if err := h.ConsumeCU(perByte * uint64(len(p))); err != nil {
			return out, err
		}
		hasher.Write(p)
	}
	hasher.Sum(out[:0])
	return out, nil
}

// CreateProgramAddress is pda.Create charged at the sol_create_program_address
// cost.
func CreateProgramAddress(h Host, seeds [][]byte, programID *types.Pubkey) (types.Pubkey, error) {
	if err := h.ConsumeCU(CUCreatePDA); err != nil {
		return types.Pubkey{}, err
	}
	return pda.Create(seeds, programID)
}

// FindProgramAddress is pda.Derive charged per candidate bump, the way
// sol_try_find_program_address is billed.
func FindProgramAddress(h Host, seeds [][]byte, programID *types.Pubkey) (types.Pubkey, uint8, error) {
	for bump := pda.MaxBump; bump >= pda.MinBump; bump-- {
		if err := h.ConsumeCU(CUFindPDA); err != nil {
			return types.Pubkey{}, 0, err
		}
		addr, err := pda.CreateWithBump(seeds, uint8(bump), programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if err != pda.ErrOnCurve {
			return types.Pubkey{}, 0, err
		}
	}
	return types.Pubkey{}, 0, pda.ErrNoValidBump
}
