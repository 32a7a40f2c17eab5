// Package pda derives and verifies program-derived addresses.
//
// An address is sha256(seeds || bump || program_id || "ProgramDerivedAddress").
// It is valid only if the 32 bytes do not decode to a point on the ed25519
// curve, so no private key exists for it. Derive scans bumps from 255 down
// to 1, as the host's try_find_program_address does, and returns the first
// off-curve candidate.
//
// Hashing uses a fixed scratch array on the stack; none of the functions in
// this package allocate.
package pda

import (
	"crypto/sha256"

	"github.com/jdgcs/ed25519/edwards25519"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/program"
)

// Limits enforced by the host's create_program_address.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32

	// Bump search range. Bump 0 is never tried.
	MaxBump = 255
	MinBump = 1
)

const marker = "ProgramDerivedAddress"

// scratchSize fits every seed at full length, the program id and the marker.
const scratchSize = MaxSeeds*MaxSeedLength + types.PubkeySize + len(marker)

// Errors. They are program.Error values so a handler can return them as is.
const (
	ErrMaxSeedLength = program.ErrMaxSeedLengthExceeded
	ErrOnCurve       = program.ErrInvalidSeeds
	ErrNoValidBump   = program.ErrNoValidBump
)

// Derive finds the highest bump for which seeds produce an off-curve
// address. The bump byte counts against MaxSeeds.
func Derive(seeds [][]byte, programID *types.Pubkey) (types.Pubkey, uint8, error) {
	if err := checkSeeds(seeds, 1); err != nil {
		return types.Pubkey{}, 0, err
	}
	return search(seeds, programID, OnCurve)
}

func search(seeds [][]byte, programID *types.Pubkey, onCurve func(*types.Pubkey) bool) (types.Pubkey, uint8, error) {
	for bump := MaxBump; bump >= MinBump; bump-- {
		b := uint8(bump)
		addr := hash(seeds, &b, programID)
		if !onCurve(&addr) {
			return addr, b, nil
		}
	}
	return types.Pubkey{}, 0, ErrNoValidBump
}

// Create computes the single candidate for seeds, which already include any
// bump, and rejects it with ErrOnCurve if it lies on the curve.
func Create(seeds [][]byte, programID *types.Pubkey) (types.Pubkey, error) {
	if err := checkSeeds(seeds, 0); err != nil {
		return types.Pubkey{}, err
	}
	addr := hash(seeds, nil, programID)
	if OnCurve(&addr) {
		return types.Pubkey{}, ErrOnCurve
	}
	return addr, nil
}

// CreateWithBump is Create with bump appended as the final seed.
func CreateWithBump(seeds [][]byte, bump uint8, programID *types.Pubkey) (types.Pubkey, error) {
	if err := checkSeeds(seeds, 1); err != nil {
		return types.Pubkey{}, err
	}
	addr := hash(seeds, &bump, programID)
	if OnCurve(&addr) {
		return types.Pubkey{}, ErrOnCurve
	}
	return addr, nil
}

// Verify reports whether claimed equals the address that seeds and bump
// produce for programID.
//
// Verify does NOT run the off-curve check. It is only sound when claimed was
// proven off-curve earlier, typically by the Derive or Create call that
// produced the stored bump. A program that verifies a bump read from an
// account it initialized itself satisfies this. A bump supplied by an
// untrusted caller does not; use CreateWithBump for those.
func Verify(seeds [][]byte, bump uint8, programID, claimed *types.Pubkey) bool {
	if checkSeeds(seeds, 1) != nil {
		return false
	}
	addr := hash(seeds, &bump, programID)
	return addr == *claimed
}

// OnCurve reports whether key decodes to a valid ed25519 point.
func OnCurve(key *types.Pubkey) bool {
	var p edwards25519.ExtendedGroupElement
	return p.FromBytes((*[32]byte)(key))
}

func checkSeeds(seeds [][]byte, extra int) error {
	if len(seeds)+extra > MaxSeeds {
		return ErrMaxSeedLength
	}
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return ErrMaxSeedLength
		}
	}
	return nil
}

// hash assumes checkSeeds passed. With a bump the seeds hold at most
// MaxSeeds-1 entries, so the bump byte always fits.
func hash(seeds [][]byte, bump *uint8, programID *types.Pubkey) types.Pubkey {
	var scratch [scratchSize]byte
	n := 0
	for _, s := range seeds {
		n += copy(scratch[n:], s)
	}
	if bump != nil {
		scratch[n] = *bump
		n++
	}
	n += copy(scratch[n:], programID[:])
	n += copy(scratch[n:], marker)
	return types.Pubkey(sha256.Sum256(scratch[:n]))
}

// Derived is an address together with the bump that produced it. Values
// outside this package come only from Find, so holding one means the
// address was checked off-curve.
type Derived struct {
	addr types.Pubkey
	bump uint8
}

// Find is Derive returning a Derived.
func Find(seeds [][]byte, programID *types.Pubkey) (Derived, error) {
	addr, bump, err := Derive(seeds, programID)
	if err != nil {
		return Derived{}, err
	}
	return Derived{addr: addr, bump: bump}, nil
}

// Address returns the derived address.
func (d Derived) Address() types.Pubkey { return d.addr }

// Bump returns the bump seed.
func (d Derived) Bump() uint8 { return d.bump }

// Matches reports whether claimed is d's address and seeds reproduce it
// for programID.
func (d Derived) Matches(seeds [][]byte, programID, claimed *types.Pubkey) bool {
	return *claimed == d.addr && Verify(seeds, d.bump, programID, claimed)
}

// Seeds returns seeds with the bump appended, the form signer seeds take.
func (d Derived) Seeds(seeds [][]byte) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{d.bump})
}
