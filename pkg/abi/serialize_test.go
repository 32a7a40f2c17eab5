package abi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/fortiblox/X1-Cirrus/internal/types"
)

// TestAccountInfoMarkOriginal tests marking and detecting modifications.
func TestAccountInfoMarkOriginal(t *testing.T) {
	acc := &AccountInfo{
		Key:      types.Pubkey{1},
		Lamports: 1000,
		Data:     []byte{1, 2, 3},
	}

	acc.MarkOriginal()

	if acc.IsModified() {
		t.Error("Account should not be modified after MarkOriginal")
	}

	acc.Lamports = 2000
	if !acc.IsModified() {
		t.Error("Account should be modified after changing lamports")
	}

	acc.Lamports = 1000
	acc.Data[0] = 10
	if !acc.IsModified() {
		t.Error("Account should be modified after changing data")
	}

	acc.Data[0] = 1
	acc.Owner = types.Pubkey{9}
	if !acc.IsModified() {
		t.Error("Account should be modified after changing owner")
	}
}

func TestRecordSize(t *testing.T) {
	cases := []struct {
		dataLen int
		want    int
	}{
		{0, 88 + 10240 + 8},
		{1, 88 + 1 + 10240 + 7 + 8},
		{8, 88 + 8 + 10240 + 8},
		{13, 88 + 13 + 10240 + 3 + 8},
	}

	for _, tc := range cases {
		if got := RecordSize(tc.dataLen); got != tc.want {
			t.Errorf("RecordSize(%d) = %d, want %d", tc.dataLen, got, tc.want)
		}
		if RecordSize(tc.dataLen)%Alignment != 0 {
			t.Errorf("RecordSize(%d) is not aligned", tc.dataLen)
		}
	}
}

// TestSerializeInput tests the byte layout of a single-account buffer.
func TestSerializeInput(t *testing.T) {
	programID := types.Pubkey{1, 2, 3}
	accounts := []*AccountInfo{
		{
			Key:        types.Pubkey{10},
			Owner:      types.Pubkey{20},
			Lamports:   1000,
			Data:       []byte{1, 2, 3, 4},
			RentEpoch:  100,
			IsSigner:   true,
			IsWritable: true,
		},
	}
	data := []byte{0xAA, 0xBB}

	input, err := Serialize(programID, accounts, data)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	if want := 8 + RecordSize(4) + 8 + 2 + 32; len(input) != want {
		t.Fatalf("Input size = %d, want %d", len(input), want)
	}

	if n := binary.LittleEndian.Uint64(input); n != 1 {
		t.Errorf("num_accounts = %d, want 1", n)
	}

	rec := input[8:]
	if rec[OffsetDupMarker] != NonDupMarker {
		t.Errorf("dup marker = %#x, want %#x", rec[OffsetDupMarker], NonDupMarker)
	}
	if rec[OffsetIsSigner] != 1 || rec[OffsetIsWritable] != 1 || rec[OffsetIsExecutable] != 0 {
		t.Error("flags mismatch")
	}
	if got := binary.LittleEndian.Uint32(rec[OffsetOriginalDataLen:]); got != 4 {
		t.Errorf("original_data_len = %d, want 4", got)
	}
	if !bytes.Equal(rec[OffsetKey:OffsetKey+32], accounts[0].Key[:]) {
		t.Error("key mismatch")
	}
	if got := binary.LittleEndian.Uint64(rec[OffsetLamports:]); got != 1000 {
		t.Errorf("lamports = %d, want 1000", got)
	}
	if got := binary.LittleEndian.Uint64(rec[RentEpochOffset(4):]); got != 100 {
		t.Errorf("rent_epoch = %d, want 100", got)
	}

	tail := input[8+RecordSize(4):]
	if got := binary.LittleEndian.Uint64(tail); got != 2 {
		t.Errorf("instruction_data_len = %d, want 2", got)
	}
	if !bytes.Equal(tail[8:10], data) {
		t.Error("instruction data mismatch")
	}
	if !bytes.Equal(input[len(input)-32:], programID[:]) {
		t.Error("program id mismatch")
	}
}

func TestSerializeDuplicates(t *testing.T) {
	shared := types.Pubkey{7}
	accounts := []*AccountInfo{
		{Key: shared, Lamports: 5, IsWritable: false},
		{Key: types.Pubkey{8}, Lamports: 6},
		{Key: shared, Lamports: 5, IsSigner: true, IsWritable: true},
	}

	input, err := Serialize(types.Pubkey{}, accounts, nil)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	if want := 8 + 2*RecordSize(0) + DuplicateRecordSize + 8 + 32; len(input) != want {
		t.Fatalf("Input size = %d, want %d", len(input), want)
	}

	rec0 := input[8:]
	if rec0[OffsetIsSigner] != 1 || rec0[OffsetIsWritable] != 1 {
		t.Error("first occurrence should carry merged privileges")
	}

	dup := input[8+2*RecordSize(0):]
	if dup[0] != 0 {
		t.Errorf("duplicate marker = %d, want 0", dup[0])
	}
}

func TestSerializeLimits(t *testing.T) {
	if _, err := Serialize(types.Pubkey{}, nil, make([]byte, MaxInstructionDataSize+1)); err != ErrInstructionTooLarge {
		t.Errorf("oversized data error = %v, want %v", err, ErrInstructionTooLarge)
	}

	many := make([]*AccountInfo, MaxAccounts+1)
	for i := range many {
		many[i] = &AccountInfo{Key: types.Pubkey{byte(i), byte(i >> 8)}}
	}
	if _, err := Serialize(types.Pubkey{}, many, nil); err == nil {
		t.Error("expected error for too many accounts")
	}
}

// TestDeserializeOutput tests output deserialization.
func TestDeserializeOutput(t *testing.T) {
	accounts := []*AccountInfo{
		{
			Key:        types.Pubkey{10},
			Owner:      types.Pubkey{20},
			Lamports:   1000,
			Data:       []byte{1, 2, 3, 4},
			RentEpoch:  100,
			IsWritable: true,
		},
		{
			Key:      types.Pubkey{11},
			Lamports: 50,
		},
	}

	input, err := Serialize(types.Pubkey{1}, accounts, []byte{0xAA})
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	rec := input[8:]
	binary.LittleEndian.PutUint64(rec[OffsetLamports:], 2000)
	// Grow the data region into the realloc headroom.
	binary.LittleEndian.PutUint64(rec[OffsetDataLen:], 6)
	rec[OffsetData+4] = 5
	rec[OffsetData+5] = 6

	if err := Deserialize(input, accounts); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if accounts[0].Lamports != 2000 {
		t.Errorf("Lamports = %d, want 2000", accounts[0].Lamports)
	}
	if !bytes.Equal(accounts[0].Data, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Data = %v, want grown data", accounts[0].Data)
	}
	if accounts[1].Lamports != 50 {
		t.Error("read-only account should not be read back")
	}

	modified := FindModified(accounts)
	if len(modified) != 1 || modified[0] != accounts[0].Key {
		t.Errorf("FindModified = %v, want [%v]", modified, accounts[0].Key)
	}
}

func TestDeserializeReallocLimit(t *testing.T) {
	accounts := []*AccountInfo{{Key: types.Pubkey{1}, IsWritable: true}}
	input, err := Serialize(types.Pubkey{}, accounts, nil)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	binary.LittleEndian.PutUint64(input[8+OffsetDataLen:], MaxPermittedDataIncrease+1)
	if err := Deserialize(input, accounts); err == nil {
		t.Error("expected realloc limit error")
	}
}

func TestReadOnlyModified(t *testing.T) {
	accounts := []*AccountInfo{
		{Key: types.Pubkey{1}, Lamports: 10, Data: []byte{1}},
		{Key: types.Pubkey{2}, Lamports: 20, IsWritable: true},
	}
	input, err := Serialize(types.Pubkey{}, accounts, nil)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	modified, err := ReadOnlyModified(input, accounts)
	if err != nil {
		t.Fatalf("ReadOnlyModified failed: %v", err)
	}
	if len(modified) != 0 {
		t.Fatalf("unexpected modifications: %v", modified)
	}

	input[8+OffsetData] = 9
	modified, err = ReadOnlyModified(input, accounts)
	if err != nil {
		t.Fatalf("ReadOnlyModified failed: %v", err)
	}
	if len(modified) != 1 || modified[0] != accounts[0].Key {
		t.Errorf("ReadOnlyModified = %v, want [%v]", modified, accounts[0].Key)
	}
}

func TestDeserializeDuplicateMirrors(t *testing.T) {
	shared := types.Pubkey{3}
	accounts := []*AccountInfo{
		{Key: shared, Lamports: 1, IsWritable: true},
		{Key: shared, Lamports: 1},
	}
	input, err := Serialize(types.Pubkey{}, accounts, nil)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	binary.LittleEndian.PutUint64(input[8+OffsetLamports:], 77)
	if err := Deserialize(input, accounts); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if accounts[1].Lamports != 77 {
		t.Errorf("duplicate lamports = %d, want 77", accounts[1].Lamports)
	}
}
