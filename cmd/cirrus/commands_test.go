package main

import (
	"bytes"
	"testing"

	"github.com/fortiblox/X1-Cirrus/internal/types"
	"github.com/fortiblox/X1-Cirrus/pkg/programs/counter"
)

func TestParseSeed(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"counter", []byte("counter")},
		{"hex:00ff", []byte{0x00, 0xff}},
		{"u8:255", []byte{255}},
		{"key:11111111111111111111111111111111", make([]byte, 32)},
		{"", []byte{}},
	}
	for _, tt := range tests {
		got, err := parseSeed(tt.in)
		if err != nil {
			t.Errorf("parseSeed(%q) failed: %v", tt.in, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("parseSeed(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"hex:zz", "u8:256", "key:0OIl"} {
		if _, err := parseSeed(bad); err == nil {
			t.Errorf("parseSeed(%q) should fail", bad)
		}
	}
}

func TestParseHash(t *testing.T) {
	want := types.ComputeHash([]byte("state"))
	for _, in := range []string{want.String(), "hex:" + want.Hex()} {
		got, err := parseHash(in)
		if err != nil {
			t.Errorf("parseHash(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseHash(%q) = %s, want %s", in, got, want)
		}
	}

	for _, bad := range []string{"hex:00", "11111", "0OIl"} {
		if _, err := parseHash(bad); err == nil {
			t.Errorf("parseHash(%q) should fail", bad)
		}
	}
}

func TestResolveProgram(t *testing.T) {
	id, err := resolveProgram("counter")
	if err != nil || id != counter.ProgramID {
		t.Errorf("resolveProgram(counter) = %s, %v", id, err)
	}
	id, err = resolveProgram(counter.ProgramID.String())
	if err != nil || id != counter.ProgramID {
		t.Errorf("resolveProgram(base58) = %s, %v", id, err)
	}
	if _, err := resolveProgram("nope!"); err == nil {
		t.Error("unknown program should fail")
	}

	b, ok := builtinByID(counter.ProgramID)
	if !ok || b.name != "counter" {
		t.Errorf("builtinByID = %+v, %v", b, ok)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if config.ComputeBudget != defaultConfig.ComputeBudget || config.LogLevel != "info" {
		t.Errorf("unexpected defaults %+v", config)
	}
	if err := configureLogger(Config{LogLevel: "info", LogFormat: "xml"}); err == nil {
		t.Error("unknown log format should fail")
	}
}

func TestBudgetLimits(t *testing.T) {
	t.Setenv("CIRRUS_COMPUTE_BUDGET", "2000000")
	if _, err := loadConfig(""); err == nil {
		t.Error("budget above the limit should be rejected")
	}
	t.Setenv("CIRRUS_COMPUTE_BUDGET", "1400000")
	config, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if config.ComputeBudget != 1_400_000 {
		t.Errorf("ComputeBudget = %d", config.ComputeBudget)
	}

	for _, budget := range []uint64{0, 1_400_001} {
		if err := checkBudget(budget); err == nil {
			t.Errorf("checkBudget(%d) should fail", budget)
		}
	}

	config.ComputeBudget = 5_000_000
	config.StateDir = ""
	if _, err := openWorld(config, false); err == nil {
		t.Error("openWorld should refuse a budget from flags above the limit")
	}
}
