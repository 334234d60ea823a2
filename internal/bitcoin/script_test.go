package bitcoin

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/satoshiware/genesis/pkg/errors"
)

const (
	testTimestamp = "The Times 03/Jan/2009 Chancellor on brink of second bailout for banks"
	testPubKey    = "04678afdb0fe5548271967f1a67130b7105cd6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf11d5f"
)

func TestBuildInputScript(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		wantErr    error
		wantPush1  bool
		wantScript int
	}{
		{name: "15 bytes rejected", length: 15, wantErr: ErrTimestampTooShort},
		{name: "16 bytes accepted", length: 16, wantScript: 7 + 1 + 16},
		{name: "75 bytes single length byte", length: 75, wantScript: 7 + 1 + 75},
		{name: "76 bytes uses OP_PUSHDATA1", length: 76, wantPush1: true, wantScript: 7 + 2 + 76},
		{name: "91 bytes accepted", length: 91, wantPush1: true, wantScript: 7 + 2 + 91},
		{name: "92 bytes rejected", length: 92, wantErr: ErrTimestampTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timestamp := strings.Repeat("x", tt.length)
			script, err := BuildInputScript(timestamp)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("BuildInputScript() error = %v, want %v", err, tt.wantErr)
				}
				if script != nil {
					t.Error("BuildInputScript() returned a script alongside an error")
				}
				if got := errors.GetContext(err)["length"]; got != tt.length {
					t.Errorf("error context length = %v, want %d", got, tt.length)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildInputScript() unexpected error: %v", err)
			}

			if len(script) != tt.wantScript {
				t.Errorf("len(script) = %d, want %d", len(script), tt.wantScript)
			}
			if !bytes.Equal(script[:7], []byte{0x04, 0xff, 0xff, 0x00, 0x1d, 0x01, 0x04}) {
				t.Errorf("prefix = %x", script[:7])
			}

			lengthAt := 7
			if tt.wantPush1 {
				if script[7] != txscript.OP_PUSHDATA1 {
					t.Errorf("script[7] = 0x%02x, want OP_PUSHDATA1", script[7])
				}
				lengthAt = 8
			} else if script[7] == txscript.OP_PUSHDATA1 {
				t.Error("unexpected OP_PUSHDATA1 marker")
			}
			if int(script[lengthAt]) != tt.length {
				t.Errorf("length byte = %d, want %d", script[lengthAt], tt.length)
			}
			if string(script[lengthAt+1:]) != timestamp {
				t.Error("timestamp bytes not copied verbatim")
			}
		})
	}
}

func TestBuildInputScript_CountsBytesNotRunes(t *testing.T) {
	// 8 runes, 16 bytes
	timestamp := strings.Repeat("é", 8)
	script, err := BuildInputScript(timestamp)
	if err != nil {
		t.Fatalf("BuildInputScript() unexpected error: %v", err)
	}
	if script[7] != 16 {
		t.Errorf("length byte = %d, want 16", script[7])
	}
}

func TestBuildOutputScript(t *testing.T) {
	script, err := BuildOutputScript(testPubKey)
	if err != nil {
		t.Fatalf("BuildOutputScript() unexpected error: %v", err)
	}

	if len(script) != 67 {
		t.Fatalf("len(script) = %d, want 67", len(script))
	}
	if script[0] != 0x41 {
		t.Errorf("script[0] = 0x%02x, want 0x41", script[0])
	}
	if script[66] != txscript.OP_CHECKSIG {
		t.Errorf("script[66] = 0x%02x, want OP_CHECKSIG", script[66])
	}

	class := txscript.GetScriptClass(script)
	if class != txscript.PubKeyTy {
		t.Errorf("script class = %v, want pubkey", class)
	}
}

func TestBuildOutputScript_InvalidPubKey(t *testing.T) {
	tests := []struct {
		name   string
		pubkey string
	}{
		{"empty", ""},
		{"not hex", strings.Repeat("zz", 65)},
		{"odd length", testPubKey[:129]},
		{"compressed key", "02" + strings.Repeat("11", 32)},
		{"too long", testPubKey + "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := BuildOutputScript(tt.pubkey)
			if !errors.Is(err, ErrInvalidPubKey) {
				t.Errorf("BuildOutputScript() error = %v, want ErrInvalidPubKey", err)
			}
			if script != nil {
				t.Error("BuildOutputScript() returned a script alongside an error")
			}
		})
	}
}

func TestPubKeyAddress(t *testing.T) {
	if got := PubKeyAddress(testPubKey, &chaincfg.MainNetParams); got != "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa" {
		t.Errorf("PubKeyAddress() = %q", got)
	}

	// right length, not on the curve
	offCurve := "04" + strings.Repeat("00", 64)
	if got := PubKeyAddress(offCurve, &chaincfg.MainNetParams); got != "" {
		t.Errorf("PubKeyAddress(off curve) = %q, want empty", got)
	}
	if got := PubKeyAddress("nope", &chaincfg.MainNetParams); got != "" {
		t.Errorf("PubKeyAddress(invalid) = %q, want empty", got)
	}
}
