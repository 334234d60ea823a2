package bitcoin

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/satoshiware/genesis/pkg/errors"
)

const (
	// MinTimestampLen and MaxTimestampLen bound the coinbase message in bytes.
	MinTimestampLen = 16
	MaxTimestampLen = 91

	// PubKeyLen is the size of an uncompressed secp256k1 public key.
	PubKeyLen = 65
)

// coinbasePrefix pushes 486604799 (0x1d00ffff) and the number 4, exactly as
// Bitcoin's genesis coinbase does.
var coinbasePrefix = []byte{0x04, 0xff, 0xff, 0x00, 0x1d, 0x01, 0x04}

var (
	// ErrTimestampTooLong is returned for coinbase messages over MaxTimestampLen bytes.
	ErrTimestampTooLong = errors.New(errors.ErrorTypeValidation, "build_input_script", "timestamp too long")
	// ErrTimestampTooShort is returned for coinbase messages under MinTimestampLen bytes.
	ErrTimestampTooShort = errors.New(errors.ErrorTypeValidation, "build_input_script", "timestamp too short")
	// ErrInvalidPubKey is returned when the pubkey is not 65 hex-encoded bytes.
	ErrInvalidPubKey = errors.New(errors.ErrorTypeValidation, "build_output_script", "pubkey must be 65 hex encoded bytes")
)

// ValidateTimestamp checks the coinbase message length in bytes.
func ValidateTimestamp(timestamp string) error {
	n := len(timestamp)
	switch {
	case n > MaxTimestampLen:
		return ErrTimestampTooLong.Clone().
			WithContext("length", n).
			WithContext("max", MaxTimestampLen)
	case n < MinTimestampLen:
		return ErrTimestampTooShort.Clone().
			WithContext("length", n).
			WithContext("min", MinTimestampLen)
	}
	return nil
}

// BuildInputScript returns the coinbase signature script embedding timestamp.
// Messages longer than 75 bytes get an OP_PUSHDATA1 push.
func BuildInputScript(timestamp string) ([]byte, error) {
	if err := ValidateTimestamp(timestamp); err != nil {
		return nil, err
	}

	return txscript.NewScriptBuilder().
		AddOps(coinbasePrefix).
		AddData([]byte(timestamp)).
		Script()
}

// DecodePubKey decodes and length-checks a hex public key.
func DecodePubKey(pubkeyHex string) ([]byte, error) {
	pubkey, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, ErrInvalidPubKey.Operation, ErrInvalidPubKey.Message)
	}
	if len(pubkey) != PubKeyLen {
		return nil, ErrInvalidPubKey.Clone().WithContext("length", len(pubkey))
	}
	return pubkey, nil
}

// BuildOutputScript returns the pay-to-pubkey script <pubkey> OP_CHECKSIG.
func BuildOutputScript(pubkeyHex string) ([]byte, error) {
	pubkey, err := DecodePubKey(pubkeyHex)
	if err != nil {
		return nil, err
	}

	return txscript.NewScriptBuilder().
		AddData(pubkey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// PubKeyAddress returns the P2PKH address of pubkey on the given network, or
// an empty string when the key is not a valid curve point. Display only.
func PubKeyAddress(pubkeyHex string, params *chaincfg.Params) string {
	pubkey, err := DecodePubKey(pubkeyHex)
	if err != nil {
		return ""
	}
	addr, err := btcutil.NewAddressPubKey(pubkey, params)
	if err != nil {
		return ""
	}
	return addr.AddressPubKeyHash().EncodeAddress()
}
