package bitcoin

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// bufferPool holds serialization buffers; a genesis block is a few hundred bytes.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() < 64*1024 {
		bufferPool.Put(buf)
	}
}

// NewCoinbaseTx assembles the single genesis transaction: one input spending
// the null outpoint, one output paying value to outputScript.
func NewCoinbaseTx(inputScript, outputScript []byte, value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{},
			Index: wire.MaxPrevOutIndex,
		},
		SignatureScript: inputScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    value,
		PkScript: outputScript,
	})
	return tx
}

// EncodeTransaction serializes the coinbase transaction. The output is a pure
// function of the arguments.
func EncodeTransaction(inputScript, outputScript []byte, value int64) ([]byte, error) {
	return SerializeTx(NewCoinbaseTx(inputScript, outputScript, value))
}

// SerializeTx returns the legacy (non-witness) serialization of tx.
func SerializeTx(tx *wire.MsgTx) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := tx.SerializeNoWitness(buf); err != nil {
		return nil, fmt.Errorf("failed to serialize coinbase: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// TransactionSize is the serialized size for the given script lengths, valid
// while both scripts stay below 253 bytes (single byte varints).
func TransactionSize(inputScriptLen, outputScriptLen int) int {
	return 4 + 1 + 32 + 4 + 1 + inputScriptLen + 4 + 1 + 8 + 1 + outputScriptLen + 4
}

// MerkleRoot of a one transaction block is the double SHA-256 of that
// transaction, in natural byte order. Its String form is the reversed
// display order.
func MerkleRoot(tx []byte) chainhash.Hash {
	return chainhash.DoubleHashH(tx)
}
