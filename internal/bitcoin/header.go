package bitcoin

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// HeaderSize is the serialized block header length.
	HeaderSize = wire.MaxBlockHeaderPayload

	// BlockVersion is the header version of the genesis block.
	BlockVersion int32 = 1

	merkleOffset = 36
	timeOffset   = 68
	bitsOffset   = 72
	nonceOffset  = 76
)

// Header is a serialized block header. The nonce lives at a fixed offset so
// the search can bump it in place.
type Header [HeaderSize]byte

// EncodeHeader serializes a version 1 header with a zero previous block hash.
func EncodeHeader(merkleRoot chainhash.Hash, blockTime, bits, nonce uint32) Header {
	bh := wire.BlockHeader{
		Version:    BlockVersion,
		PrevBlock:  chainhash.Hash{},
		MerkleRoot: merkleRoot,
		Timestamp:  time.Unix(int64(blockTime), 0),
		Bits:       bits,
		Nonce:      nonce,
	}

	var h Header
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	// writes to a bytes.Buffer cannot fail
	_ = bh.Serialize(buf)
	copy(h[:], buf.Bytes())
	return h
}

// SetNonce overwrites the nonce field.
func (h *Header) SetNonce(nonce uint32) {
	binary.LittleEndian.PutUint32(h[nonceOffset:], nonce)
}

// Nonce returns the nonce field.
func (h *Header) Nonce() uint32 {
	return binary.LittleEndian.Uint32(h[nonceOffset:])
}

// Time returns the timestamp field.
func (h *Header) Time() uint32 {
	return binary.LittleEndian.Uint32(h[timeOffset:])
}

// Bits returns the compact target field.
func (h *Header) Bits() uint32 {
	return binary.LittleEndian.Uint32(h[bitsOffset:])
}

// MerkleRoot returns the merkle root field.
func (h *Header) MerkleRoot() chainhash.Hash {
	var root chainhash.Hash
	copy(root[:], h[merkleOffset:timeOffset])
	return root
}

// Hash returns the double SHA-256 of the header in natural byte order.
func (h *Header) Hash() chainhash.Hash {
	return chainhash.DoubleHashH(h[:])
}

// BlockHeader decodes h back into its wire form.
func (h *Header) BlockHeader() wire.BlockHeader {
	var bh wire.BlockHeader
	// an 80 byte array always decodes
	_ = bh.Deserialize(bytes.NewReader(h[:]))
	return bh
}
