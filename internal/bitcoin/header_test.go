package bitcoin

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	genesisTime  uint32 = 1231006505
	genesisNonce uint32 = 2083236893
)

func TestEncodeHeader_MainNetGenesis(t *testing.T) {
	genesis := chaincfg.MainNetParams.GenesisBlock
	h := EncodeHeader(genesis.Header.MerkleRoot, genesisTime, MaxBits, genesisNonce)

	var want bytes.Buffer
	if err := genesis.Header.Serialize(&want); err != nil {
		t.Fatalf("Serialize() unexpected error: %v", err)
	}
	if !bytes.Equal(h[:], want.Bytes()) {
		t.Errorf("header mismatch\n got %x\nwant %x", h[:], want.Bytes())
	}

	if got := h.Hash(); got != *chaincfg.MainNetParams.GenesisHash {
		t.Errorf("Hash() = %s, want %s", got, chaincfg.MainNetParams.GenesisHash)
	}
}

func TestHeader_Fields(t *testing.T) {
	root := chainhash.DoubleHashH([]byte("root"))
	h := EncodeHeader(root, 1700000000, 0x1e0ffff0, 7)

	if len(h) != 80 {
		t.Fatalf("len(header) = %d, want 80", len(h))
	}
	if !bytes.Equal(h[:4], []byte{1, 0, 0, 0}) {
		t.Errorf("version = %x", h[:4])
	}
	if !bytes.Equal(h[4:36], make([]byte, 32)) {
		t.Error("previous block hash is not zero")
	}
	if h.MerkleRoot() != root {
		t.Errorf("MerkleRoot() = %s, want %s", h.MerkleRoot(), root)
	}
	if h.Time() != 1700000000 {
		t.Errorf("Time() = %d", h.Time())
	}
	if h.Bits() != 0x1e0ffff0 {
		t.Errorf("Bits() = 0x%08x", h.Bits())
	}
	if h.Nonce() != 7 {
		t.Errorf("Nonce() = %d", h.Nonce())
	}

	bh := h.BlockHeader()
	if bh.Timestamp.Unix() != 1700000000 || bh.Bits != 0x1e0ffff0 || bh.Nonce != 7 || bh.MerkleRoot != root {
		t.Errorf("BlockHeader() = %+v", bh)
	}
}

func TestHeader_SetNonceOnlyTouchesNonce(t *testing.T) {
	root := chainhash.DoubleHashH([]byte("root"))
	h := EncodeHeader(root, 1700000000, MaxBits, 0)
	before := h

	h.SetNonce(0xdeadbeef)

	if !bytes.Equal(h[:76], before[:76]) {
		t.Error("SetNonce() modified bytes outside the nonce field")
	}
	if !bytes.Equal(h[76:], []byte{0xef, 0xbe, 0xad, 0xde}) {
		t.Errorf("nonce bytes = %x", h[76:])
	}
	if h != EncodeHeader(root, 1700000000, MaxBits, 0xdeadbeef) {
		t.Error("SetNonce() result differs from a fresh encode")
	}
}

func TestDoubleSHA256MatchesChainhash(t *testing.T) {
	h := EncodeHeader(chaincfg.MainNetParams.GenesisBlock.Header.MerkleRoot, genesisTime, MaxBits, genesisNonce)

	got := DoubleSHA256(h[:])
	if chainhash.Hash(got) != chainhash.DoubleHashH(h[:]) {
		t.Errorf("%s DoubleSHA256() disagrees with chainhash", HashImplementationName())
	}
}
