// Package bitcoin builds the byte-exact genesis block of a Bitcoin-family chain:
// coinbase scripts, the single coinbase transaction and its merkle root, the
// 80 byte header, and the compact bits/target/difficulty codec used to pick
// the proof-of-work target.
package bitcoin

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Params are the inputs of one genesis build. They are copied by value into
// every build so a retry cannot leak state into the next one.
type Params struct {
	Timestamp string
	PubKeyHex string
	Value     int64
	Time      uint32
	Bits      uint32
	Nonce     uint32
}

// Genesis is a fully assembled genesis candidate.
type Genesis struct {
	Params Params

	InputScript  []byte
	OutputScript []byte
	Tx           *wire.MsgTx
	TxBytes      []byte
	MerkleRoot   chainhash.Hash
	Header       Header
}

// Block returns the complete block with the header nonce set to nonce.
func (g *Genesis) Block(nonce uint32) *wire.MsgBlock {
	h := g.Header
	h.SetNonce(nonce)
	return &wire.MsgBlock{
		Header:       h.BlockHeader(),
		Transactions: []*wire.MsgTx{g.Tx},
	}
}

// BlockHex returns the serialized block, with nonce, as hex.
func (g *Genesis) BlockHex(nonce uint32) (string, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := g.Block(nonce).Serialize(buf); err != nil {
		return "", fmt.Errorf("failed to serialize block: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// GenesisService assembles genesis candidates. It is stateless apart from the
// network parameters used for address display, and safe for concurrent use.
type GenesisService struct {
	chainParams *chaincfg.Params
}

// NewGenesisService creates a service for the given network. A nil params
// value selects mainnet.
func NewGenesisService(chainParams *chaincfg.Params) *GenesisService {
	if chainParams == nil {
		chainParams = &chaincfg.MainNetParams
	}
	return &GenesisService{chainParams: chainParams}
}

// Build validates p and assembles scripts, transaction, merkle root and
// header. Validation failures leave nothing half built.
func (s *GenesisService) Build(p Params) (*Genesis, error) {
	inputScript, err := BuildInputScript(p.Timestamp)
	if err != nil {
		return nil, err
	}

	outputScript, err := BuildOutputScript(p.PubKeyHex)
	if err != nil {
		return nil, err
	}

	tx := NewCoinbaseTx(inputScript, outputScript, p.Value)
	txBytes, err := SerializeTx(tx)
	if err != nil {
		return nil, err
	}

	merkleRoot := MerkleRoot(txBytes)

	return &Genesis{
		Params:       p,
		InputScript:  inputScript,
		OutputScript: outputScript,
		Tx:           tx,
		TxBytes:      txBytes,
		MerkleRoot:   merkleRoot,
		Header:       EncodeHeader(merkleRoot, p.Time, p.Bits, p.Nonce),
	}, nil
}

// PubKeyAddress returns the display address for pubkeyHex on the service's network.
func (s *GenesisService) PubKeyAddress(pubkeyHex string) string {
	return PubKeyAddress(pubkeyHex, s.chainParams)
}

// NetworkName returns the name of the configured network.
func (s *GenesisService) NetworkName() string {
	return s.chainParams.Name
}

// Compile-time interface compliance check
var _ GenesisBuilder = (*GenesisService)(nil)
