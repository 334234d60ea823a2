package mining

import (
	"context"
	"time"
)

// Checkpoint records how far a search got so an interrupted run can resume.
// It is keyed by merkle root and bits: the merkle root pins timestamp, key
// and value, and bits pins the target.
type Checkpoint struct {
	MerkleRoot string    `json:"merkle_root"`
	Bits       uint32    `json:"bits"`
	Time       uint32    `json:"time"`
	Nonce      uint32    `json:"nonce"`
	Attempts   uint64    `json:"attempts"`
	Found      bool      `json:"found"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CheckpointStore persists checkpoints. LoadCheckpoint returns nil, nil when
// nothing is stored for the key.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	LoadCheckpoint(ctx context.Context, merkleRoot string, bits uint32) (*Checkpoint, error)
}
