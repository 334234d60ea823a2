package messaging

import "time"

// AttemptEvent is published when the driver starts searching a candidate
type AttemptEvent struct {
	RunID       string    `json:"run_id"`
	Attempt     uint64    `json:"attempt"`
	MerkleRoot  string    `json:"merkle_root"`
	Time        uint32    `json:"time"`
	Bits        string    `json:"bits"`
	StartNonce  uint32    `json:"start_nonce"`
	Workers     int       `json:"workers"`
	Timestamp   string    `json:"timestamp"`
	PubKey      string    `json:"pubkey"`
	Address     string    `json:"address,omitempty"`
	Value       int64     `json:"value"`
	PublishedAt time.Time `json:"published_at"`
}

// ProgressEvent is a telemetry tick from one worker
type ProgressEvent struct {
	RunID         string    `json:"run_id"`
	Worker        int       `json:"worker"`
	Nonce         uint32    `json:"nonce"`
	Hashrate      float64   `json:"hashrate"`
	EstimateHours *float64  `json:"estimate_hours,omitempty"` // nil when the hashrate is unknown
	ElapsedMs     float64   `json:"elapsed_ms"`
	PublishedAt   time.Time `json:"published_at"`
}

// ResultEvent is published when an attempt ends
type ResultEvent struct {
	RunID       string    `json:"run_id"`
	Attempt     uint64    `json:"attempt"`
	Status      string    `json:"status"` // "found" or "exhausted"
	MerkleRoot  string    `json:"merkle_root,omitempty"`
	Time        uint32    `json:"time"`
	Nonce       uint32    `json:"nonce"`
	Hash        string    `json:"hash,omitempty"`
	Hashes      uint64    `json:"hashes"`
	DurationMs  float64   `json:"duration_ms"`
	PublishedAt time.Time `json:"published_at"`
}
