// Package mining searches the nonce space of a genesis header and drives the
// rebuild-and-retry loop around that search.
package mining

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/satoshiware/genesis/internal/bitcoin"
)

const (
	// MaxNonce is the last nonce of the search space.
	MaxNonce = math.MaxUint32

	// ProgressInterval is the number of nonces between telemetry ticks. A
	// tick fires when nonce%ProgressInterval == ProgressInterval-1.
	ProgressInterval = 1_000_000

	// cancelMask bounds how many nonces run between context checks.
	cancelMask = 1<<16 - 1
)

// Status is the terminal state of one search.
type Status int

const (
	// StatusSearching means the search stopped early (cancellation).
	StatusSearching Status = iota
	// StatusFound means Nonce produced a hash below the target.
	StatusFound
	// StatusExhausted means every nonce up to MaxNonce was tried.
	StatusExhausted
)

// String returns string representation of the status
func (s Status) String() string {
	switch s {
	case StatusSearching:
		return "searching"
	case StatusFound:
		return "found"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is the outcome of a search. Nonce is the winning nonce when Found,
// otherwise the last nonce tried. Hash is in natural byte order.
type Result struct {
	Status Status
	Nonce  uint32
	Hash   chainhash.Hash
	Hashes uint64
}

// Progress is one telemetry tick.
type Progress struct {
	Worker        int
	Nonce         uint32
	Hashrate      float64
	EstimateHours float64
	Elapsed       time.Duration
}

// ProgressReporter receives telemetry ticks from the hot loop. Calls come
// from search goroutines and must not block for long.
type ProgressReporter interface {
	ReportProgress(p Progress)
}

// NonceSearcher searches a header's nonce space from startNonce upwards.
type NonceSearcher interface {
	Run(ctx context.Context, header bitcoin.Header, startNonce uint32, target *big.Int) (Result, error)
}

// Searcher is the sequential proof-of-work search.
type Searcher struct {
	reporter ProgressReporter
	now      func() time.Time
}

// NewSearcher creates a searcher. reporter may be nil.
func NewSearcher(reporter ProgressReporter) *Searcher {
	return &Searcher{
		reporter: reporter,
		now:      time.Now,
	}
}

// Run tries nonces startNonce, startNonce+1, ... MaxNonce in order and returns
// the first whose reversed double SHA-256 is below target. The context is
// checked every 65536 nonces and on every telemetry tick; on cancellation the
// result carries the last nonce tried together with ctx.Err().
func (s *Searcher) Run(ctx context.Context, header bitcoin.Header, startNonce uint32, target *big.Int) (Result, error) {
	targetBytes, err := bitcoin.TargetBytes(target)
	if err != nil {
		return Result{Nonce: startNonce}, err
	}
	return s.searchRange(ctx, 0, header, startNonce, MaxNonce, &targetBytes, target)
}

// searchRange searches [first, last]. header is a copy; only its nonce field
// is written.
func (s *Searcher) searchRange(ctx context.Context, worker int, header bitcoin.Header, first, last uint32, target *[32]byte, bigTarget *big.Int) (Result, error) {
	lastReport := s.now()
	nonce := first

	for {
		header.SetNonce(nonce)
		digest := bitcoin.DoubleSHA256(header[:])
		if bitcoin.DigestBelowTarget(&digest, target) {
			return Result{
				Status: StatusFound,
				Nonce:  nonce,
				Hash:   chainhash.Hash(digest),
				Hashes: uint64(nonce-first) + 1,
			}, nil
		}

		if nonce%ProgressInterval == ProgressInterval-1 {
			lastReport = s.tick(worker, nonce, lastReport, bigTarget)
			if err := ctx.Err(); err != nil {
				return Result{Nonce: nonce, Hashes: uint64(nonce-first) + 1}, err
			}
		} else if nonce&cancelMask == cancelMask {
			if err := ctx.Err(); err != nil {
				return Result{Nonce: nonce, Hashes: uint64(nonce-first) + 1}, err
			}
		}

		if nonce == last {
			return Result{
				Status: StatusExhausted,
				Nonce:  nonce,
				Hashes: uint64(nonce-first) + 1,
			}, nil
		}
		nonce++
	}
}

func (s *Searcher) tick(worker int, nonce uint32, lastReport time.Time, target *big.Int) time.Time {
	now := s.now()
	if s.reporter == nil {
		return now
	}

	elapsed := now.Sub(lastReport)
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	hashrate := ProgressInterval / elapsed.Seconds()

	s.reporter.ReportProgress(Progress{
		Worker:        worker,
		Nonce:         nonce,
		Hashrate:      hashrate,
		EstimateHours: bitcoin.EstimateHours(target, hashrate),
		Elapsed:       elapsed,
	})
	return now
}

// Compile-time interface compliance check
var _ NonceSearcher = (*Searcher)(nil)
