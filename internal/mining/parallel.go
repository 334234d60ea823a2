package mining

import (
	"context"
	"math/big"
	"sync"

	"github.com/remeh/sizedwaitgroup"

	"github.com/satoshiware/genesis/internal/bitcoin"
	"github.com/satoshiware/genesis/pkg/log"
)

// ParallelSearcher splits the nonce space into contiguous ranges, one per
// worker. Any qualifying nonce is acceptable, so the first worker to report a
// hit wins and the others are cancelled.
type ParallelSearcher struct {
	workers  int
	searcher *Searcher
	logger   *log.Logger
}

// NewParallelSearcher creates a searcher with the given number of workers.
// One worker is exactly the sequential search.
func NewParallelSearcher(workers int, reporter ProgressReporter, logger *log.Logger) *ParallelSearcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ParallelSearcher{
		workers:  workers,
		searcher: NewSearcher(reporter),
		logger:   logger.WithComponent("parallel_searcher"),
	}
}

// Workers returns the configured worker count.
func (p *ParallelSearcher) Workers() int {
	return p.workers
}

type nonceRange struct {
	first, last uint32
}

// splitRange partitions [start, MaxNonce] into at most n contiguous,
// non-empty ranges that cover it exactly.
func splitRange(start uint32, n int) []nonceRange {
	total := uint64(MaxNonce) - uint64(start) + 1
	if uint64(n) > total {
		n = int(total)
	}
	size := total / uint64(n)
	extra := total % uint64(n)

	ranges := make([]nonceRange, 0, n)
	first := uint64(start)
	for i := range uint64(n) {
		length := size
		if i < extra {
			length++
		}
		ranges = append(ranges, nonceRange{first: uint32(first), last: uint32(first + length - 1)})
		first += length
	}
	return ranges
}

// Run searches [startNonce, MaxNonce] with all workers. On cancellation the
// result nonce is the lowest nonce below which every range is done, so a
// resumed search never skips a candidate.
func (p *ParallelSearcher) Run(ctx context.Context, header bitcoin.Header, startNonce uint32, target *big.Int) (Result, error) {
	if p.workers == 1 {
		return p.searcher.Run(ctx, header, startNonce, target)
	}

	targetBytes, err := bitcoin.TargetBytes(target)
	if err != nil {
		return Result{Nonce: startNonce}, err
	}

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ranges := splitRange(startNonce, p.workers)
	results := make([]Result, len(ranges))

	var (
		mu     sync.Mutex
		winner *Result
	)

	swg := sizedwaitgroup.New(len(ranges))
	for i, r := range ranges {
		swg.Add()
		go func() {
			defer swg.Done()

			res, err := p.searcher.searchRange(searchCtx, i, header, r.first, r.last, &targetBytes, target)
			results[i] = res
			if err != nil || res.Status != StatusFound {
				return
			}

			mu.Lock()
			if winner == nil {
				winner = &res
				cancel()
			}
			mu.Unlock()
		}()
	}
	swg.Wait()

	var hashes uint64
	exhausted := 0
	for _, res := range results {
		hashes += res.Hashes
		if res.Status == StatusExhausted {
			exhausted++
		}
	}

	if winner != nil {
		out := *winner
		out.Hashes = hashes
		p.logger.Debug("worker found nonce", "nonce", out.Nonce, "hashes", hashes)
		return out, nil
	}

	if exhausted < len(ranges) {
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		return Result{Nonce: resumeNonce(ranges, results), Hashes: hashes}, err
	}

	return Result{Status: StatusExhausted, Nonce: MaxNonce, Hashes: hashes}, nil
}

// resumeNonce is the lowest last-tried nonce among unfinished ranges.
func resumeNonce(ranges []nonceRange, results []Result) uint32 {
	resume := uint32(MaxNonce)
	for i, res := range results {
		if res.Status == StatusExhausted {
			continue
		}
		nonce := res.Nonce
		if res.Hashes == 0 {
			nonce = ranges[i].first
		}
		resume = min(resume, nonce)
	}
	return resume
}

// Compile-time interface compliance check
var _ NonceSearcher = (*ParallelSearcher)(nil)
