package mining

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/satoshiware/genesis/internal/bitcoin"
	"github.com/satoshiware/genesis/pkg/log"
)

// Attempt describes one search over a freshly built header.
type Attempt struct {
	Number     uint64
	Genesis    *bitcoin.Genesis
	StartNonce uint32
	Target     *big.Int
	Workers    int
	// Address is the display address of the output key, possibly empty.
	Address string
}

// Outcome is the result of one attempt as seen by reporters, and the final
// result of a driver run when Found is set.
type Outcome struct {
	Found    bool
	Genesis  *bitcoin.Genesis
	Nonce    uint32
	Hash     chainhash.Hash
	Attempt  uint64
	Hashes   uint64
	Duration time.Duration
}

// Reporter observes a driver run. Implementations must tolerate concurrent
// ReportProgress calls from search workers and must never block the search.
type Reporter interface {
	ProgressReporter
	ReportAttempt(a Attempt)
	ReportResult(o Outcome)
}

// MultiReporter fans every event out to each member.
type MultiReporter []Reporter

// NewMultiReporter drops nil members.
func NewMultiReporter(reporters ...Reporter) MultiReporter {
	out := make(MultiReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// ReportAttempt implements Reporter.
func (m MultiReporter) ReportAttempt(a Attempt) {
	for _, r := range m {
		r.ReportAttempt(a)
	}
}

// ReportProgress implements Reporter.
func (m MultiReporter) ReportProgress(p Progress) {
	for _, r := range m {
		r.ReportProgress(p)
	}
}

// ReportResult implements Reporter.
func (m MultiReporter) ReportResult(o Outcome) {
	for _, r := range m {
		r.ReportResult(o)
	}
}

// ConsoleReporter writes the human readable run output: the configuration
// summary, an overwritable status line, and the terminal line.
type ConsoleReporter struct {
	mu     sync.Mutex
	w      io.Writer
	target *big.Int
	rates  map[int]float64
}

// NewConsoleReporter creates a console reporter writing to w.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{
		w:     w,
		rates: make(map[int]float64),
	}
}

// ReportAttempt prints the configuration summary.
func (c *ConsoleReporter) ReportAttempt(a Attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.target = a.Target
	clear(c.rates)

	g := a.Genesis
	p := g.Params
	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, "algorithm: SHA256")
	fmt.Fprintf(c.w, "merkle hash: %s\n", g.MerkleRoot)
	fmt.Fprintf(c.w, "pszTimestamp: %s\n", p.Timestamp)
	fmt.Fprintf(c.w, "pubkey: %s\n", p.PubKeyHex)
	fmt.Fprintf(c.w, "time: %d (%s)\n", p.Time, time.Unix(int64(p.Time), 0).Format(time.ANSIC))
	fmt.Fprintf(c.w, "bits: 0x%x\n", p.Bits)
	fmt.Fprintf(c.w, "value: %d\n", p.Value)
	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, "Searching for genesis hash..")
}

// ReportProgress rewrites the status line. With several workers the rates
// are summed; the nonce is the reporting worker's.
func (c *ConsoleReporter) ReportProgress(p Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rates[p.Worker] = p.Hashrate
	var total float64
	for _, r := range c.rates {
		total += r
	}

	estimate := p.EstimateHours
	if c.target != nil {
		estimate = bitcoin.EstimateHours(c.target, total)
	}

	fmt.Fprintf(c.w, "\r%d hash/s, estimate: %.1f h, nonce: %d (max = 4294967295)        ",
		int64(math.Round(total)), estimate, p.Nonce)
}

// ReportResult prints the terminal line of an attempt.
func (c *ConsoleReporter) ReportResult(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !o.Found {
		fmt.Fprintln(c.w)
		fmt.Fprintln(c.w, "Genesis Hash NOT Found! Sorry.")
		return
	}

	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, "Genesis Hash Found!")
	fmt.Fprintf(c.w, "nonce: %d\n", o.Nonce)
	fmt.Fprintf(c.w, "Genesis Hash: %s\n", o.Hash)
}

// LogReporter turns run events into structured log records.
type LogReporter struct {
	logger *log.Logger
}

// NewLogReporter creates a reporter logging through logger.
func NewLogReporter(logger *log.Logger) *LogReporter {
	return &LogReporter{logger: logger.WithComponent("telemetry")}
}

// ReportAttempt implements Reporter.
func (l *LogReporter) ReportAttempt(a Attempt) {
	l.logger.LogAttempt(a.Number, a.Genesis.Params.Time, a.StartNonce, a.Genesis.Params.Bits, a.Genesis.MerkleRoot.String())
}

// ReportProgress implements Reporter.
func (l *LogReporter) ReportProgress(p Progress) {
	l.logger.LogProgress(p.Worker, p.Nonce, p.Hashrate, HumanHashrate(p.Hashrate), HumanEstimate(p.EstimateHours))
}

// ReportResult implements Reporter.
func (l *LogReporter) ReportResult(o Outcome) {
	if !o.Found {
		l.logger.Debug("attempt finished without a solution",
			"attempt", o.Attempt,
			"hashes", o.Hashes,
		)
		return
	}
	l.logger.LogGenesisFound(o.Hash.String(), o.Nonce, o.Genesis.Params.Time, o.Attempt)
	l.logger.LogDuration("genesis_search", o.Duration.Nanoseconds())
}

// HumanHashrate formats a rate with an SI prefix, e.g. "12.5 MH/s".
func HumanHashrate(hashrate float64) string {
	return humanize.SIWithDigits(hashrate, 1, "H/s")
}

// HumanEstimate formats an hour estimate as its two largest units.
func HumanEstimate(hours float64) string {
	if math.IsInf(hours, 0) || math.IsNaN(hours) || hours < 0 {
		return "unknown"
	}
	// beyond ~290 years a Duration overflows
	if hours > float64(math.MaxInt64)/float64(time.Hour) {
		return fmt.Sprintf("%.0f years", hours/24/365)
	}
	return durafmt.Parse(time.Duration(hours * float64(time.Hour))).LimitFirstN(2).String()
}

// Compile-time interface compliance check
var (
	_ Reporter = MultiReporter(nil)
	_ Reporter = (*ConsoleReporter)(nil)
	_ Reporter = (*LogReporter)(nil)
)
