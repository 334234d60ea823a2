// Package metrics exposes the genesis search as Prometheus metrics.
// All collectors use the "genesis" namespace and the "search" subsystem.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/satoshiware/genesis/internal/bitcoin"
	"github.com/satoshiware/genesis/internal/mining"
)

const (
	namespace = "genesis"
	subsystem = "search"
)

// PrometheusReporter is a mining.Reporter that updates Prometheus collectors.
type PrometheusReporter struct {
	attempts      prometheus.Counter
	hashes        prometheus.Counter
	found         prometheus.Gauge
	blockTime     prometheus.Gauge
	bits          prometheus.Gauge
	difficulty    prometheus.Gauge
	estimateHours prometheus.Gauge
	duration      prometheus.Gauge
	hashrate      *prometheus.GaugeVec
	nonce         *prometheus.GaugeVec

	mu      sync.Mutex
	workers map[int]float64
}

var _ mining.Reporter = (*PrometheusReporter)(nil)

// NewPrometheusReporter registers the search collectors with reg. Passing
// prometheus.DefaultRegisterer is fine for the CLI; tests use a fresh
// registry per reporter.
func NewPrometheusReporter(reg prometheus.Registerer) *PrometheusReporter {
	factory := promauto.With(reg)

	return &PrometheusReporter{
		attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Number of header candidates searched (one per block time)",
		}),
		hashes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hashes_total",
			Help:      "Number of header hashes computed by completed attempts",
		}),
		found: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "found",
			Help:      "1 once a genesis hash below the target has been found",
		}),
		blockTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "block_time_seconds",
			Help:      "Header time of the candidate being searched",
		}),
		bits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bits",
			Help:      "Compact target of the candidate being searched",
		}),
		difficulty: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "difficulty",
			Help:      "Difficulty of the candidate's target",
		}),
		estimateHours: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "estimate_hours",
			Help:      "Expected hours to a solution at the current total hashrate",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Wall time from the start of the run to the last completed attempt",
		}),
		hashrate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hashrate",
			Help:      "Hashes per second measured over the last telemetry interval",
		}, []string{"worker"}),
		nonce: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "nonce",
			Help:      "Last nonce reached by the worker",
		}, []string{"worker"}),
		workers: make(map[int]float64),
	}
}

func (r *PrometheusReporter) ReportAttempt(a mining.Attempt) {
	r.attempts.Inc()
	r.found.Set(0)

	r.mu.Lock()
	clear(r.workers)
	r.mu.Unlock()
	r.hashrate.Reset()
	r.nonce.Reset()

	if a.Genesis != nil {
		r.blockTime.Set(float64(a.Genesis.Params.Time))
		r.bits.Set(float64(a.Genesis.Params.Bits))
	}
	if d, err := bitcoin.TargetToDifficulty(a.Target); err == nil {
		r.difficulty.Set(d)
	}
}

func (r *PrometheusReporter) ReportProgress(p mining.Progress) {
	worker := strconv.Itoa(p.Worker)
	r.hashrate.WithLabelValues(worker).Set(p.Hashrate)
	r.nonce.WithLabelValues(worker).Set(float64(p.Nonce))

	r.mu.Lock()
	r.workers[p.Worker] = p.EstimateHours
	var rate float64
	for _, hours := range r.workers {
		if hours > 0 {
			rate += 1 / hours
		}
	}
	r.mu.Unlock()

	// per-worker estimates combine like parallel resistors
	if rate > 0 {
		r.estimateHours.Set(1 / rate)
	}
}

func (r *PrometheusReporter) ReportResult(o mining.Outcome) {
	r.hashes.Add(float64(o.Hashes))
	r.duration.Set(o.Duration.Seconds())
	if o.Found {
		r.found.Set(1)
	}
}
