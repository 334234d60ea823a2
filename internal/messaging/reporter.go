package messaging

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satoshiware/genesis/internal/mining"
	"github.com/satoshiware/genesis/pkg/jsonx"
	"github.com/satoshiware/genesis/pkg/log"
)

// DefaultQueueSize bounds the events waiting to be published.
const DefaultQueueSize = 256

const publishTimeout = 10 * time.Second

type envelope struct {
	topic string
	key   string
	value any
}

// EventReporter is a mining.Reporter that publishes events from a background
// goroutine. Reports never block: when the queue is full the event is dropped
// and counted.
type EventReporter struct {
	publisher Publisher
	prefix    string
	runID     string
	logger    *log.Logger
	now       func() time.Time

	queue   chan envelope
	dropped atomic.Uint64
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

var _ mining.Reporter = (*EventReporter)(nil)

// NewEventReporter starts the publishing goroutine. Close must be called to
// flush the queue.
func NewEventReporter(publisher Publisher, prefix, runID string, queueSize int, logger *log.Logger) *EventReporter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = log.Discard()
	}

	r := &EventReporter{
		publisher: publisher,
		prefix:    prefix,
		runID:     runID,
		logger:    logger.WithComponent("events"),
		now:       time.Now,
		queue:     make(chan envelope, queueSize),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *EventReporter) run() {
	defer close(r.done)
	for env := range r.queue {
		r.publish(env)
	}
}

func (r *EventReporter) publish(env envelope) {
	data, err := jsonx.Marshal(env.value)
	if err != nil {
		r.logger.WithError(err).Error("failed to encode event", "topic", env.topic)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.publisher.PublishJSON(ctx, env.topic, env.key, data); err != nil {
		r.logger.WithError(err).Warn("failed to publish event", "topic", env.topic, "key", env.key)
	}
}

func (r *EventReporter) enqueue(suffix string, value any) {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- envelope{topic: Topic(r.prefix, suffix), key: r.runID, value: value}:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("event queue full, dropping events", "dropped", n)
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *EventReporter) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits until the queue is drained or ctx
// is done.
func (r *EventReporter) Close(ctx context.Context) error {
	r.closeMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.closeMu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *EventReporter) ReportAttempt(a mining.Attempt) {
	ev := AttemptEvent{
		RunID:       r.runID,
		Attempt:     a.Number,
		StartNonce:  a.StartNonce,
		Workers:     a.Workers,
		Address:     a.Address,
		PublishedAt: r.now(),
	}
	if g := a.Genesis; g != nil {
		ev.MerkleRoot = g.MerkleRoot.String()
		ev.Time = g.Params.Time
		ev.Bits = fmt.Sprintf("0x%08x", g.Params.Bits)
		ev.Timestamp = g.Params.Timestamp
		ev.PubKey = g.Params.PubKeyHex
		ev.Value = g.Params.Value
	}
	r.enqueue(TopicAttempts, ev)
}

func (r *EventReporter) ReportProgress(p mining.Progress) {
	ev := ProgressEvent{
		RunID:       r.runID,
		Worker:      p.Worker,
		Nonce:       p.Nonce,
		Hashrate:    p.Hashrate,
		ElapsedMs:   float64(p.Elapsed) / float64(time.Millisecond),
		PublishedAt: r.now(),
	}
	// JSON has no Inf or NaN
	if !math.IsInf(p.EstimateHours, 0) && !math.IsNaN(p.EstimateHours) {
		hours := p.EstimateHours
		ev.EstimateHours = &hours
	}
	r.enqueue(TopicProgress, ev)
}

func (r *EventReporter) ReportResult(o mining.Outcome) {
	ev := ResultEvent{
		RunID:       r.runID,
		Attempt:     o.Attempt,
		Status:      mining.StatusExhausted.String(),
		Nonce:       o.Nonce,
		Hashes:      o.Hashes,
		DurationMs:  float64(o.Duration) / float64(time.Millisecond),
		PublishedAt: r.now(),
	}
	if o.Found {
		ev.Status = mining.StatusFound.String()
		ev.Hash = o.Hash.String()
	}
	if g := o.Genesis; g != nil {
		ev.MerkleRoot = g.MerkleRoot.String()
		ev.Time = g.Params.Time
	}
	r.enqueue(TopicResults, ev)
}
