package mining

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/satoshiware/genesis/internal/bitcoin"
	"github.com/satoshiware/genesis/internal/config"
	"github.com/satoshiware/genesis/pkg/errors"
	"github.com/satoshiware/genesis/pkg/log"
)

// Driver states.
const (
	StateSearching    = "searching"
	StateFound        = "found"
	StateRetryPending = "retry_pending"
	StateStopped      = "stopped"
)

// Driver events.
const (
	EventFind    = "find"
	EventExhaust = "exhaust"
	EventAdvance = "advance"
	EventStop    = "stop"
)

const checkpointTimeout = 5 * time.Second

var (
	// ErrRetriesExhausted is returned when MaxRetries time bumps all failed.
	ErrRetriesExhausted = errors.New(errors.ErrorTypeInternal, "drive", "retry limit reached without a solution")
	// ErrTimeOverflow is returned when advancing the block time would wrap.
	ErrTimeOverflow = errors.New(errors.ErrorTypeValidation, "drive", "block time overflows 32 bits")
)

// Driver runs the outer loop: build a genesis candidate, search its nonce
// space, and on exhaustion advance the time by the configured interval and
// search again from nonce 0.
//
// The loop is an explicit state machine:
//
//	searching     --find-->    found
//	searching     --exhaust--> retry_pending
//	retry_pending --advance--> searching
//	searching, retry_pending --stop--> stopped
type Driver struct {
	cfg      config.MiningConfig
	builder  bitcoin.GenesisBuilder
	searcher NonceSearcher
	reporter Reporter
	store    CheckpointStore
	logger   *log.Logger
	now      func() time.Time

	machine atomic.Pointer[fsm.FSM]
}

// NewDriver creates a driver. reporter, store and logger may be nil.
func NewDriver(cfg config.MiningConfig, builder bitcoin.GenesisBuilder, searcher NonceSearcher, reporter Reporter, store CheckpointStore, logger *log.Logger) *Driver {
	if reporter == nil {
		reporter = NewMultiReporter()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Driver{
		cfg:      cfg,
		builder:  builder,
		searcher: searcher,
		reporter: reporter,
		store:    store,
		logger:   logger.WithComponent("driver"),
		now:      time.Now,
	}
}

func (d *Driver) newMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateSearching,
		fsm.Events{
			{Name: EventFind, Src: []string{StateSearching}, Dst: StateFound},
			{Name: EventExhaust, Src: []string{StateSearching}, Dst: StateRetryPending},
			{Name: EventAdvance, Src: []string{StateRetryPending}, Dst: StateSearching},
			{Name: EventStop, Src: []string{StateSearching, StateRetryPending}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				d.logger.Debug("state transition", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// State returns the current state, or "" before the first Run.
func (d *Driver) State() string {
	if m := d.machine.Load(); m != nil {
		return m.Current()
	}
	return ""
}

// fire applies an event. Transitions are never cancelled, so the machine
// always reflects what the loop did.
func (d *Driver) fire(ctx context.Context, event string) error {
	if err := d.machine.Load().Event(context.WithoutCancel(ctx), event); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInvariant, "drive", "invalid state transition").
			WithContext("event", event)
	}
	return nil
}

// stop moves the machine to stopped and returns err.
func (d *Driver) stop(ctx context.Context, err error) error {
	if ferr := d.fire(ctx, EventStop); ferr != nil {
		d.logger.WithError(ferr).Error("failed to stop state machine")
	}
	return err
}

// Run searches until a genesis block is found, ctx is cancelled, or the retry
// limit is reached. It returns the winning outcome.
func (d *Driver) Run(ctx context.Context) (*Outcome, error) {
	start := d.now()
	d.machine.Store(d.newMachine())

	params := d.cfg.GenesisParams()
	target := bitcoin.BitsToTarget(params.Bits)

	g, err := d.builder.Build(params)
	if err != nil {
		return nil, d.stop(ctx, err)
	}

	var attempt uint64
	if d.cfg.Resume && d.store != nil {
		g, attempt = d.resume(ctx, g)
	}

	var retries uint64
	for {
		attempt++
		startNonce := g.Params.Nonce

		d.reporter.ReportAttempt(Attempt{
			Number:     attempt,
			Genesis:    g,
			StartNonce: startNonce,
			Target:     target,
			Workers:    d.cfg.Workers,
			Address:    d.builder.PubKeyAddress(g.Params.PubKeyHex),
		})

		res, err := d.searcher.Run(ctx, g.Header, startNonce, target)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("search interrupted", "time", g.Params.Time, "nonce", res.Nonce, "attempt", attempt)
				d.saveCheckpoint(ctx, g, res.Nonce, attempt-1, false)
			}
			return nil, d.stop(ctx, err)
		}

		outcome := Outcome{
			Found:    res.Status == StatusFound,
			Genesis:  g,
			Nonce:    res.Nonce,
			Hash:     res.Hash,
			Attempt:  attempt,
			Hashes:   res.Hashes,
			Duration: d.now().Sub(start),
		}
		d.reporter.ReportResult(outcome)

		if outcome.Found {
			if err := d.fire(ctx, EventFind); err != nil {
				return nil, err
			}
			d.saveCheckpoint(ctx, g, res.Nonce, attempt, true)
			return &outcome, nil
		}

		if err := d.fire(ctx, EventExhaust); err != nil {
			return nil, err
		}

		if d.cfg.MaxRetries > 0 && retries >= d.cfg.MaxRetries {
			return nil, d.stop(ctx, ErrRetriesExhausted.Clone().
				WithContext("max_retries", d.cfg.MaxRetries).
				WithContext("time", g.Params.Time))
		}

		next := uint64(g.Params.Time) + uint64(d.cfg.Interval)
		if next > math.MaxUint32 {
			return nil, d.stop(ctx, ErrTimeOverflow.Clone().WithContext("time", g.Params.Time))
		}
		retries++
		d.logger.LogExhausted(g.Params.Time, uint32(next), attempt)

		p := g.Params
		p.Time = uint32(next)
		p.Nonce = 0
		if g, err = d.builder.Build(p); err != nil {
			return nil, d.stop(ctx, err)
		}
		d.saveCheckpoint(ctx, g, 0, attempt, false)

		if err := d.fire(ctx, EventAdvance); err != nil {
			return nil, err
		}
	}
}

// resume swaps in the stored time and nonce for this merkle root and bits.
// Store failures are logged and the run starts fresh.
func (d *Driver) resume(ctx context.Context, g *bitcoin.Genesis) (*bitcoin.Genesis, uint64) {
	cp, err := d.store.LoadCheckpoint(ctx, g.MerkleRoot.String(), g.Params.Bits)
	if err != nil {
		d.logger.WithError(err).Warn("failed to load checkpoint, starting fresh")
		return g, 0
	}
	if cp == nil {
		return g, 0
	}

	p := g.Params
	p.Time = cp.Time
	p.Nonce = cp.Nonce
	resumed, err := d.builder.Build(p)
	if err != nil {
		d.logger.WithError(err).Warn("failed to rebuild from checkpoint, starting fresh")
		return g, 0
	}

	d.logger.Info("resuming from checkpoint",
		"time", cp.Time,
		"nonce", cp.Nonce,
		"attempts", cp.Attempts,
		"found", cp.Found,
		"updated_at", cp.UpdatedAt,
	)
	return resumed, cp.Attempts
}

func (d *Driver) saveCheckpoint(ctx context.Context, g *bitcoin.Genesis, nonce uint32, attempts uint64, found bool) {
	if d.store == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()

	cp := Checkpoint{
		MerkleRoot: g.MerkleRoot.String(),
		Bits:       g.Params.Bits,
		Time:       g.Params.Time,
		Nonce:      nonce,
		Attempts:   attempts,
		Found:      found,
		UpdatedAt:  d.now(),
	}
	if err := d.store.SaveCheckpoint(saveCtx, cp); err != nil {
		d.logger.WithError(err).Warn("failed to save checkpoint", "time", cp.Time, "nonce", cp.Nonce)
	}
}
