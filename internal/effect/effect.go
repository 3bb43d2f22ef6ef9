// Package effect models the side-effect instructions the pipeline enqueues
// alongside a decoded message and the single-consumer worker
// that drains them in order.
package effect

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/sideeffect-io/tydom-go/internal/command"
)

// Effect is the sealed side-effect union.
type Effect interface {
	isEffect()
}

// SendCommands asks the executor to send each command frame in order.
type SendCommands struct {
	Commands []command.Frame
}

func (SendCommands) isEffect() {}

// SchedulePoll (re)configures the poll scheduler to re-send each URL on the
// given interval.
type SchedulePoll struct {
	URLs     []string
	Interval int // seconds
}

func (SchedulePoll) isEffect() {}

// RefreshAll sends refresh_all, then triggers one immediate scheduled poll.
type RefreshAll struct{}

func (RefreshAll) isEffect() {}

// PongReceived marks the last-pong timestamp for the watchdog.
type PongReceived struct{}

func (PongReceived) isEffect() {}

// CDataReplyChunk appends a multi-chunk cdata response fragment to the
// reassembly store, keyed by transaction id.
type CDataReplyChunk struct {
	TxID string
	Data []byte
	EOR  bool
}

func (CDataReplyChunk) isEffect() {}

// SendCommandFunc performs the actual network send for a single command
// frame; injected so the executor stays transport-agnostic.
type SendCommandFunc func(ctx context.Context, f command.Frame) error

// Scheduler is the collaborator SchedulePoll/RefreshAll effects drive.
// Implemented by poll.Scheduler; kept as an interface here so the executor
// doesn't import the poll package and create a cycle.
type Scheduler interface {
	Configure(urls []string, intervalSeconds int)
	TriggerNow()
}

// PongTracker receives PongReceived notifications; implemented by the
// watchdog inside the poll scheduler.
type PongTracker interface {
	MarkPong()
}

// Reassembler receives CDataReplyChunk fragments.
type Reassembler interface {
	Append(txID string, data []byte, eor bool)
}

// Executor is a single-consumer FIFO worker draining a bounded channel of
// Effects. Send/RefreshAll commands and scheduler/watchdog/reassembler
// calls are the only state it touches; it owns no other shared memory.
type Executor struct {
	queue       chan Effect
	send        SendCommandFunc
	scheduler   Scheduler
	pong        PongTracker
	reassembler Reassembler
	refreshAll  func(ctx context.Context) error
	log         hclog.Logger
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithLogger overrides the default null logger.
func WithLogger(l hclog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// New builds an Executor. refreshAll is invoked for the RefreshAll effect
// before the scheduler's immediate poll is triggered.
func New(send SendCommandFunc, scheduler Scheduler, pong PongTracker, reassembler Reassembler, refreshAll func(ctx context.Context) error, opts ...Option) *Executor {
	e := &Executor{
		queue:       make(chan Effect, 64),
		send:        send,
		scheduler:   scheduler,
		pong:        pong,
		reassembler: reassembler,
		refreshAll:  refreshAll,
		log:         hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue appends effects to the queue, preserving their order. Blocks if
// the internal buffer is full, applying backpressure to the pipeline.
func (e *Executor) Enqueue(ctx context.Context, effects ...Effect) {
	for _, eff := range effects {
		select {
		case e.queue <- eff:
		case <-ctx.Done():
			return
		}
	}
}

// Run drains the queue serially until ctx is cancelled. Intended to be
// wired as one member of an oklog/run.Group alongside the connection's
// receive loop.
func (e *Executor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case eff := <-e.queue:
			e.apply(ctx, eff)
		}
	}
}

func (e *Executor) apply(ctx context.Context, eff Effect) {
	switch v := eff.(type) {
	case SendCommands:
		for _, f := range v.Commands {
			if err := e.send(ctx, f); err != nil {
				e.log.Warn("send_commands effect failed", "path", f.Path, "error", err)
			}
		}
	case SchedulePoll:
		if e.scheduler != nil && v.Interval > 0 {
			e.scheduler.Configure(v.URLs, v.Interval)
		}
	case RefreshAll:
		if e.refreshAll != nil {
			if err := e.refreshAll(ctx); err != nil {
				e.log.Warn("refresh_all effect failed", "error", err)
			}
		}
		if e.scheduler != nil {
			e.scheduler.TriggerNow()
		}
	case PongReceived:
		if e.pong != nil {
			e.pong.MarkPong()
		}
	case CDataReplyChunk:
		if e.reassembler != nil {
			e.reassembler.Append(v.TxID, v.Data, v.EOR)
		}
	default:
		e.log.Warn("unhandled effect kind")
	}
}
