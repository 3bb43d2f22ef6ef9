// Package poll implements the re-send scheduler the effect executor
// configures via SchedulePoll/RefreshAll, plus the pong watchdog that
// tracks liveness between gateway keepalives.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// minWatchdogThreshold is the floor SPEC_FULL.md applies when polling is
// disabled or its interval is very small.
const minWatchdogThreshold = 60 * time.Second

// Sender dispatches a poll request for one URL; injected so the scheduler
// stays transport-agnostic (in practice it builds command.PollDeviceData
// and sends the frame directly, not through the executor).
type Sender func(ctx context.Context, url string)

// IsActiveFunc reports whether the scheduler should keep firing; wired to
// app-level "screen is visible"/"app is foregrounded" signals.
type IsActiveFunc func() bool

// Event is the watchdog's trace notification, analogous to the
// orchestrator's Decision events.
type Event struct {
	WatchdogTimeout bool
	SinceLastPong   time.Duration
}

// Scheduler periodically re-sends a set of URLs and watches for pong
// staleness. It implements effect.Scheduler and effect.PongTracker.
type Scheduler struct {
	mu       sync.Mutex
	urls     []string
	interval time.Duration
	nextFire time.Time
	lastPong time.Time

	send           Sender
	isActive       IsActiveFunc
	onlyWhenActive bool

	events chan Event
	log    hclog.Logger

	reconfigure chan struct{}
	triggerNow  chan struct{}
}

// New builds a Scheduler. events may be nil, in which case watchdog
// timeouts are logged but not published anywhere.
func New(send Sender, isActive IsActiveFunc, onlyWhenActive bool, events chan Event, log hclog.Logger) *Scheduler {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Scheduler{
		send:           send,
		isActive:       isActive,
		onlyWhenActive: onlyWhenActive,
		lastPong:       time.Time{},
		events:         events,
		log:            log,
		reconfigure:    make(chan struct{}, 1),
		triggerNow:     make(chan struct{}, 1),
	}
}

// Configure implements effect.Scheduler: (re)sets the URL list and
// interval, waking the run loop to pick up the change.
func (s *Scheduler) Configure(urls []string, intervalSeconds int) {
	s.mu.Lock()
	s.urls = append([]string(nil), urls...)
	s.interval = time.Duration(intervalSeconds) * time.Second
	s.nextFire = now().Add(s.interval)
	s.mu.Unlock()

	select {
	case s.reconfigure <- struct{}{}:
	default:
	}
}

// TriggerNow implements effect.Scheduler: fires one immediate poll round
// without waiting for the next tick (used after RefreshAll).
func (s *Scheduler) TriggerNow() {
	select {
	case s.triggerNow <- struct{}{}:
	default:
	}
}

// MarkPong implements effect.PongTracker.
func (s *Scheduler) MarkPong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPong = now()
}

// now is overridable in tests; production always uses time.Now.
var now = time.Now

// Run drives the scheduler until ctx is cancelled. Intended as one member
// of an oklog/run.Group.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.reconfigure:
			// interval/urls changed; loop re-reads them on the next tick.
		case <-s.triggerNow:
			s.pollOnce(ctx)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.checkWatchdog()

	s.mu.Lock()
	interval := s.interval
	due := !s.nextFire.IsZero() && !now().Before(s.nextFire)
	if due {
		s.nextFire = now().Add(interval)
	}
	s.mu.Unlock()

	if interval <= 0 || !due {
		return
	}
	if s.onlyWhenActive && s.isActive != nil && !s.isActive() {
		return
	}
	s.pollOnce(ctx)
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	s.mu.Lock()
	urls := append([]string(nil), s.urls...)
	s.mu.Unlock()

	for _, u := range urls {
		s.send(ctx, u)
	}
}

func (s *Scheduler) checkWatchdog() {
	s.mu.Lock()
	interval := s.interval
	lastPong := s.lastPong
	s.mu.Unlock()

	if lastPong.IsZero() {
		return
	}

	threshold := 2 * interval
	if threshold < minWatchdogThreshold {
		threshold = minWatchdogThreshold
	}

	since := now().Sub(lastPong)
	if since <= threshold {
		return
	}

	s.log.Warn("pong watchdog timeout", "since_last_pong", since, "threshold", threshold)
	if s.events == nil {
		return
	}
	select {
	case s.events <- Event{WatchdogTimeout: true, SinceLastPong: since}:
	default:
	}
}
