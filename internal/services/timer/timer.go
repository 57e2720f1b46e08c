// Package timer is the periodic event source that drives the animation.
//
// A Source behaves like an interval timer: the handler first fires after
// Config.InitialDelay and then every Config.RepeatInterval. Rearm replaces
// the schedule at any time; the repeat interval is re-read at every firing.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
)

// Config is the firing schedule.
type Config struct {
	InitialDelay   time.Duration
	RepeatInterval time.Duration
}

// PeriodMs is the firing period in whole milliseconds for a speed in
// characters per second.
func PeriodMs(speed int) int {
	if speed <= 0 {
		return 0
	}
	return 1000 / speed
}

// ConfigFor derives the schedule for a speed. Both delays are 1000/speed
// milliseconds; a sub-millisecond period is raised to one millisecond.
func ConfigFor(speed int) Config {
	ms := PeriodMs(speed)
	if ms < 1 {
		ms = 1
	}
	d := time.Duration(ms) * time.Millisecond
	return Config{InitialDelay: d, RepeatInterval: d}
}

// Source fires a handler on its own goroutine.
type Source struct {
	handler func()
	log     log.Logger

	mu     sync.Mutex
	config Config

	rearm   chan Config
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	started atomic.Bool

	fired  atomic.Uint64
	rearms atomic.Uint64
}

// New creates a stopped Source. The handler runs on the timer goroutine,
// concurrently with everything else.
func New(handler func(), logger log.Logger) *Source {
	return &Source{
		handler: handler,
		log:     logger,
		rearm:   make(chan Config, 1),
		stop:    make(chan struct{}),
	}
}

// Start arms the timer with cfg and begins firing.
func (s *Source) Start(cfg Config) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.setConfig(cfg)
	s.wg.Add(1)
	go s.run(cfg)
}

// Rearm replaces the schedule. The next firing happens after the new initial
// delay. Rearm never blocks: when a previous re-arm has not been picked up
// yet, the newest configuration replaces it.
func (s *Source) Rearm(cfg Config) {
	s.setConfig(cfg)
	s.rearms.Add(1)
	for {
		select {
		case s.rearm <- cfg:
			return
		default:
		}
		select {
		case <-s.rearm:
		default:
		}
	}
}

// Fire runs the handler synchronously on the calling goroutine.
func (s *Source) Fire() {
	s.fired.Add(1)
	s.handler()
}

// Config returns the current schedule.
func (s *Source) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Fired counts handler invocations.
func (s *Source) Fired() uint64 {
	return s.fired.Load()
}

// Rearms counts Rearm calls.
func (s *Source) Rearms() uint64 {
	return s.rearms.Load()
}

// Stop halts the timer and waits for an in-progress handler to return.
func (s *Source) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

func (s *Source) setConfig(cfg Config) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
}

func (s *Source) run(cfg Config) {
	defer s.wg.Done()

	t := time.NewTimer(cfg.InitialDelay)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case cfg = <-s.rearm:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(cfg.InitialDelay)
			if s.log != nil {
				s.log.Debugf("Timer re-armed: initial %v, repeat %v", cfg.InitialDelay, cfg.RepeatInterval)
			}
		case <-t.C:
			s.Fire()
			t.Reset(s.Config().RepeatInterval)
		}
	}
}
