// Package dispatch interprets completed keystrokes.
//
// Each dispatch applies the key to the control state, flushes a pending
// speed change by re-arming the timer, and checks that every accepted speed
// change request was matched by exactly one timer adjustment. The timer
// handler clears the changed flag on every firing, so when the two run
// unsynchronised a firing between "mark changed" and "consult changed"
// drops the adjustment and the check fails.
package dispatch

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
	"github.td.teradata.com/sandbox/bouncer/internal/services/common"
	"github.td.teradata.com/sandbox/bouncer/internal/services/input"
	"github.td.teradata.com/sandbox/bouncer/internal/services/logging"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
	"github.td.teradata.com/sandbox/bouncer/internal/services/timer"
)

const (
	speedStep = 2

	// fastest period still allowed to speed up, slowest allowed to slow down
	minPeriodMs = 2
	maxPeriodMs = 500
)

var ErrInvariantViolation = errors.New("speed change requests and timer adjustments disagree")

// InvariantError describes a dispatch whose counts disagreed.
type InvariantError struct {
	Key         byte
	Speed       int
	Requests    int
	Adjustments int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("key %q: %d speed change request(s) but %d timer adjustment(s) at speed %d",
		e.Key, e.Requests, e.Adjustments, e.Speed)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// Policy decides what a detected violation does.
type Policy int

const (
	// FailFast returns the violation and ends the dispatch loop.
	FailFast Policy = iota
	// Tolerant logs and records the violation and carries on.
	Tolerant
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fail-fast", "":
		return FailFast, nil
	case "tolerant":
		return Tolerant, nil
	}
	return 0, fmt.Errorf("unknown violation policy %q", s)
}

// Outcome tells the dispatch loop what to do next.
type Outcome int

const (
	Continue Outcome = iota
	Quit
	EndOfInput
	Abort
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Quit:
		return "quit"
	case EndOfInput:
		return "end of input"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Rearmer reconfigures the timer.
type Rearmer interface {
	Rearm(cfg timer.Config)
}

// Requester issues the next asynchronous read.
type Requester interface {
	Request() error
}

// Stats are cumulative dispatch counters.
type Stats struct {
	Dispatches  uint64
	Requests    uint64
	Adjustments uint64
	Violations  uint64
	ReadErrors  uint64
}

type Dispatcher struct {
	state  *state.Control
	timer  Rearmer
	input  Requester
	render common.Renderer
	log    log.Logger

	policy     Policy
	interleave func()
	history    *logging.History

	dispatches  atomic.Uint64
	requests    atomic.Uint64
	adjustments atomic.Uint64
	violations  atomic.Uint64
	readErrors  atomic.Uint64
}

type Option func(*Dispatcher)

func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

func WithHistory(h *logging.History) Option {
	return func(d *Dispatcher) { d.history = h }
}

// WithInterleave runs fn between applying a key and consulting the changed
// flag.
func WithInterleave(fn func()) Option {
	return func(d *Dispatcher) { d.interleave = fn }
}

// WithRaceWindow widens the gap between marking and consulting the changed
// flag by sleeping.
func WithRaceWindow(window time.Duration) Option {
	return func(d *Dispatcher) {
		if window > 0 {
			d.interleave = func() { time.Sleep(window) }
		}
	}
}

func New(st *state.Control, tm Rearmer, in Requester, r common.Renderer, logger log.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:  st,
		timer:  tm,
		input:  in,
		render: r,
		log:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.history == nil {
		d.history = logging.NewHistory()
	}
	return d
}

// Dispatch handles one completed read. Unless the outcome ends the loop, the
// next read request has been issued when it returns.
func (d *Dispatcher) Dispatch(c input.Completion) (Outcome, error) {
	d.dispatches.Add(1)

	if c.Err != nil {
		if errors.Is(c.Err, io.EOF) {
			d.log.Infof("Input stream closed")
			return EndOfInput, nil
		}
		d.readErrors.Add(1)
		d.log.Errorf("Reading failed: %v", c.Err)
		return Continue, d.next()
	}

	k := c.Key
	if k == 'q' || k == 'Q' {
		d.state.SetLastKey(k)
		d.log.Infof("Quit requested")
		return Quit, nil
	}

	var requests, adjustments, speed int
	d.state.Critical(func() {
		d.state.SetLastKey(k)
		switch k {
		case ' ':
			d.log.Debugf("Direction now %v", d.state.ToggleDirection())
		case 'f':
			if sp := d.state.Speed(); timer.PeriodMs(sp) > minPeriodMs {
				d.state.SetSpeed(sp + speedStep)
				d.state.MarkChanged()
				requests++
			}
		case 's':
			if sp := d.state.Speed(); timer.PeriodMs(sp) <= maxPeriodMs && sp-speedStep > 0 {
				d.state.SetSpeed(sp - speedStep)
				d.state.MarkChanged()
				requests++
			}
		}

		if d.interleave != nil {
			d.interleave()
		}

		if d.state.Changed() {
			d.timer.Rearm(timer.ConfigFor(d.state.Speed()))
			d.state.ClearChanged()
			adjustments++
		}
		speed = d.state.Speed()
	})
	d.requests.Add(uint64(requests))
	d.adjustments.Add(uint64(adjustments))
	if adjustments > 0 {
		d.log.Debugf("Speed now %d chr/s", speed)
	}

	d.render.RenderStatus(speed, k)

	if requests != adjustments {
		err := &InvariantError{Key: k, Speed: speed, Requests: requests, Adjustments: adjustments}
		d.violations.Add(1)
		if d.policy == FailFast {
			d.log.Errorf("Invariant violated: %v", err)
			return Abort, err
		}
		d.log.Warnf("Invariant violated, continuing: %v", err)
		d.history.Add(logging.Violation{
			At:          time.Now(),
			Key:         k,
			Speed:       speed,
			Requests:    requests,
			Adjustments: adjustments,
		})
	}

	return Continue, d.next()
}

func (d *Dispatcher) next() error {
	if err := d.input.Request(); err != nil {
		return fmt.Errorf("issuing next read: %w", err)
	}
	return nil
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatches:  d.dispatches.Load(),
		Requests:    d.requests.Load(),
		Adjustments: d.adjustments.Load(),
		Violations:  d.violations.Load(),
		ReadErrors:  d.readErrors.Load(),
	}
}

func (d *Dispatcher) History() *logging.History {
	return d.history
}
