package driver

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
	"github.td.teradata.com/sandbox/bouncer/internal/services/common"
	"github.td.teradata.com/sandbox/bouncer/internal/services/dispatch"
	"github.td.teradata.com/sandbox/bouncer/internal/services/input"
	"github.td.teradata.com/sandbox/bouncer/internal/services/logging"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
	"github.td.teradata.com/sandbox/bouncer/internal/services/timer"
)

// Phase of the dispatch loop.
type Phase int32

const (
	Idle Phase = iota
	Waiting
	Dispatching
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "IDLE"
	case Waiting:
		return "WAITING"
	case Dispatching:
		return "DISPATCHING"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

type Options struct {
	Speed      int
	Mode       state.Mode
	Policy     dispatch.Policy
	RaceWindow time.Duration
	Cue        common.Cue
	// Interleave, when set, runs inside every dispatch between applying the
	// key and consulting the changed flag. It takes precedence over
	// RaceWindow.
	Interleave func()
}

// Driver is the main dispatch loop. It blocks until a keystroke completes and
// hands it to the dispatcher; the timer handler runs on its own goroutine,
// or on the loop itself in queued mode.
type Driver struct {
	state      *state.Control
	timer      *timer.Source
	input      *input.Source
	dispatcher *dispatch.Dispatcher
	render     common.Renderer
	cue        common.Cue
	log        log.Logger

	ticks chan struct{}
	phase atomic.Int32
	steps atomic.Uint64
}

func New(r common.Renderer, in io.Reader, logger log.Logger, opts Options) *Driver {
	d := &Driver{
		render: r,
		cue:    opts.Cue,
		log:    logger,
	}
	if d.cue == nil {
		d.cue = common.NoCue{}
	}

	width, _ := r.Size()
	d.state = state.New(opts.Mode, opts.Speed, width, common.ElementWidth)

	handler := d.Step
	if opts.Mode == state.Queued {
		d.ticks = make(chan struct{}, 1)
		handler = d.enqueueTick
	}
	d.timer = timer.New(handler, logger)
	d.input = input.New(in, logger)

	dopts := []dispatch.Option{dispatch.WithPolicy(opts.Policy)}
	if opts.Interleave != nil {
		dopts = append(dopts, dispatch.WithInterleave(opts.Interleave))
	} else if opts.RaceWindow > 0 {
		dopts = append(dopts, dispatch.WithRaceWindow(opts.RaceWindow))
	}
	d.dispatcher = dispatch.New(d.state, d.timer, d.input, r, logger, dopts...)
	return d
}

// Run draws the first frame, issues the first read, starts the timer and
// dispatches keystrokes until quit, end of input, a fail-fast violation or
// ctx is cancelled. Cancellation lets the current dispatch finish.
func (d *Driver) Run(ctx context.Context) error {
	defer d.shutdown()

	snap := d.state.Snapshot()
	d.render.Render(snap.Position, snap.Direction)
	d.render.RenderStatus(snap.Speed, snap.LastKey)

	d.input.Start()
	if err := d.input.Request(); err != nil {
		return fmt.Errorf("issuing first read: %w", err)
	}
	d.timer.Start(timer.ConfigFor(snap.Speed))
	d.log.Infof("Started: speed %d chr/s, sync %v", snap.Speed, d.state.Mode())

	for {
		d.phase.Store(int32(Waiting))
		select {
		case <-ctx.Done():
			d.log.Infof("Stopping: %v", ctx.Err())
			return nil

		case <-d.ticks:
			d.Step()

		case <-d.input.Ready():
			d.phase.Store(int32(Dispatching))
			c, err := d.input.Complete()
			if err != nil {
				return err
			}
			outcome, err := d.dispatcher.Dispatch(c)
			if err != nil {
				return err
			}
			if outcome != dispatch.Continue {
				d.log.Infof("Stopping: %v", outcome)
				return nil
			}
		}
	}
}

// Step is the timer handler: advance the element one column, clear the
// changed flag and redraw.
func (d *Driver) Step() {
	var snap state.Snapshot
	var bounced bool
	d.state.Critical(func() {
		_, _, bounced = d.state.Advance()
		snap = d.state.Snapshot()
		d.state.ClearChanged()
	})
	d.steps.Add(1)

	d.render.Render(snap.Position, snap.Direction)
	d.render.RenderStatus(snap.Speed, snap.LastKey)
	if bounced {
		d.cue.Bounce(snap.Direction)
	}
}

// Resize re-reads the display size and clamps the element into it.
func (d *Driver) Resize() {
	width, height := d.render.Size()
	d.state.Critical(func() {
		d.state.SetBounds(width, common.ElementWidth)
	})
	d.log.Debugf("Display resized to %dx%d", width, height)
}

func (d *Driver) enqueueTick() {
	select {
	case d.ticks <- struct{}{}:
	default:
	}
}

func (d *Driver) shutdown() {
	d.phase.Store(int32(Stopped))
	d.timer.Stop()
	d.input.Close()
}

func (d *Driver) Phase() Phase {
	return Phase(d.phase.Load())
}

func (d *Driver) Steps() uint64 {
	return d.steps.Load()
}

func (d *Driver) Stats() dispatch.Stats {
	return d.dispatcher.Stats()
}

func (d *Driver) History() *logging.History {
	return d.dispatcher.History()
}

func (d *Driver) State() *state.Control {
	return d.state
}

func (d *Driver) Timer() *timer.Source {
	return d.timer
}

func (d *Driver) Input() *input.Source {
	return d.input
}
