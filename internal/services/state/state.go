// Package state holds the control state shared by the timer handler, the
// input dispatcher and the dispatch loop.
//
// Every field is stored atomically so a single read or write is always
// well defined. Sequences that must be observed together (decide that the
// speed changed, re-arm the timer, clear the changed flag) go through
// Critical, which serialises them unless the state runs Unsynchronized.
package state

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Direction of travel along the row.
type Direction int

const (
	Left  Direction = -1
	Right Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Left {
		return Right
	}
	return Left
}

// Mode selects how compound updates are serialised.
type Mode int

const (
	// Locked guards every compound update with the state mutex.
	Locked Mode = iota
	// Queued routes timer firings through the dispatch loop. Critical still
	// locks, though the lock is uncontended.
	Queued
	// Unsynchronized runs compound updates bare, reproducing the
	// check-then-act race between the timer handler and the dispatcher.
	Unsynchronized
)

func (m Mode) String() string {
	switch m {
	case Locked:
		return "locked"
	case Queued:
		return "queued"
	case Unsynchronized:
		return "unsynchronized"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "locked", "":
		return Locked, nil
	case "queued":
		return Queued, nil
	case "unsynchronized":
		return Unsynchronized, nil
	}
	return 0, fmt.Errorf("unknown sync mode %q", s)
}

// Snapshot is a consistent copy of the control state.
type Snapshot struct {
	Speed     int
	Direction Direction
	Position  int
	Changed   bool
	LastKey   byte
}

// Control is the shared control state.
type Control struct {
	mu   sync.Mutex
	mode Mode

	speed     atomic.Int64
	direction atomic.Int64
	position  atomic.Int64
	changed   atomic.Bool
	lastKey   atomic.Uint32

	// maximum position: display width minus element width, never negative
	bound atomic.Int64
}

// New creates the control state with the element at column 0 moving right.
func New(mode Mode, speed int, width int, elementWidth int) *Control {
	c := &Control{mode: mode}
	c.speed.Store(int64(speed))
	c.direction.Store(int64(Right))
	c.SetBounds(width, elementWidth)
	return c
}

func (c *Control) Mode() Mode {
	return c.mode
}

// Critical runs fn as one indivisible unit with respect to any other
// Critical call, except in Unsynchronized mode where fn runs bare.
func (c *Control) Critical(fn func()) {
	if c.mode == Unsynchronized {
		fn()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

func (c *Control) Speed() int               { return int(c.speed.Load()) }
func (c *Control) SetSpeed(speed int)       { c.speed.Store(int64(speed)) }
func (c *Control) Direction() Direction     { return Direction(c.direction.Load()) }
func (c *Control) SetDirection(d Direction) { c.direction.Store(int64(d)) }
func (c *Control) Position() int            { return int(c.position.Load()) }
func (c *Control) Changed() bool            { return c.changed.Load() }
func (c *Control) MarkChanged()             { c.changed.Store(true) }
func (c *Control) ClearChanged()            { c.changed.Store(false) }
func (c *Control) LastKey() byte            { return byte(c.lastKey.Load()) }
func (c *Control) SetLastKey(k byte)        { c.lastKey.Store(uint32(k)) }
func (c *Control) Bound() int               { return int(c.bound.Load()) }

// ToggleDirection reverses the direction of travel.
func (c *Control) ToggleDirection() Direction {
	d := c.Direction().Reverse()
	c.SetDirection(d)
	return d
}

// SetBounds recomputes the position range for a display width and clamps the
// current position into it.
func (c *Control) SetBounds(width int, elementWidth int) {
	bound := width - elementWidth
	if bound < 0 {
		bound = 0
	}
	c.bound.Store(int64(bound))
	if c.Position() > bound {
		c.position.Store(int64(bound))
	}
}

// Advance moves the element one column and reports whether the step bounced
// off an edge. The position never leaves [0, Bound()]; the direction flips
// exactly when the position reaches either end.
func (c *Control) Advance() (pos int, dir Direction, bounced bool) {
	bound := c.Bound()
	pos, dir = c.Position(), c.Direction()
	if bound == 0 {
		c.position.Store(0)
		return 0, dir, false
	}

	next := pos + int(dir)
	if next < 0 || next > bound {
		dir = dir.Reverse()
		next = pos + int(dir)
	}
	switch {
	case next >= bound:
		next = bound
		bounced = dir == Right
		dir = Left
	case next <= 0:
		next = 0
		bounced = dir == Left
		dir = Right
	}
	c.position.Store(int64(next))
	c.SetDirection(dir)
	return next, dir, bounced
}

// Snapshot copies the state. Call it inside Critical for a consistent view.
func (c *Control) Snapshot() Snapshot {
	return Snapshot{
		Speed:     c.Speed(),
		Direction: c.Direction(),
		Position:  c.Position(),
		Changed:   c.Changed(),
		LastKey:   c.LastKey(),
	}
}
