package common

import (
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
)

// Renderer draws the moving element and the status line. Implementations are
// called from the timer goroutine and the dispatch loop at the same time.
type Renderer interface {
	// Size reports the display width and height in cells.
	Size() (width int, height int)
	// Render erases the element where it was last drawn and draws it at
	// position facing direction.
	Render(position int, direction state.Direction)
	// RenderStatus redraws the status line.
	RenderStatus(speed int, lastKey byte)
	Close() error
}

// Cue is notified when the element bounces off an edge.
type Cue interface {
	Bounce(direction state.Direction)
}

// NoCue ignores bounces.
type NoCue struct{}

func (NoCue) Bounce(state.Direction) {}
