package display

import (
	"sync"

	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
)

// Frame is what a Headless renderer last drew.
type Frame struct {
	Position  int
	Direction state.Direction
	Speed     int
	LastKey   byte
}

// Headless draws nothing and remembers the last frame. It backs the race
// scenario and tests.
type Headless struct {
	mu      sync.Mutex
	cols    int
	rows    int
	frame   Frame
	renders int
	status  int
}

func NewHeadless(cols int, rows int) *Headless {
	return &Headless{cols: cols, rows: rows}
}

func (h *Headless) Size() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cols, h.rows
}

func (h *Headless) SetSize(cols int, rows int) {
	h.mu.Lock()
	h.cols, h.rows = cols, rows
	h.mu.Unlock()
}

func (h *Headless) Render(position int, direction state.Direction) {
	h.mu.Lock()
	h.frame.Position, h.frame.Direction = position, direction
	h.renders++
	h.mu.Unlock()
}

func (h *Headless) RenderStatus(speed int, lastKey byte) {
	h.mu.Lock()
	h.frame.Speed, h.frame.LastKey = speed, lastKey
	h.status++
	h.mu.Unlock()
}

func (h *Headless) Close() error {
	return nil
}

func (h *Headless) Frame() Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame
}

// Counts returns how many element and status draws were made.
func (h *Headless) Counts() (renders int, statuses int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renders, h.status
}
