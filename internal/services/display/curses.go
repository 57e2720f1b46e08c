package display

import (
	"sync"

	gc "github.com/gbin/goncurses"

	"github.td.teradata.com/sandbox/bouncer/internal/services/common"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
	"github.td.teradata.com/sandbox/bouncer/internal/services/status"
)

// Curses renders through ncurses. Curses is not safe for concurrent use, so
// every call holds the renderer lock. Keystrokes are read from standard
// input, which curses leaves in cbreak mode without echo.
type Curses struct {
	mu   sync.Mutex
	scr  *gc.Window
	row  int
	last int
}

func NewCurses(row int) (*Curses, error) {
	scr, err := gc.Init()
	if err != nil {
		return nil, err
	}
	gc.CBreak(true)
	gc.Echo(false)
	_ = gc.Cursor(0)
	scr.Clear()
	h, _ := scr.MaxYX()
	return &Curses{scr: scr, row: clampRow(row, h), last: -1}, nil
}

func (c *Curses) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, w := c.scr.MaxYX()
	return w, h
}

func (c *Curses) Render(position int, direction state.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last >= 0 {
		c.scr.MovePrint(c.row, c.last, common.Blank)
	}
	c.scr.MovePrint(c.row, position, common.Glyph(direction))
	c.last = position
	c.scr.Refresh()
}

func (c *Curses) RenderStatus(speed int, lastKey byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, w := c.scr.MaxYX()
	c.scr.MovePrint(h-1, 0, status.SpeedText(speed)+"  ")
	c.scr.MovePrint(h-1, status.KeyColumn(w), status.KeyText(lastKey))
	c.scr.Refresh()
}

func (c *Curses) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	gc.End()
	return nil
}
