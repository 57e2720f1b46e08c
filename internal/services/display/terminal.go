// https://www.lihaoyi.com/post/BuildyourownCommandLinewithANSIescapecodes.html#colors
package display

import (
	"fmt"
	"io"
	"os"
	"sync"

	xterm "golang.org/x/term"

	"github.td.teradata.com/sandbox/bouncer/internal/services/common"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
	"github.td.teradata.com/sandbox/bouncer/internal/services/status"
)

const (
	Bell = "\a"

	ClearScreen = "\u001b[2J" // clears entire screen

	SetPosition = "\u001b[%d;%dH" // moves cursor to row n column m

	// Show / Hide cursor
	Show = "\u001b[?25h"
	Hide = "\u001b[?25l"
)

// Terminal renders with ANSI escape sequences.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	fd    int
	cols  int
	rows  int
	row   int
	last  int
	state *xterm.State
}

// New renders to out, which must be a terminal. The terminal state is saved
// and restored by Close.
func New(out *os.File, row int) (*Terminal, error) {
	fd := int(out.Fd())
	if !xterm.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not a terminal", out.Name())
	}
	w, h, err := xterm.GetSize(fd)
	if err != nil {
		return nil, err
	}
	s, err := xterm.GetState(fd)
	if err != nil {
		return nil, err
	}

	t := NewWriter(out, w, h, row)
	t.fd = fd
	t.state = s
	t.HideCursor()
	t.Cls()
	return t, nil
}

// NewWriter renders to any writer with a fixed size.
func NewWriter(out io.Writer, cols int, rows int, row int) *Terminal {
	return &Terminal{
		out:  out,
		fd:   -1,
		cols: cols,
		rows: rows,
		row:  clampRow(row, rows),
		last: -1,
	}
}

func clampRow(row int, rows int) int {
	if row > rows-2 {
		row = rows - 2
	}
	if row < 0 {
		row = 0
	}
	return row
}

func (t *Terminal) Size() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd >= 0 {
		if w, h, err := xterm.GetSize(t.fd); err == nil && (w != t.cols || h != t.rows) {
			t.cols, t.rows = w, h
			t.row = clampRow(t.row, h)
			t.cls()
		}
	}
	return t.cols, t.rows
}

func (t *Terminal) Render(position int, direction state.Direction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last >= 0 {
		t.printAt(common.Blank, t.last, t.row)
	}
	t.printAt(common.Glyph(direction), position, t.row)
	t.last = position
}

func (t *Terminal) RenderStatus(speed int, lastKey byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printAt(status.SpeedBlock(speed), 0, t.rows-1)
	t.printAt(status.KeyBlock(lastKey), status.KeyColumn(t.cols), t.rows-1)
}

// Close shows the cursor, leaves the cursor below the animation and
// restores the saved terminal state.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, common.Reset)
	t.at(0, t.rows-1)
	fmt.Fprint(t.out, "\r\n"+Show)
	if t.state != nil {
		return xterm.Restore(t.fd, t.state)
	}
	return nil
}

func (t *Terminal) Bell() {
	t.mu.Lock()
	fmt.Fprint(t.out, Bell)
	t.mu.Unlock()
}

func (t *Terminal) Cls() {
	t.mu.Lock()
	t.cls()
	t.mu.Unlock()
}

func (t *Terminal) HideCursor() {
	t.mu.Lock()
	fmt.Fprint(t.out, Hide)
	t.mu.Unlock()
}

func (t *Terminal) cls() {
	fmt.Fprint(t.out, ClearScreen)
	t.at(0, 0)
	t.last = -1
}

// at moves to a zero based cell; escape sequences are one based.
func (t *Terminal) at(col int, row int) bool {
	if col < 0 || col >= t.cols || row < 0 || row >= t.rows {
		return false
	}
	fmt.Fprintf(t.out, SetPosition, row+1, col+1)
	return true
}

func (t *Terminal) printAt(text string, col int, row int) {
	if t.at(col, row) {
		fmt.Fprint(t.out, text)
	}
}
