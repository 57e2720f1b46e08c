package display

import (
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.td.teradata.com/sandbox/bouncer/internal/services/common"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
	"github.td.teradata.com/sandbox/bouncer/internal/services/status"
)

var (
	elementStyle = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	statusStyle  = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	keyStyle     = tcell.StyleDefault.Foreground(tcell.ColorTeal)
)

// Screen renders through tcell and doubles as the keystroke reader, since
// tcell owns the terminal input once initialised.
type Screen struct {
	mu       sync.Mutex
	screen   tcell.Screen
	row      int
	last     int
	onResize func()
}

// NewScreen initialises the terminal screen.
func NewScreen(row int) (*Screen, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return NewScreenFrom(s, row), nil
}

// NewScreenFrom wraps an initialised tcell screen.
func NewScreenFrom(s tcell.Screen, row int) *Screen {
	s.HideCursor()
	s.Clear()
	_, h := s.Size()
	return &Screen{screen: s, row: clampRow(row, h), last: -1}
}

// OnResize registers a callback run after the screen is resized.
func (s *Screen) OnResize(fn func()) {
	s.mu.Lock()
	s.onResize = fn
	s.mu.Unlock()
}

func (s *Screen) Size() (int, int) {
	return s.screen.Size()
}

func (s *Screen) Render(position int, direction state.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last >= 0 {
		s.put(s.last, s.row, common.Blank, tcell.StyleDefault)
	}
	s.put(position, s.row, common.Glyph(direction), elementStyle)
	s.last = position
	s.screen.Show()
}

func (s *Screen) RenderStatus(speed int, lastKey byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, h := s.screen.Size()
	s.put(0, h-1, status.SpeedText(speed)+"  ", statusStyle)
	s.put(status.KeyColumn(w), h-1, status.KeyText(lastKey), keyStyle)
	s.screen.Show()
}

func (s *Screen) Close() error {
	s.screen.Fini()
	return nil
}

// Read blocks for the next key press and returns it as one byte. ^C and
// Escape read as 'q'. Non-ASCII runes are skipped. Once the screen is
// finalised Read returns io.EOF.
func (s *Screen) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		switch ev := s.screen.PollEvent().(type) {
		case nil:
			return 0, io.EOF
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyCtrlC, tcell.KeyEscape:
				p[0] = 'q'
				return 1, nil
			case tcell.KeyRune:
				if r := ev.Rune(); r < 0x80 {
					p[0] = byte(r)
					return 1, nil
				}
			}
		case *tcell.EventResize:
			s.resized()
		}
	}
}

func (s *Screen) resized() {
	s.mu.Lock()
	_, h := s.screen.Size()
	s.row = clampRow(s.row, h)
	s.last = -1
	s.screen.Clear()
	s.screen.Sync()
	fn := s.onResize
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Screen) put(x int, y int, text string, style tcell.Style) {
	for i, r := range text {
		s.screen.SetContent(x+i, y, r, nil, style)
	}
}
