package display

import (
	"github.com/pkg/term"
)

// TTY reads keystrokes from a terminal device in cbreak mode: no line
// buffering or echo, while signal keys such as ^C still raise signals.
type TTY struct {
	t *term.Term
}

func OpenTTY(name string) (*TTY, error) {
	t, err := term.Open(name, term.CBreakMode)
	if err != nil {
		return nil, err
	}
	return &TTY{t: t}, nil
}

func (t *TTY) Read(p []byte) (int, error) {
	return t.t.Read(p)
}

// Close restores the original terminal attributes.
func (t *TTY) Close() error {
	if err := t.t.Restore(); err != nil {
		_ = t.t.Close()
		return err
	}
	return t.t.Close()
}
