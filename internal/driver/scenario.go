package driver

import (
	"context"
	"io"
	"time"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
	"github.td.teradata.com/sandbox/bouncer/internal/services/dispatch"
	"github.td.teradata.com/sandbox/bouncer/internal/services/display"
	"github.td.teradata.com/sandbox/bouncer/internal/services/logging"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
)

// Scenario replays scripted keystrokes against a headless display, to show
// the race without a terminal.
type Scenario struct {
	Keys        string
	KeyInterval time.Duration
	Speed       int
	Mode        state.Mode
	Policy      dispatch.Policy
	RaceWindow  time.Duration
	Width       int
}

// Report summarises a scenario run.
type Report struct {
	Stats   dispatch.Stats
	Steps   uint64
	Rearms  uint64
	Speed   int
	History *logging.History
	Err     error
}

// Run plays the keys followed by 'q' and returns once the loop stops.
func (sc Scenario) Run(ctx context.Context, logger log.Logger) Report {
	width := sc.Width
	if width <= 0 {
		width = 80
	}
	r := display.NewHeadless(width, 24)
	keys := &pacedReader{keys: []byte(sc.Keys + "q"), interval: sc.KeyInterval}

	d := New(r, keys, logger, Options{
		Speed:      sc.Speed,
		Mode:       sc.Mode,
		Policy:     sc.Policy,
		RaceWindow: sc.RaceWindow,
	})
	err := d.Run(ctx)
	return Report{
		Stats:   d.Stats(),
		Steps:   d.Steps(),
		Rearms:  d.Timer().Rearms(),
		Speed:   d.State().Speed(),
		History: d.History(),
		Err:     err,
	}
}

// pacedReader yields one scripted key per read, waiting interval before
// each, then io.EOF.
type pacedReader struct {
	keys     []byte
	interval time.Duration
}

func (p *pacedReader) Read(b []byte) (int, error) {
	if len(p.keys) == 0 {
		return 0, io.EOF
	}
	if len(b) == 0 {
		return 0, nil
	}
	if p.interval > 0 {
		time.Sleep(p.interval)
	}
	b[0] = p.keys[0]
	p.keys = p.keys[1:]
	return 1, nil
}
