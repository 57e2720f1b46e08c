package dispatch

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
	"github.td.teradata.com/sandbox/bouncer/internal/services/common"
	"github.td.teradata.com/sandbox/bouncer/internal/services/display"
	"github.td.teradata.com/sandbox/bouncer/internal/services/input"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
	"github.td.teradata.com/sandbox/bouncer/internal/services/timer"
)

type fakeTimer struct {
	mu      sync.Mutex
	configs []timer.Config
}

func (f *fakeTimer) Rearm(cfg timer.Config) {
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	f.mu.Unlock()
}

func (f *fakeTimer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

type fakeInput struct {
	requests int
	err      error
}

func (f *fakeInput) Request() error {
	f.requests++
	return f.err
}

type fixture struct {
	state  *state.Control
	timer  *fakeTimer
	input  *fakeInput
	render *display.Headless
}

func quietLogger() *log.CoreLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(mode state.Mode, speed int) *fixture {
	return &fixture{
		state:  state.New(mode, speed, 80, common.ElementWidth),
		timer:  &fakeTimer{},
		input:  &fakeInput{},
		render: display.NewHeadless(80, 24),
	}
}

func (f *fixture) dispatcher(opts ...Option) *Dispatcher {
	return New(f.state, f.timer, f.input, f.render, quietLogger(), opts...)
}

// tick is the timer handler's effect on the shared state.
func (f *fixture) tick() {
	f.state.Critical(func() {
		f.state.Advance()
		f.state.ClearChanged()
	})
}

// forceTick runs a timer firing concurrently and waits until it finishes or
// is evidently blocked by the dispatcher's critical section.
func forceTick(tick func()) func() {
	return func() {
		done := make(chan struct{})
		go func() {
			tick()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func key(k byte) input.Completion {
	return input.Completion{Key: k, N: 1}
}

func TestKeyTable(t *testing.T) {
	f := newFixture(state.Locked, 50)
	d := f.dispatcher()

	out, err := d.Dispatch(key('f'))
	require.NoError(t, err)
	assert.Equal(t, Continue, out)
	assert.Equal(t, 52, f.state.Speed())
	assert.Equal(t, []timer.Config{timer.ConfigFor(52)}, f.timer.configs)

	_, err = d.Dispatch(key('s'))
	require.NoError(t, err)
	assert.Equal(t, 50, f.state.Speed())

	_, err = d.Dispatch(key(' '))
	require.NoError(t, err)
	assert.Equal(t, state.Left, f.state.Direction())

	_, err = d.Dispatch(key('x'))
	require.NoError(t, err)
	assert.Equal(t, 50, f.state.Speed())
	assert.Equal(t, state.Left, f.state.Direction())
	assert.False(t, f.state.Changed())

	assert.Equal(t, 4, f.input.requests)
	assert.Equal(t, byte('x'), f.render.Frame().LastKey)
	assert.Equal(t, 50, f.render.Frame().Speed)
	assert.Equal(t, Stats{Dispatches: 4, Requests: 2, Adjustments: 2}, d.Stats())
}

func TestQuitIssuesNoFurtherRead(t *testing.T) {
	for _, k := range []byte("qQ") {
		f := newFixture(state.Locked, 50)
		d := f.dispatcher()
		out, err := d.Dispatch(key(k))
		require.NoError(t, err)
		assert.Equal(t, Quit, out)
		assert.Equal(t, 0, f.input.requests)
	}
}

func TestSpeedBounds(t *testing.T) {
	f := newFixture(state.Locked, 332)
	d := f.dispatcher()

	// 1000/332 = 3ms: one more step allowed
	_, err := d.Dispatch(key('f'))
	require.NoError(t, err)
	assert.Equal(t, 334, f.state.Speed())

	// 1000/334 = 2ms: rejected
	_, err = d.Dispatch(key('f'))
	require.NoError(t, err)
	assert.Equal(t, 334, f.state.Speed())
	assert.Equal(t, 1, f.timer.count())

	slow := newFixture(state.Locked, 4)
	d = slow.dispatcher()
	_, err = d.Dispatch(key('s'))
	require.NoError(t, err)
	assert.Equal(t, 2, slow.state.Speed())

	// 1000/2 = 500ms is still allowed by the period rule but would stop
	// the element
	_, err = d.Dispatch(key('s'))
	require.NoError(t, err)
	assert.Equal(t, 2, slow.state.Speed())

	odd := newFixture(state.Locked, 1)
	d = odd.dispatcher()
	_, err = d.Dispatch(key('s'))
	require.NoError(t, err)
	assert.Equal(t, 1, odd.state.Speed())
	assert.Equal(t, uint64(0), d.Stats().Violations)
}

func TestToggleTwiceRestoresDirection(t *testing.T) {
	f := newFixture(state.Locked, 50)
	d := f.dispatcher()
	start := f.state.Direction()
	_, _ = d.Dispatch(key(' '))
	_, _ = d.Dispatch(key(' '))
	assert.Equal(t, start, f.state.Direction())
}

func TestInvariantHoldsWhenLocked(t *testing.T) {
	for _, mode := range []state.Mode{state.Locked, state.Queued} {
		f := newFixture(mode, 50)
		d := f.dispatcher(WithInterleave(forceTick(f.tick)))

		for _, k := range []byte("ffffssffsfsf") {
			_, err := d.Dispatch(key(k))
			require.NoError(t, err, "mode %v key %q", mode, k)
		}
		st := d.Stats()
		assert.Equal(t, uint64(12), st.Requests, "mode %v", mode)
		assert.Equal(t, st.Requests, st.Adjustments, "mode %v", mode)
		assert.Equal(t, 12, f.timer.count(), "mode %v", mode)
	}
}

func TestRaceReproducedWhenUnsynchronized(t *testing.T) {
	f := newFixture(state.Unsynchronized, 50)
	d := f.dispatcher(WithInterleave(forceTick(f.tick)))

	out, err := d.Dispatch(key('f'))
	require.Error(t, err)
	assert.Equal(t, Abort, out)
	assert.True(t, errors.Is(err, ErrInvariantViolation))

	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, byte('f'), inv.Key)
	assert.Equal(t, 1, inv.Requests)
	assert.Equal(t, 0, inv.Adjustments)

	// the speed changed but the timer was never re-armed
	assert.Equal(t, 52, f.state.Speed())
	assert.Equal(t, 0, f.timer.count())
	assert.Equal(t, 0, f.input.requests)
}

func TestTolerantPolicyRecordsViolations(t *testing.T) {
	f := newFixture(state.Unsynchronized, 50)
	d := f.dispatcher(WithPolicy(Tolerant), WithInterleave(forceTick(f.tick)))

	for _, k := range []byte("fsf ") {
		out, err := d.Dispatch(key(k))
		require.NoError(t, err)
		assert.Equal(t, Continue, out)
	}
	st := d.Stats()
	assert.Equal(t, uint64(3), st.Requests)
	assert.Equal(t, uint64(0), st.Adjustments)
	assert.Equal(t, uint64(3), st.Violations)
	assert.Equal(t, 4, f.input.requests)

	entries := d.History().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, byte('s'), entries[1].Key)
	assert.Equal(t, 1, entries[1].Requests)
}

func TestReadErrorReissuesRequest(t *testing.T) {
	f := newFixture(state.Locked, 50)
	d := f.dispatcher()

	out, err := d.Dispatch(input.Completion{Err: errors.New("device gone")})
	require.NoError(t, err)
	assert.Equal(t, Continue, out)
	assert.Equal(t, 1, f.input.requests)
	assert.Equal(t, uint64(1), d.Stats().ReadErrors)
}

func TestEndOfInputStops(t *testing.T) {
	f := newFixture(state.Locked, 50)
	d := f.dispatcher()

	out, err := d.Dispatch(input.Completion{Err: io.EOF})
	require.NoError(t, err)
	assert.Equal(t, EndOfInput, out)
	assert.Equal(t, 0, f.input.requests)
}

func TestRequestFailureIsReturned(t *testing.T) {
	f := newFixture(state.Locked, 50)
	f.input.err = input.ErrReadInFlight
	d := f.dispatcher()

	_, err := d.Dispatch(key(' '))
	assert.ErrorIs(t, err, input.ErrReadInFlight)
}

func TestRaceWindowOption(t *testing.T) {
	f := newFixture(state.Locked, 50)
	d := f.dispatcher(WithRaceWindow(5 * time.Millisecond))

	start := time.Now()
	_, err := d.Dispatch(key('f'))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("tolerant")
	require.NoError(t, err)
	assert.Equal(t, Tolerant, p)
	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailFast, p)
	_, err = ParsePolicy("panic")
	assert.Error(t, err)
}
