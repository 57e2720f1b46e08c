package input

import (
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
)

func quietLogger() *log.CoreLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func waitReady(t *testing.T, s *Source) {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(time.Second):
		t.Fatal("no completion signalled")
	}
}

// countingReader records how many reads run at once.
type countingReader struct {
	r       io.Reader
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (c *countingReader) Read(p []byte) (int, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return c.r.Read(p)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestRequestCompleteCycle(t *testing.T) {
	s := New(strings.NewReader("fs"), quietLogger())
	s.Start()
	defer s.Close()

	for _, want := range []byte("fs") {
		require.NoError(t, s.Request())
		waitReady(t, s)
		c, err := s.Complete()
		require.NoError(t, err)
		assert.Equal(t, want, c.Key)
		assert.Equal(t, 1, c.N)
		assert.NoError(t, c.Err)
	}
	assert.Equal(t, uint64(2), s.Issued())
}

func TestOnlyOneRequestOutstanding(t *testing.T) {
	s := New(strings.NewReader("abc"), quietLogger())
	require.NoError(t, s.Request())
	assert.True(t, s.Outstanding())
	assert.ErrorIs(t, s.Request(), ErrReadInFlight)

	s.Start()
	defer s.Close()
	waitReady(t, s)

	// completed but not consumed: still outstanding
	assert.ErrorIs(t, s.Request(), ErrReadInFlight)
	_, err := s.Complete()
	require.NoError(t, err)
	assert.False(t, s.Outstanding())
	assert.NoError(t, s.Request())
}

func TestReadsNeverOverlap(t *testing.T) {
	r := &countingReader{r: strings.NewReader(strings.Repeat("x", 20))}
	s := New(r, quietLogger())
	s.Start()
	defer s.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Request())
		waitReady(t, s)
		_, err := s.Complete()
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), r.maxSeen.Load())
}

func TestCompleteWithoutCompletion(t *testing.T) {
	s := New(strings.NewReader(""), quietLogger())
	_, err := s.Complete()
	assert.ErrorIs(t, err, ErrNoCompletion)
}

func TestReadErrorIsReported(t *testing.T) {
	boom := errors.New("boom")
	s := New(failingReader{err: boom}, quietLogger())
	s.Start()
	defer s.Close()

	require.NoError(t, s.Request())
	waitReady(t, s)
	c, err := s.Complete()
	require.NoError(t, err)
	assert.ErrorIs(t, c.Err, boom)

	// the source stays live after an error
	require.NoError(t, s.Request())
	waitReady(t, s)
	c, err = s.Complete()
	require.NoError(t, err)
	assert.ErrorIs(t, c.Err, boom)
}

func TestEndOfInput(t *testing.T) {
	s := New(strings.NewReader("q"), quietLogger())
	s.Start()
	defer s.Close()

	require.NoError(t, s.Request())
	waitReady(t, s)
	c, _ := s.Complete()
	assert.Equal(t, byte('q'), c.Key)
	assert.NoError(t, c.Err)

	require.NoError(t, s.Request())
	waitReady(t, s)
	c, _ = s.Complete()
	assert.ErrorIs(t, c.Err, io.EOF)
}

func TestClosedSourceRefusesRequests(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := New(pr, quietLogger())
	s.Start()

	require.NoError(t, s.Request())
	s.Close()
	assert.ErrorIs(t, s.Request(), ErrClosed)

	// the blocked read finishes after close and its completion is dropped
	go pw.Write([]byte("f"))
	select {
	case <-s.Ready():
		t.Fatal("completion delivered after close")
	case <-time.After(20 * time.Millisecond):
	}
}
