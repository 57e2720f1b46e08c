// Package input reads keystrokes one byte at a time with completion
// signalled on a channel rather than returned to the caller.
//
// At most one read request is outstanding. A request is issued with
// Request, its completion is announced on Ready, and the result is taken
// with Complete, which also retires the request so the next one may be
// issued.
package input

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
)

var (
	ErrReadInFlight = errors.New("a read request is already outstanding")
	ErrNoCompletion = errors.New("no completed read to consume")
	ErrClosed       = errors.New("input source closed")
)

// Completion is the outcome of one read request.
type Completion struct {
	Key byte
	N   int
	Err error
}

// Source serves single-byte read requests against r on one goroutine.
type Source struct {
	r   io.Reader
	log log.Logger

	requests chan struct{}
	ready    chan struct{}
	done     chan struct{}

	mu        sync.Mutex
	result    Completion
	completed bool

	inFlight atomic.Bool
	closed   atomic.Bool
	issued   atomic.Uint64
	once     sync.Once
	started  atomic.Bool
}

func New(r io.Reader, logger log.Logger) *Source {
	return &Source{
		r:        r,
		log:      logger,
		requests: make(chan struct{}, 1),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the reader goroutine.
func (s *Source) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.serve()
	}
}

// Request issues the next read. It fails while a previous request has not
// been consumed through Complete.
func (s *Source) Request() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrReadInFlight
	}
	s.issued.Add(1)
	s.requests <- struct{}{}
	return nil
}

// Ready is signalled once per completed request. It is the pending-input
// flag: the dispatch loop blocks on it and clears it by receiving.
func (s *Source) Ready() <-chan struct{} {
	return s.ready
}

// Complete takes the result of the finished request and retires it.
func (s *Source) Complete() (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.completed {
		return Completion{}, ErrNoCompletion
	}
	c := s.result
	s.result = Completion{}
	s.completed = false
	s.inFlight.Store(false)
	return c, nil
}

// Outstanding reports whether a request is in flight or awaiting Complete.
func (s *Source) Outstanding() bool {
	return s.inFlight.Load()
}

// Issued counts accepted read requests.
func (s *Source) Issued() uint64 {
	return s.issued.Load()
}

// Close stops serving requests. A read already blocked in the underlying
// reader is not interrupted; its completion is dropped.
func (s *Source) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
}

func (s *Source) serve() {
	buf := make([]byte, 1)
	for {
		select {
		case <-s.done:
			return
		case <-s.requests:
		}

		n, err := s.r.Read(buf)
		if n == 0 && err == nil {
			// a reader may return 0, nil; treat as no character this cycle
			err = io.ErrNoProgress
		}
		if s.closed.Load() {
			if s.log != nil {
				s.log.Debugf("Dropping read completion after close")
			}
			return
		}

		s.mu.Lock()
		s.result = Completion{N: n, Err: err}
		if n > 0 {
			s.result.Key = buf[0]
			if err == io.EOF {
				// the byte is valid; report EOF with the next request
				s.result.Err = nil
			}
		}
		s.completed = true
		s.mu.Unlock()

		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}
