// Package logging keeps the bounded history of invariant violations the
// dispatcher tolerated, for the exit summary.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const maxEntries = 1000

// Violation records one dispatch whose request and adjustment counts
// disagreed.
type Violation struct {
	At          time.Time
	Key         byte
	Speed       int
	Requests    int
	Adjustments int
}

func (v Violation) String() string {
	return fmt.Sprintf("%s key=%q speed=%d requests=%d adjustments=%d",
		v.At.Format("15:04:05.000"), v.Key, v.Speed, v.Requests, v.Adjustments)
}

// History is safe for concurrent use.
type History struct {
	messages []Violation
	dropped  int
	sync     sync.Mutex
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Add(v Violation) {
	h.sync.Lock()
	defer h.sync.Unlock()

	h.messages = append(h.messages, v)
	if len(h.messages) > maxEntries {
		h.messages = h.messages[1:]
		h.dropped++
	}
}

func (h *History) Len() int {
	h.sync.Lock()
	defer h.sync.Unlock()
	return len(h.messages)
}

// Entries returns a copy of the retained violations, oldest first.
func (h *History) Entries() []Violation {
	h.sync.Lock()
	defer h.sync.Unlock()
	out := make([]Violation, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Clear() {
	h.sync.Lock()
	h.messages = nil
	h.dropped = 0
	h.sync.Unlock()
}

// Dump writes the retained violations one per line.
func (h *History) Dump(w io.Writer) error {
	h.sync.Lock()
	defer h.sync.Unlock()
	if h.dropped > 0 {
		if _, err := fmt.Fprintf(w, "(%d older violations dropped)\n", h.dropped); err != nil {
			return err
		}
	}
	for _, v := range h.messages {
		if _, err := fmt.Fprintln(w, v.String()); err != nil {
			return err
		}
	}
	return nil
}
