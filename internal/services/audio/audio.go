// Package audio plays a short tone when the element bounces off an edge.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
)

const sampleRate = beep.SampleRate(44100)

// Cue builds tones for bounces. Bounces off the right edge sound a fifth
// above the configured frequency.
type Cue struct {
	frequency float64
	duration  time.Duration
	play      func(beep.Streamer)
	log       log.Logger
	mu        sync.Mutex
}

// NewCue initialises the speaker.
func NewCue(frequency int, duration time.Duration, logger log.Logger) (*Cue, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("initialising speaker: %w", err)
	}
	c := newCue(frequency, duration, logger)
	c.play = func(s beep.Streamer) { speaker.Play(s) }
	return c, nil
}

func newCue(frequency int, duration time.Duration, logger log.Logger) *Cue {
	return &Cue{
		frequency: float64(frequency),
		duration:  duration,
		log:       logger,
	}
}

// Tone is the streamer played for a bounce that left the element facing d.
func (c *Cue) Tone(d state.Direction) (beep.Streamer, error) {
	freq := c.frequency
	if d == state.Left {
		freq = freq * 3 / 2
	}
	sine, err := generators.SineTone(sampleRate, freq)
	if err != nil {
		return nil, err
	}
	return beep.Take(sampleRate.N(c.duration), sine), nil
}

func (c *Cue) Bounce(d state.Direction) {
	tone, err := c.Tone(d)
	if err != nil {
		c.log.Warnf("Bounce tone: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.play != nil {
		c.play(tone)
	}
}

// Close releases the speaker.
func (c *Cue) Close() {
	speaker.Close()
}
