package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// DefaultTick is how often a playing [StreamMedia] reports its position.
const DefaultTick = 500 * time.Millisecond

// Preparer checks whether the server can stream a key, starting its download if needed.
type Preparer interface {
	Prepare(ctx context.Context, key string) error
}

// StreamMedia is the terminal runtime. Cache-backed tracks are checked on the media server before
// they report ready; direct-stream tracks are ready at once. Playback advances a timeline on the
// clock and ends the track when the timeline reaches its duration. Tracks with unknown duration
// play until skipped.
type StreamMedia struct {
	preparer Preparer
	clock    Clock
	tick     time.Duration

	mu       sync.Mutex
	gen      uint64
	track    models.Track
	sink     Sink
	ready    bool
	playing  bool
	position float64
	last     time.Time
	timer    Timer
	cancel   context.CancelFunc
}

// NewStreamMedia creates a runtime. tick <= 0 selects [DefaultTick].
func NewStreamMedia(preparer Preparer, clock Clock, tick time.Duration) *StreamMedia {
	if clock == nil {
		clock = RealClock()
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &StreamMedia{preparer: preparer, clock: clock, tick: tick}
}

// Load implements [Media].
func (m *StreamMedia) Load(track models.Track, sink Sink) {
	m.mu.Lock()
	m.resetLocked()
	m.track = track
	m.sink = sink
	gen := m.gen

	if track.Key == "" || m.preparer == nil {
		m.ready = true
		m.mu.Unlock()
		sink(Event{Kind: EventReady, Duration: track.Duration})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		err := m.preparer.Prepare(ctx, track.Key)

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.ready = err == nil
		m.mu.Unlock()

		if err != nil {
			sink(Event{Kind: EventError, Err: err})
			return
		}
		sink(Event{Kind: EventReady, Duration: track.Duration})
	}()
}

// Play implements [Media].
func (m *StreamMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return fmt.Errorf("%w: media not ready", shared.ErrInvalidInput)
	}
	if m.playing {
		return nil
	}
	m.playing = true
	m.last = m.clock.Now()
	m.scheduleLocked()
	return nil
}

func (m *StreamMedia) scheduleLocked() {
	gen := m.gen
	m.timer = m.clock.AfterFunc(m.tick, func() { m.advance(gen) })
}

func (m *StreamMedia) advance(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.playing {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	m.position += now.Sub(m.last).Seconds()
	m.last = now

	sink, duration := m.sink, m.track.Duration
	if duration > 0 && m.position >= duration {
		m.position = duration
		m.playing = false
		m.timer = nil
		m.mu.Unlock()
		sink(Event{Kind: EventTime, Position: duration})
		sink(Event{Kind: EventEnded})
		return
	}

	pos := m.position
	m.scheduleLocked()
	m.mu.Unlock()
	sink(Event{Kind: EventTime, Position: pos})
}

// Pause implements [Media].
func (m *StreamMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.playing {
		return
	}
	m.position += m.clock.Now().Sub(m.last).Seconds()
	m.playing = false
	m.stopTimerLocked()
}

// Seek implements [Media].
func (m *StreamMedia) Seek(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.position = max(seconds, 0)
	m.last = m.clock.Now()
}

// Stop implements [Media].
func (m *StreamMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// Position returns the timeline position in seconds.
func (m *StreamMedia) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *StreamMedia) resetLocked() {
	m.gen++
	m.stopTimerLocked()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.sink = nil
	m.ready = false
	m.playing = false
	m.position = 0
}

func (m *StreamMedia) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
