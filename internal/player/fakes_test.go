package player

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tapedeck/internal/models"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward and runs every timer that came due, in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case !t.at.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// fakeMedia records calls and lets tests emit events through the current sink.
type fakeMedia struct {
	mu      sync.Mutex
	loads   []models.Track
	sink    Sink
	plays   int
	pauses  int
	stops   int
	seeks   []float64
	playErr error
}

func (m *fakeMedia) Load(track models.Track, sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, track)
	m.sink = sink
}

func (m *fakeMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playErr != nil {
		return m.playErr
	}
	m.plays++
	return nil
}

func (m *fakeMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
}

func (m *fakeMedia) Seek(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, seconds)
}

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.sink = nil
}

func (m *fakeMedia) currentSink() Sink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink
}

func (m *fakeMedia) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loads)
}

func (m *fakeMedia) playCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays
}

// emit sends ev through the current sink. Events after Stop are lost, like a detached listener.
func (m *fakeMedia) emit(ev Event) {
	if sink := m.currentSink(); sink != nil {
		sink(ev)
	}
}

// fakeSource returns canned tracks per item ID.
type fakeSource struct {
	mu     sync.Mutex
	tracks map[string][]models.Track
	errs   map[string]error
	calls  []models.Platform
}

func (s *fakeSource) Tracks(ctx context.Context, item models.PlaylistItem, p models.Platform) ([]models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	if err := s.errs[item.ID]; err != nil {
		return nil, err
	}
	if tracks, ok := s.tracks[item.ID+"/"+string(p)]; ok {
		return tracks, nil
	}
	return s.tracks[item.ID], nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// flushUntil drains the loop until cond holds. Track loads complete on other goroutines.
func flushUntil(t *testing.T, loop *Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		loop.Flush()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func tracks(n int) []models.Track {
	out := make([]models.Track, n)
	for i := range out {
		out[i] = models.Track{Position: i + 1, Title: "Track", Key: "key" + string(rune('a'+i)), Duration: 120}
	}
	return out
}
