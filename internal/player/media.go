package player

import (
	"errors"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// EventKind identifies a media runtime event.
type EventKind int

const (
	EventReady EventKind = iota
	EventDuration
	EventTime
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventDuration:
		return "duration"
	case EventTime:
		return "time"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return ""
	}
}

// Event is emitted by a [Media] runtime. Duration and Position are in seconds.
type Event struct {
	Kind     EventKind
	Duration float64
	Position float64
	Err      error
}

// Sink receives media events. It may be called from any goroutine.
type Sink func(Event)

// Media is a playback runtime for one track at a time: an audio stream or an embedded widget.
type Media interface {
	// Load starts loading track and reports progress through sink until the next Load or Stop.
	Load(track models.Track, sink Sink)
	// Play starts playback. It fails with [shared.ErrMediaBlocked] when the runtime refuses to play
	// without a user gesture.
	Play() error
	Pause()
	// Seek moves the playhead to seconds.
	Seek(seconds float64)
	// Stop halts playback and detaches the current sink.
	Stop()
}

// MediaFactory builds the runtime for a platform.
type MediaFactory func(p models.Platform) Media

// Retryable reports whether a source error may clear up on its own, such as media still being
// downloaded or a dropped connection. Refusals and permanent failures are not retryable.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, shared.ErrPending), errors.Is(err, shared.ErrBusy):
		return true
	case errors.Is(err, shared.ErrSourceRestricted),
		errors.Is(err, shared.ErrCapacityUnavailable),
		errors.Is(err, shared.ErrSourceUnavailable),
		errors.Is(err, shared.ErrNotCached),
		errors.Is(err, shared.ErrInvalidKey),
		errors.Is(err, shared.ErrMediaBlocked):
		return false
	default:
		return true
	}
}
