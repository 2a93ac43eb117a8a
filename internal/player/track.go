package player

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// State is the lifecycle of a [TrackPlayer].
type State int

const (
	Idle State = iota
	Loading
	Ready
	Playing
	Paused
	Retrying
	Ended
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Retrying:
		return "retrying"
	case Ended:
		return "ended"
	case Errored:
		return "errored"
	default:
		return ""
	}
}

// PlaybackState is a snapshot of a [TrackPlayer].
type PlaybackState struct {
	Track    int
	State    State
	Position float64
	Duration float64
	Retries  int
	Notice   string
}

// Fraction is the playhead position in [0, 1], or 0 while the duration is unknown.
func (s PlaybackState) Fraction() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return min(max(s.Position/s.Duration, 0), 1)
}

// TrackPlayerOptions configures a [TrackPlayer].
type TrackPlayerOptions struct {
	Loop   *Loop
	Clock  Clock
	Media  Media
	Token  *AutoplayToken
	Policy RetryPolicy
	Logger *log.Logger
	// OnChange observes every state change.
	OnChange func(PlaybackState)
	// OnAlbumEnded fires when the last track finishes.
	OnAlbumEnded func()
}

// TrackPlayer plays the tracks of one release on one media runtime.
//
// Every load gets a generation number. Media events and retry timers carry the generation they
// were created under and are dropped once it is stale, so switching tracks detaches the previous
// listeners and cancels its pending retry.
type TrackPlayer struct {
	loop   *Loop
	clock  Clock
	media  Media
	token  *AutoplayToken
	policy RetryPolicy
	logger *log.Logger

	onChange     func(PlaybackState)
	onAlbumEnded func()

	tracks []models.Track
	state  PlaybackState
	gen    uint64
	retry  Timer
	closed bool
}

// NewTrackPlayer creates an idle player over tracks.
func NewTrackPlayer(tracks []models.Track, opts TrackPlayerOptions) *TrackPlayer {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Token == nil {
		opts.Token = &AutoplayToken{}
	}
	if opts.Policy.Delays == nil {
		opts.Policy = DefaultRetryPolicy
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &TrackPlayer{
		loop:         opts.Loop,
		clock:        opts.Clock,
		media:        opts.Media,
		token:        opts.Token,
		policy:       opts.Policy,
		logger:       shared.WithLogger(opts.Logger, "component", "player"),
		onChange:     opts.OnChange,
		onAlbumEnded: opts.OnAlbumEnded,
		tracks:       append([]models.Track(nil), tracks...),
	}
}

// State returns the current snapshot.
func (p *TrackPlayer) State() PlaybackState { return p.state }

// Tracks returns the loaded track list.
func (p *TrackPlayer) Tracks() []models.Track { return p.tracks }

// Token returns the shared autoplay token.
func (p *TrackPlayer) Token() *AutoplayToken { return p.token }

func (p *TrackPlayer) set(fn func(*PlaybackState)) {
	fn(&p.state)
	if p.onChange != nil {
		p.onChange(p.state)
	}
}

// LoadTrack switches to track i. It starts playing once ready if the autoplay token is granted.
func (p *TrackPlayer) LoadTrack(i int) error {
	if p.closed {
		return fmt.Errorf("%w: player closed", shared.ErrInvalidInput)
	}
	if i < 0 || i >= len(p.tracks) {
		return fmt.Errorf("%w: track %d of %d", shared.ErrOutOfRange, i, len(p.tracks))
	}

	p.set(func(s *PlaybackState) {
		*s = PlaybackState{Track: i, State: Loading, Duration: p.tracks[i].Duration}
	})
	p.load()
	return nil
}

// load (re)starts loading the current track under a fresh generation.
func (p *TrackPlayer) load() {
	p.detach()
	gen := p.gen
	track := p.tracks[p.state.Track]

	p.logger.Debug("loading track", "track", p.state.Track, "locator", track.Locator(), "gen", gen)
	p.media.Load(track, func(ev Event) {
		p.loop.Post(func() {
			if gen != p.gen || p.closed {
				return
			}
			p.handle(ev)
		})
	})
}

// detach invalidates outstanding events and timers of the previous load.
func (p *TrackPlayer) detach() {
	p.gen++
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}
	p.media.Stop()
}

func (p *TrackPlayer) handle(ev Event) {
	switch ev.Kind {
	case EventReady:
		p.ready(ev.Duration)
	case EventDuration:
		if ev.Duration > 0 {
			p.set(func(s *PlaybackState) { s.Duration = ev.Duration })
		}
	case EventTime:
		p.set(func(s *PlaybackState) { s.Position = ev.Position })
	case EventEnded:
		p.ended()
	case EventError:
		p.failed(ev.Err)
	}
}

func (p *TrackPlayer) ready(duration float64) {
	if p.state.State != Loading {
		return
	}
	p.set(func(s *PlaybackState) {
		s.State = Ready
		s.Notice = ""
		s.Retries = 0
		if duration > 0 {
			s.Duration = duration
		}
	})

	if p.token.Granted() {
		p.start()
	}
}

// start asks the runtime to play, falling back to Paused when it refuses.
func (p *TrackPlayer) start() {
	if err := p.media.Play(); err != nil {
		notice := "Playback was blocked; press play to start"
		if !errors.Is(err, shared.ErrMediaBlocked) {
			notice = fmt.Sprintf("Playback failed: %v", err)
		}
		p.set(func(s *PlaybackState) {
			s.State = Paused
			s.Notice = notice
		})
		return
	}
	p.set(func(s *PlaybackState) {
		s.State = Playing
		s.Notice = ""
	})
}

// Play is the user gesture. It grants the autoplay token and starts or resumes playback.
func (p *TrackPlayer) Play() {
	if p.closed {
		return
	}
	p.token.grant()

	switch p.state.State {
	case Ready, Paused:
		p.start()
	case Ended:
		_ = p.LoadTrack(0)
	case Errored:
		p.set(func(s *PlaybackState) {
			s.State = Loading
			s.Retries = 0
			s.Notice = ""
		})
		p.load()
	case Idle:
		if len(p.tracks) > 0 {
			_ = p.LoadTrack(0)
		}
	}
	// Loading and Retrying start on their own once ready now that the token is granted.
}

// Pause pauses playback. The autoplay token is left as is.
func (p *TrackPlayer) Pause() {
	if p.state.State != Playing {
		return
	}
	p.media.Pause()
	p.set(func(s *PlaybackState) { s.State = Paused })
}

// Toggle plays when paused and pauses when playing.
func (p *TrackPlayer) Toggle() {
	if p.state.State == Playing {
		p.Pause()
		return
	}
	p.Play()
}

// Seek moves to fraction of the duration. It is a no-op, returning false, outside
// Ready/Playing/Paused or while the duration is unknown.
func (p *TrackPlayer) Seek(fraction float64) bool {
	switch p.state.State {
	case Ready, Playing, Paused:
	default:
		return false
	}
	if p.state.Duration <= 0 {
		return false
	}

	pos := min(max(fraction, 0), 1) * p.state.Duration
	p.media.Seek(pos)
	p.set(func(s *PlaybackState) { s.Position = pos })
	return true
}

// NextTrack moves to the following track, ending the album after the last one.
func (p *TrackPlayer) NextTrack() {
	if p.state.Track+1 < len(p.tracks) {
		_ = p.LoadTrack(p.state.Track + 1)
		return
	}
	p.finish()
}

// PreviousTrack restarts the current track when past its first seconds, else moves back one.
func (p *TrackPlayer) PreviousTrack() {
	i := p.state.Track
	if p.state.Position < 3 && i > 0 {
		i--
	}
	_ = p.LoadTrack(i)
}

func (p *TrackPlayer) ended() {
	if p.state.State != Playing {
		return
	}
	p.NextTrack()
}

// finish stops on the last track and reports the album as done.
func (p *TrackPlayer) finish() {
	p.detach()
	p.set(func(s *PlaybackState) {
		s.State = Ended
		s.Position = s.Duration
	})
	if p.onAlbumEnded != nil {
		p.onAlbumEnded()
	}
}

func (p *TrackPlayer) failed(err error) {
	switch p.state.State {
	case Loading, Ready, Playing, Paused:
	default:
		return
	}

	attempt := p.state.Retries + 1
	delay, ok := p.policy.Delay(attempt)
	if !Retryable(err) || !ok {
		p.logger.Warn("track failed", "track", p.state.Track, "retries", p.state.Retries, "err", err)
		p.detach()
		p.set(func(s *PlaybackState) {
			s.State = Errored
			s.Notice = fmt.Sprintf("Track unavailable: %v", err)
		})
		return
	}

	p.logger.Info("track not ready, retrying", "track", p.state.Track, "attempt", attempt, "delay", delay, "err", err)
	p.detach()
	gen := p.gen
	p.set(func(s *PlaybackState) {
		s.State = Retrying
		s.Retries = attempt
		s.Notice = fmt.Sprintf("Preparing audio, retrying in %s", delay)
	})

	p.retry = p.clock.AfterFunc(delay, func() {
		p.loop.Post(func() {
			if gen != p.gen || p.closed || p.state.State != Retrying {
				return
			}
			p.retry = nil
			p.set(func(s *PlaybackState) { s.State = Loading })
			p.load()
		})
	})
}

// Close detaches the media runtime. The player is unusable afterwards.
func (p *TrackPlayer) Close() {
	if p.closed {
		return
	}
	p.detach()
	p.closed = true
}
