package player

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/platform"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// Snapshot is the orchestrator state handed to the UI.
type Snapshot struct {
	Index     int
	Count     int
	Item      models.PlaylistItem
	Platform  models.Platform // empty when the item has no playable platform
	Override  models.Platform
	Available []models.Platform
	Tracks    []models.Track
	Playback  PlaybackState
	Loading   bool
	Autoplay  bool
	Notice    string
}

// OrchestratorOptions configures an [Orchestrator].
type OrchestratorOptions struct {
	Loop       *Loop
	Clock      Clock
	Source     TrackSource
	NewMedia   MediaFactory
	Policy     RetryPolicy
	Enablement platform.Enablement
	Logger     *log.Logger
	// OnChange observes every state change, on the loop.
	OnChange func(Snapshot)
}

// Orchestrator sequences the items of a playlist.
//
// Each item is played by a fresh [TrackPlayer] on the platform the selector picks. All of those
// players share one [AutoplayToken], so after the first play gesture later albums start on their
// own. Next and Previous wrap around; an album ending moves to the next item and skips items
// that cannot be played, giving up after one full pass.
type Orchestrator struct {
	loop     *Loop
	clock    Clock
	source   TrackSource
	newMedia MediaFactory
	policy   RetryPolicy
	logger   *log.Logger
	onChange func(Snapshot)

	selector platform.Selector
	token    *AutoplayToken

	items    []models.PlaylistItem
	index    int
	enabled  platform.Enablement
	override models.Platform

	current     models.Platform
	player      *TrackPlayer
	tracks      []models.Track
	loading     bool
	pendingPlay bool
	notice      string
	gen         uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator over items. Call [Orchestrator.Start] on the loop to
// load the first item.
func NewOrchestrator(items []models.PlaylistItem, opts OrchestratorOptions) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Policy.Delays == nil {
		opts.Policy = DefaultRetryPolicy
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		loop:     opts.Loop,
		clock:    opts.Clock,
		source:   opts.Source,
		newMedia: opts.NewMedia,
		policy:   opts.Policy,
		logger:   shared.WithLogger(opts.Logger, "component", "orchestrator"),
		onChange: opts.OnChange,
		token:    &AutoplayToken{},
		items:    append([]models.PlaylistItem(nil), items...),
		enabled:  opts.Enablement,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Token returns the autoplay token shared by every player this orchestrator builds.
func (o *Orchestrator) Token() *AutoplayToken { return o.token }

// Player returns the player of the current item, if it is loaded.
func (o *Orchestrator) Player() *TrackPlayer { return o.player }

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	s := Snapshot{
		Index:    o.index,
		Count:    len(o.items),
		Platform: o.current,
		Override: o.override,
		Tracks:   o.tracks,
		Loading:  o.loading,
		Autoplay: o.token.Granted(),
		Notice:   o.notice,
	}
	if len(o.items) > 0 {
		s.Item = o.items[o.index]
		s.Available = o.selector.Available(s.Item, o.enabled)
	}
	if o.player != nil {
		s.Playback = o.player.State()
		if s.Notice == "" {
			s.Notice = s.Playback.Notice
		}
	}
	return s
}

func (o *Orchestrator) changed() {
	if o.onChange != nil {
		o.onChange(o.Snapshot())
	}
}

// Start loads the current item without playing it.
func (o *Orchestrator) Start() {
	o.activate(false, 0)
}

// Select jumps to item i.
func (o *Orchestrator) Select(i int) error {
	if i < 0 || i >= len(o.items) {
		return fmt.Errorf("%w: item %d of %d", shared.ErrOutOfRange, i, len(o.items))
	}
	o.index = i
	o.override = ""
	o.activate(false, 0)
	return nil
}

// Next moves to the following item, wrapping to the first.
func (o *Orchestrator) Next() {
	if len(o.items) == 0 {
		return
	}
	o.index = (o.index + 1) % len(o.items)
	o.override = ""
	o.activate(false, 0)
}

// Previous moves to the preceding item, wrapping to the last.
func (o *Orchestrator) Previous() {
	if len(o.items) == 0 {
		return
	}
	o.index = (o.index - 1 + len(o.items)) % len(o.items)
	o.override = ""
	o.activate(false, 0)
}

// albumEnded advances automatically, skipping unplayable items.
func (o *Orchestrator) albumEnded() {
	if len(o.items) == 0 {
		return
	}
	o.logger.Debug("album ended", "index", o.index)
	o.index = (o.index + 1) % len(o.items)
	o.override = ""
	o.activate(true, 0)
}

// SetEnablement applies new platform switches, re-selecting the current item's platform.
func (o *Orchestrator) SetEnablement(e platform.Enablement) {
	o.enabled = e
	o.reselect()
}

// SetOverride forces platform p for the current item. An empty platform clears the override.
// An override that is not playable is kept but ignored by the selector.
func (o *Orchestrator) SetOverride(p models.Platform) error {
	if p != "" && !p.Valid() {
		return fmt.Errorf("%w: platform %q", shared.ErrInvalidArgument, p)
	}
	o.override = p
	o.reselect()
	return nil
}

func (o *Orchestrator) reselect() {
	if len(o.items) == 0 {
		return
	}
	p, ok := o.selector.Choose(o.items[o.index], o.enabled, o.override)
	if ok && p == o.current && (o.player != nil || o.loading) {
		o.changed()
		return
	}
	o.activate(false, 0)
}

// teardown drops the current player and invalidates in-flight track loads.
func (o *Orchestrator) teardown() {
	o.gen++
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	o.tracks = nil
	o.loading = false
	o.current = ""
}

func (o *Orchestrator) activate(auto bool, skipped int) {
	o.teardown()
	o.notice = ""

	if len(o.items) == 0 {
		o.notice = "Playlist is empty"
		o.changed()
		return
	}

	item := o.items[o.index]
	p, ok := o.selector.Choose(item, o.enabled, o.override)
	if !ok {
		o.unplayable(auto, skipped, fmt.Errorf("%w: %s", shared.ErrUnplayable, item.Label()))
		return
	}

	o.current = p
	o.loading = true
	gen := o.gen
	o.changed()

	o.logger.Debug("loading item", "index", o.index, "item", item.Label(), "platform", p)
	go func() {
		tracks, err := o.source.Tracks(o.ctx, item, p)
		o.loop.Post(func() {
			if gen != o.gen {
				return
			}
			o.loading = false
			if err == nil && len(tracks) == 0 {
				err = fmt.Errorf("%w: %s has no tracks", shared.ErrUnplayable, item.Label())
			}
			if err != nil {
				o.current = ""
				o.unplayable(auto, skipped, err)
				return
			}
			o.build(p, tracks)
		})
	}()
}

// unplayable surfaces err, or during automatic advance moves on to the next item.
func (o *Orchestrator) unplayable(auto bool, skipped int, err error) {
	o.logger.Warn("item not playable", "index", o.index, "err", err)

	if auto && skipped+1 < len(o.items) {
		o.index = (o.index + 1) % len(o.items)
		o.override = ""
		o.activate(true, skipped+1)
		return
	}

	if auto {
		o.notice = "Nothing in this playlist can be played"
	} else {
		o.pendingPlay = false
		o.notice = fmt.Sprintf("Cannot play %s: %v", o.items[o.index].Label(), err)
	}
	o.changed()
}

func (o *Orchestrator) build(p models.Platform, tracks []models.Track) {
	var pl *TrackPlayer
	pl = NewTrackPlayer(tracks, TrackPlayerOptions{
		Loop:     o.loop,
		Clock:    o.clock,
		Media:    o.newMedia(p),
		Token:    o.token,
		Policy:   o.policy,
		Logger:   o.logger,
		OnChange: func(PlaybackState) { o.changed() },
		OnAlbumEnded: func() {
			o.loop.Post(func() {
				if o.player == pl {
					o.albumEnded()
				}
			})
		},
	})

	o.player = pl
	o.tracks = tracks

	if o.pendingPlay {
		o.pendingPlay = false
		pl.Play()
		return
	}
	_ = pl.LoadTrack(0)
}

// Play is the user play gesture. While the item is still loading it is remembered and applied
// once the player exists.
func (o *Orchestrator) Play() {
	if o.player != nil {
		o.player.Play()
		return
	}
	if o.loading {
		o.pendingPlay = true
		return
	}
	if len(o.items) > 0 && o.current == "" {
		o.pendingPlay = true
		o.activate(false, 0)
	}
}

// Pause pauses the current player.
func (o *Orchestrator) Pause() {
	o.pendingPlay = false
	if o.player != nil {
		o.player.Pause()
	}
}

// Toggle plays or pauses.
func (o *Orchestrator) Toggle() {
	if o.player != nil && o.player.State().State == Playing {
		o.Pause()
		return
	}
	o.Play()
}

// Seek forwards to the current player.
func (o *Orchestrator) Seek(fraction float64) bool {
	if o.player == nil {
		return false
	}
	return o.player.Seek(fraction)
}

// NextTrack skips to the next track of the current item.
func (o *Orchestrator) NextTrack() {
	if o.player != nil {
		o.player.NextTrack()
	}
}

// PreviousTrack moves back within the current item.
func (o *Orchestrator) PreviousTrack() {
	if o.player != nil {
		o.player.PreviousTrack()
	}
}

// Close stops playback and cancels pending track loads.
func (o *Orchestrator) Close() {
	o.teardown()
	o.cancel()
}
