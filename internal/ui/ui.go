package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tapedeck/internal/formatter"
	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/player"
)

// seekStep is the playhead jump of the seek keys, as a fraction of the track.
const seekStep = 0.1

// Model represents the TUI application state.
//
// The model never touches the orchestrator directly: key presses are posted to the player loop
// and state comes back as snapshots.
type Model struct {
	ctx      context.Context
	loop     *player.Loop
	orch     *player.Orchestrator
	updates  <-chan player.Snapshot
	snap     player.Snapshot
	releases list.Model
	bar      progress.Model
	help     help.Model
	keys     keyMap
	width    int
	height   int
}

// NewModel creates a new TUI model. updates must be fed by [Notifier] from the orchestrator's
// OnChange hook.
func NewModel(ctx context.Context, loop *player.Loop, orch *player.Orchestrator, items []models.PlaylistItem, updates <-chan player.Snapshot) *Model {
	releases := list.New(releaseItems(items), list.NewDefaultDelegate(), 0, 0)
	releases.Title = "Playlist"
	releases.SetShowHelp(false)

	return &Model{
		ctx:      ctx,
		loop:     loop,
		orch:     orch,
		updates:  updates,
		releases: releases,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init loads the first release and starts listening for state changes.
func (m *Model) Init() tea.Cmd {
	m.post(m.orch.Start)
	return waitForSnapshot(m.updates)
}

// post runs fn on the player loop.
func (m *Model) post(fn func()) {
	m.loop.Post(fn)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.releases.SetSize(msg.Width-4, max(msg.Height-12, 4))
		m.bar.Width = max(msg.Width-20, 10)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case snapshotMsg:
		m.snap = player.Snapshot(msg)
		if m.snap.Count > 0 && m.releases.Index() != m.snap.Index {
			m.releases.Select(m.snap.Index)
		}
		return m, waitForSnapshot(m.updates)

	case closedMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.releases, cmd = m.releases.Update(msg)
	return m, cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.releases.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.releases, cmd = m.releases.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.enter):
		i := m.releases.Index()
		m.post(func() {
			if i != m.orch.Snapshot().Index {
				_ = m.orch.Select(i)
			}
			m.orch.Play()
		})
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		m.post(m.orch.Toggle)
		return m, nil
	case key.Matches(msg, m.keys.nextItem):
		m.post(m.orch.Next)
		return m, nil
	case key.Matches(msg, m.keys.prevItem):
		m.post(m.orch.Previous)
		return m, nil
	case key.Matches(msg, m.keys.nextTrack):
		m.post(m.orch.NextTrack)
		return m, nil
	case key.Matches(msg, m.keys.prevTrack):
		m.post(m.orch.PreviousTrack)
		return m, nil
	case key.Matches(msg, m.keys.forward):
		m.seek(seekStep)
		return m, nil
	case key.Matches(msg, m.keys.rewind):
		m.seek(-seekStep)
		return m, nil
	case key.Matches(msg, m.keys.platform):
		m.post(m.cyclePlatform)
		return m, nil
	}

	var cmd tea.Cmd
	m.releases, cmd = m.releases.Update(msg)
	return m, cmd
}

func (m *Model) seek(delta float64) {
	m.post(func() {
		s := m.orch.Snapshot().Playback
		m.orch.Seek(s.Fraction() + delta)
	})
}

// cyclePlatform overrides the current release with the next available platform. Runs on the loop.
func (m *Model) cyclePlatform() {
	s := m.orch.Snapshot()
	if len(s.Available) < 2 {
		return
	}
	next := s.Available[0]
	for i, p := range s.Available {
		if p == s.Platform {
			next = s.Available[(i+1)%len(s.Available)]
			break
		}
	}
	_ = m.orch.SetOverride(next)
}

// View renders the playlist and the now playing panel.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.releases.View())
	b.WriteString("\n")
	b.WriteString(styles.panel.Render(m.renderNowPlaying()))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderNowPlaying() string {
	s := m.snap
	if s.Count == 0 {
		return styles.warn.Render("Playlist is empty")
	}

	var lines []string
	title := fmt.Sprintf("%d/%d %s", s.Index+1, s.Count, s.Item.Label())
	lines = append(lines, styles.active.Render(title))

	switch {
	case s.Loading:
		lines = append(lines, styles.help.Render(fmt.Sprintf("Loading from %s...", s.Platform)))
	case s.Platform == "":
		lines = append(lines, styles.err.Render("Not playable"))
	default:
		lines = append(lines, m.renderPlayback(s))
	}

	if s.Notice != "" {
		lines = append(lines, styles.warn.Render(s.Notice))
	}
	if !s.Autoplay {
		lines = append(lines, styles.help.Render("Press space to start playback"))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderPlayback(s player.Snapshot) string {
	pb := s.Playback
	track := "-"
	if pb.Track < len(s.Tracks) {
		t := s.Tracks[pb.Track]
		track = fmt.Sprintf("%d/%d %s", pb.Track+1, len(s.Tracks), t.Title)
	}

	state := pb.State.String()
	switch pb.State {
	case player.Playing:
		state = styles.ok.Render(state)
	case player.Errored:
		state = styles.err.Render(state)
	case player.Retrying:
		state = styles.warn.Render(fmt.Sprintf("%s (%d)", state, pb.Retries))
	}

	platform := s.Platform.String()
	if s.Override != "" {
		platform += " (override)"
	}

	times := fmt.Sprintf("%s / %s", formatter.FormatDuration(pb.Position), formatter.FormatDuration(pb.Duration))
	return fmt.Sprintf("%s • %s • %s\n%s %s", track, platform, state, m.bar.ViewAs(pb.Fraction()), times)
}

// Run drives the player loop and the terminal program until the user quits or ctx is done.
func Run(ctx context.Context, loop *player.Loop, orch *player.Orchestrator, items []models.PlaylistItem, updates <-chan player.Snapshot) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go loop.Run(ctx)

	program := tea.NewProgram(NewModel(ctx, loop, orch, items, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	_ = loop.Call(ctx, orch.Close)
	return err
}
