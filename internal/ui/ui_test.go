package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/platform"
	"github.com/desertthunder/tapedeck/internal/player"
)

type staticSource struct{}

func (staticSource) Tracks(_ context.Context, item models.PlaylistItem, p models.Platform) ([]models.Track, error) {
	embed, _ := item.Embed(p)
	return []models.Track{{Position: 1, Title: item.Title, URL: embed.Locator, Duration: 100}}, nil
}

// readyMedia is ready as soon as it loads.
type readyMedia struct{}

func (readyMedia) Load(track models.Track, sink player.Sink) {
	sink(player.Event{Kind: player.EventReady, Duration: track.Duration})
}
func (readyMedia) Play() error  { return nil }
func (readyMedia) Pause()       {}
func (readyMedia) Seek(float64) {}
func (readyMedia) Stop()        {}

func testItems() []models.PlaylistItem {
	embed := func(loc string) models.PlatformEmbed {
		return models.PlatformEmbed{Locator: loc, Kind: models.EmbedCollection}
	}
	return []models.PlaylistItem{
		{ID: "1", Title: "Dummy", Artist: "Portishead", Embeds: map[models.Platform]models.PlatformEmbed{
			models.PlatformBandcamp: embed("https://portishead.bandcamp.com/album/dummy"),
			models.PlatformYouTube:  embed("PLdummy"),
		}},
		{ID: "2", Title: "Maxinquaye", Artist: "Tricky", Embeds: map[models.Platform]models.PlatformEmbed{
			models.PlatformBandcamp: embed("https://tricky.bandcamp.com/album/maxinquaye"),
		}},
	}
}

func newTestModel(t *testing.T) (*Model, *player.Loop, *player.Orchestrator) {
	t.Helper()
	loop := player.NewLoop()
	updates := make(chan player.Snapshot, 1)
	items := testItems()
	orch := player.NewOrchestrator(items, player.OrchestratorOptions{
		Loop:       loop,
		Source:     staticSource{},
		NewMedia:   func(models.Platform) player.Media { return readyMedia{} },
		Enablement: platform.AllEnabled,
		OnChange:   Notifier(updates),
	})
	t.Cleanup(orch.Close)

	m := NewModel(context.Background(), loop, orch, items, updates)
	m.Init()
	flushUntil(t, loop, func() bool { return orch.Player() != nil })
	return m, loop, orch
}

func flushUntil(t *testing.T, loop *player.Loop, cond func() bool) {
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

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNotifier(t *testing.T) {
	ch := make(chan player.Snapshot, 1)
	notify := Notifier(ch)

	notify(player.Snapshot{Index: 1})
	notify(player.Snapshot{Index: 2})

	if got := <-ch; got.Index != 2 {
		t.Errorf("expected latest snapshot, got index %d", got.Index)
	}
}

func TestModel(t *testing.T) {
	t.Run("Space Plays", func(t *testing.T) {
		m, loop, orch := newTestModel(t)

		m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
		loop.Flush()

		if got := orch.Snapshot().Playback.State; got != player.Playing {
			t.Errorf("expected playing, got %s", got)
		}
		if !orch.Token().Granted() {
			t.Error("expected key press to grant autoplay")
		}
	})

	t.Run("Next Release", func(t *testing.T) {
		m, loop, orch := newTestModel(t)

		m.Update(runes("n"))
		flushUntil(t, loop, func() bool { return orch.Player() != nil })

		if got := orch.Snapshot().Index; got != 1 {
			t.Errorf("expected release 1, got %d", got)
		}
	})

	t.Run("Platform Override", func(t *testing.T) {
		m, loop, orch := newTestModel(t)

		m.Update(runes("o"))
		flushUntil(t, loop, func() bool { return orch.Player() != nil })

		s := orch.Snapshot()
		if s.Platform != models.PlatformYouTube || s.Override != models.PlatformYouTube {
			t.Errorf("expected youtube override, got %q/%q", s.Platform, s.Override)
		}
	})

	t.Run("Seek", func(t *testing.T) {
		m, loop, orch := newTestModel(t)

		m.Update(runes("."))
		loop.Flush()

		if got := orch.Snapshot().Playback.Position; got != 10 {
			t.Errorf("expected position 10, got %v", got)
		}
	})

	t.Run("Snapshot Renders", func(t *testing.T) {
		m, loop, orch := newTestModel(t)
		loop.Flush()

		_, cmd := m.Update(snapshotMsg(orch.Snapshot()))
		if cmd == nil {
			t.Error("expected to keep waiting for snapshots")
		}

		view := m.View()
		for _, want := range []string{"1/2 Portishead - Dummy", "bandcamp", "ready", "Press space"} {
			if !strings.Contains(view, want) {
				t.Errorf("view missing %q:\n%s", want, view)
			}
		}
	})

	t.Run("Quit", func(t *testing.T) {
		m, _, _ := newTestModel(t)

		_, cmd := m.Update(runes("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}
