package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tapedeck/internal/player"
)

// snapshotMsg carries orchestrator state into the bubbletea update loop.
type snapshotMsg player.Snapshot

// closedMsg reports that the snapshot channel was closed.
type closedMsg struct{}

var (
	_ tea.Msg = snapshotMsg{}
	_ tea.Msg = closedMsg{}
)

// Notifier returns an orchestrator change observer that forwards snapshots to ch without
// blocking. When the UI falls behind, only the latest snapshot is kept.
func Notifier(ch chan player.Snapshot) func(player.Snapshot) {
	return func(s player.Snapshot) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}
}

func waitForSnapshot(ch <-chan player.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(s)
	}
}
