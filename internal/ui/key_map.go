package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up        key.Binding
	down      key.Binding
	enter     key.Binding
	toggle    key.Binding
	nextItem  key.Binding
	prevItem  key.Binding
	nextTrack key.Binding
	prevTrack key.Binding
	forward   key.Binding
	rewind    key.Binding
	platform  key.Binding
	help      key.Binding
	quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play release")),
		toggle:    key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "play/pause")),
		nextItem:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next release")),
		prevItem:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous release")),
		nextTrack: key.NewBinding(key.WithKeys("]", "l"), key.WithHelp("]/l", "next track")),
		prevTrack: key.NewBinding(key.WithKeys("[", "h"), key.WithHelp("[/h", "previous track")),
		forward:   key.NewBinding(key.WithKeys(".", "right"), key.WithHelp("→/.", "seek +10%")),
		rewind:    key.NewBinding(key.WithKeys(",", "left"), key.WithHelp("←/,", "seek -10%")),
		platform:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "switch platform")),
		help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggle, k.nextItem, k.nextTrack, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.toggle, k.forward, k.rewind},
		{k.nextTrack, k.prevTrack, k.nextItem, k.prevItem},
		{k.platform, k.help, k.quit},
	}
}
