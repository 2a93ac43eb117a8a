package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/tapedeck/internal/models"
)

var _ list.Item = releaseItem{}

// releaseItem wraps [models.PlaylistItem] to implement [list.Item].
type releaseItem struct {
	item models.PlaylistItem
}

func (i releaseItem) FilterValue() string { return i.item.Label() }
func (i releaseItem) Title() string       { return i.item.Label() }
func (i releaseItem) Description() string {
	var platforms []string
	for _, p := range models.Platforms {
		if _, ok := i.item.Embed(p); ok {
			platforms = append(platforms, p.String())
		}
	}

	desc := "no media found"
	if len(platforms) > 0 {
		desc = strings.Join(platforms, ", ")
	}
	if i.item.ReleaseType != "" {
		desc = fmt.Sprintf("%s • %s", i.item.ReleaseType, desc)
	}
	return desc
}

func releaseItems(items []models.PlaylistItem) []list.Item {
	out := make([]list.Item, len(items))
	for i, item := range items {
		out[i] = releaseItem{item: item}
	}
	return out
}
