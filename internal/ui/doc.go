// Package ui implements the terminal player using bubbletea's Elm architecture.
//
// The (view) [Model] lists the releases of a playlist above a now playing panel that shows the
// selected platform, the current track, a progress bar and any notice the player raised.
//
// Player state is owned by the player loop, not by bubbletea. Key presses are posted to the loop
// as callbacks, and the orchestrator pushes snapshots back through a channel filled by [Notifier].
// The model waits on that channel with a command, the same way long-running work reports progress.
//
// Keyboard navigation uses vim-style bindings (j/k, h/l, space, n/p, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
