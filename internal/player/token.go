package player

// AutoplayToken records that the user has interacted with playback.
//
// One token is shared by reference between the orchestrator and every [TrackPlayer] it builds, so
// a gesture on one album lets the next album start on its own. Only [TrackPlayer.Play] grants it
// and nothing revokes it. The token is owned by the loop and is not safe for concurrent use.
type AutoplayToken struct {
	granted bool
}

// Granted reports whether playback may start without a gesture.
func (t *AutoplayToken) Granted() bool { return t != nil && t.granted }

func (t *AutoplayToken) grant() { t.granted = true }
