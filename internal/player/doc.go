// Package player sequences catalog releases across the direct-stream and cache-backed platforms.
//
// # Event Loop
//
// All player state lives on a single [Loop]. Media runtimes, retry timers and track loads run
// elsewhere and post callbacks back; nothing on the loop blocks. Interactive frontends call
// [Loop.Run] on a goroutine and use [Loop.Post] or [Loop.Call]; tests drive it with [Loop.Flush].
//
// # TrackPlayer
//
// [TrackPlayer] plays the tracks of one release:
//
//	Idle → Loading → Ready → Playing ⇄ Paused → Ended
//	Loading → Retrying → Loading
//	Loading/Ready/Playing/Paused → Errored
//
// A track that reports a retryable source error (usually media still downloading on the server)
// is retried on the [RetryPolicy] schedule and then errors with a notice. Every load has a
// generation; switching tracks stops the retry timer and drops events from the old load.
//
// # Autoplay
//
// Playback may only start on its own after a user gesture. [TrackPlayer.Play] is the gesture and
// the only place the shared [AutoplayToken] is granted. Pausing never revokes it. When the media
// runtime still refuses to play, the player falls back to Paused.
//
// # Orchestrator
//
// [Orchestrator] holds the playlist, wraps Next/Previous around, picks a platform per item with
// the platform selector and builds a fresh [TrackPlayer] per item that shares the orchestrator's
// token. Changes to enablement or a per-item override re-run the selection.
//
// # Runtime
//
// [StreamMedia] is the terminal runtime: it checks cache-backed keys on the media server (which
// starts their download) and advances a clock-driven timeline while playing.
package player
