// Package tasks runs multi-download operations with real-time progress reporting.
//
// # Prefetch
//
// [Prefetcher] warms the media cache for a playlist. Streams are reordered by [PriorityOrder] so
// the current track and the two after it are requested first, then the rest of the playlist in
// order. Downloads fan out through an errgroup bounded by the configured worker count and go
// through the fetcher, so a track that is already downloading is joined rather than fetched twice.
//
// [Prefetcher.Run] blocks and reports per-track results; [Prefetcher.Start] runs the same work in
// the background on the prefetcher's own context, which [Prefetcher.Close] cancels.
//
// [ResolveAndPrefetch] combines a fetcher resolve with a prefetch for the CLI.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
