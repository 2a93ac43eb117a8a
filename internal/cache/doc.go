// Package cache implements the bounded on-disk store of downloaded media.
//
// A [Store] owns one directory. Every blob is a single file named after its key, tracked in memory
// and mirrored to an optional persistent [Index] so the cache survives restarts. The aggregate size
// never exceeds the configured budget: admission evicts unpinned entries in least-recently-used
// order (ties by insertion order) before a new blob is committed.
//
// Readers pin an entry through [Store.Acquire] and release it with [Handle.Release]; pinned entries
// are never evicted, removed or cleared.
package cache
