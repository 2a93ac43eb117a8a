// Package fetcher resolves external media references and downloads their audio into the cache.
//
// Resolution turns a locator (a single video or a playlist) into an ordered list of [RemoteStream]s.
// Downloads are single-flight per cache key: concurrent callers for the same key attach to one job
// and share its result. Jobs run in the background on a context owned by the [Fetcher], bounded by
// a parallelism limit and paced by a rate limiter, so a caller giving up never cancels a transfer
// other callers are waiting on.
//
// The upstream extraction itself sits behind [Extractor]; [YTDLP] is the production implementation.
package fetcher
