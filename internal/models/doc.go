// Package models defines the domain entities shared by the media engine and its clients.
//
// The package contains two categories of types:
//
// 1. Catalog DTOs supplied by external collaborators:
//   - [PlaylistItem] : a release with its per-platform embeds
//   - [PlatformEmbed] : a locator for one platform, single or collection
//   - [Track] : one playable track within a release
//
// 2. Engine state:
//   - [CacheEntry] : a downloaded media blob tracked by the cache
//   - [DownloadJob] : a single-flight download tracked by the fetcher
//   - [JobState] : download lifecycle (pending, running, done, failed)
package models
