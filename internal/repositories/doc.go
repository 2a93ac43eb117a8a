// Package repositories implements SQLite persistence for engine state that must survive a restart.
//
// Key Implementations:
//   - [CacheEntryRepository] : the media cache index (key, file, size, timestamps, insertion order)
//   - [SettingsRepository] : admin settings stored as name/value pairs
//
// Download jobs are deliberately not persisted; an interrupted download is simply requested again.
package repositories
