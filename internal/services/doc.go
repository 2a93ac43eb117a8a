// Package services implements the HTTP client for the tapedeck media service.
//
// # Interfaces
//
// [MediaService] is the surface the player depends on: media URLs, probing a key (which starts its
// download on the server), per-key info, embed resolution and platform enablement.
// [AdminService] covers cache statistics, clearing and settings.
//
// [APIService] implements both. Raw Get/Post/Put/Head methods return an [APIResponse] with the
// status, headers and body, and detect JSON bodies; typed methods decode into the models package.
//
// # Error Handling
//
// Non-success responses map onto the shared sentinels:
//   - 202 : [shared.ErrPending] via [PendingError], carrying Retry-After
//   - 404 : [shared.ErrNotCached]
//   - 403 : [shared.ErrSourceRestricted]
//   - 502 / 504 : [shared.ErrSourceUnavailable]
//   - 409 : [shared.ErrBusy]
//   - 401 : [shared.ErrUnauthorized]
//   - 400 : [shared.ErrInvalidInput]
//
// Admin calls send the token configured with [APIService.WithAdminToken].
package services
