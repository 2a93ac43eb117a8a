// Package server provides HTTP routing, middleware, and handlers for the tapedeck media service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in the standard Go pattern. The [BasicRouter] implementation delegates
// to chi so handlers can read path parameters with chi.URLParam, and [BasicRouter.With] mounts a
// group of routes behind extra middleware (the admin routes sit behind [RequireAdmin]).
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface and return their [Route] list, encapsulating
// route definitions within the implementation.
//
// # Media Endpoint
//
// [MediaHandler] serves GET/HEAD /media/{key}. A cache hit pins the entry for the duration of the
// response and streams it with byte-range support. A miss enqueues a background download and
// answers 202 with a Retry-After hint. Keys that can never be cached get 404, and keys whose
// download recently failed get 502, or 403 when the source refused access.
//
// # Client and Admin APIs
//
// [APIHandler] resolves embed locators to track keys (optionally prefetching them) and reports
// platform enablement. [AdminHandler] exposes cache statistics, clearing and settings, and is
// gated by an [Authorizer].
//
// # Lifecycle
//
// [Server.Run] listens until its context is cancelled and then shuts down gracefully.
package server
