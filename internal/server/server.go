// package server contains routing, middleware & handlers for the tapedeck media service
package server

import (
	"net/http"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authorization, request IDs, panic recovery, etc.
type Middleware func(http.Handler) http.Handler

// Route binds a method and chi path pattern to a handler function.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Handler defines the interface for groups of HTTP endpoints in the media service.
// Implementations handle specific surfaces (media, resolve, cache administration).
type Handler interface {
	Routes() []Route // Routes returns the method/pattern pairs this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	With(middleware ...Middleware) Router             // With returns a router whose routes also pass through middleware
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers every route of a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}
