package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// BasicRouter is an HTTP router implementing the [Router] interface.
//
// Uses a [chi.Router] internally so path parameters such as {key} are available through [chi.URLParam].
type BasicRouter struct {
	mux chi.Router
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: chi.NewRouter()}
}

// Use adds [Middleware] to the [Router] instance's middleware stack, applied in the order it's added.
//
// Like chi, all middleware must be added before the first route is registered.
func (r *BasicRouter) Use(middleware ...Middleware) {
	for _, mw := range middleware {
		r.mux.Use(mw)
	}
}

// With returns a [Router] sharing this router's routes whose registrations are additionally wrapped by middleware.
func (r *BasicRouter) With(middleware ...Middleware) Router {
	mws := make([]func(http.Handler) http.Handler, len(middleware))
	for i, mw := range middleware {
		mws[i] = mw
	}
	return &BasicRouter{mux: r.mux.With(mws...)}
}

// Handle registers a handler for the specified HTTP method and path.
//
// Requests to a known path with another method get 405 Method Not Allowed.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Method(method, path, handler)
}

// Handler registers a custom Handler implementation.
//
// All routes returned by [Handler.Routes] are registered.
func (r *BasicRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.Handle(route.Method, route.Pattern, route.Handler)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
