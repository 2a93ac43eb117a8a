package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/desertthunder/tapedeck/internal/shared"
)

// AdminTokenHeader carries the shared admin token forwarded by the auth layer.
const AdminTokenHeader = "X-Admin-Token"

// RequestLogger logs one line per request through logger.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Authorizer is the precondition for cache administration endpoints.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// TokenAuthorizer accepts requests that present the configured admin token, either in
// [AdminTokenHeader] or as a bearer token.
//
// An empty token admits every request; deployments then rely on the fronting auth service.
type TokenAuthorizer struct {
	Token string
}

// Authorize implements [Authorizer].
func (a TokenAuthorizer) Authorize(r *http.Request) error {
	if a.Token == "" {
		return nil
	}

	presented := r.Header.Get(AdminTokenHeader)
	if presented == "" {
		presented, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if presented == "" {
		return fmt.Errorf("%w: missing admin token", shared.ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(a.Token)) != 1 {
		return fmt.Errorf("%w: invalid admin token", shared.ErrUnauthorized)
	}
	return nil
}

// RequireAdmin rejects requests the authorizer refuses with 401.
func RequireAdmin(auth Authorizer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := auth.Authorize(r); err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
