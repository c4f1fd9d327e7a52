package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/auth"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// statusRecorder captures the status code a handler writes so
// withLogging can report it after the fact — http.ResponseWriter
// doesn't expose what's already been sent.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging logs exactly one structured line per request: method,
// path, status, duration, and the authenticated backend_bot_id (empty
// for unauthenticated routes). On authenticated routes it runs inside
// requireAuth, so a request rejected with 401 is not logged here.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"backend_bot_id", store.BackendIDFromContext(r.Context()),
		)
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// requireAuth wraps next with bearer-token authentication, injecting
// the resolved backend identity into the request context on success.
// Failure writes the 401 shape SPEC_FULL.md's external interface names
// explicitly: {"detail":"Unauthorized"}.
func requireAuth(authSvc *auth.Service, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authSvc.Authenticate(extractBearerToken(r))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Unauthorized"})
			return
		}
		ctx := store.WithBackendID(r.Context(), identity.ID)
		if reqID := r.Header.Get("X-Request-Id"); reqID != "" {
			ctx = store.WithRequestID(ctx, reqID)
			w.Header().Set("X-Request-Id", reqID)
		}
		next(w, r.WithContext(ctx))
	}
}
