// CLAUDE:SUMMARY HTTP middleware for the status surface: HEAD→GET, API security headers, per-request trace logger, bcrypt Basic Auth.
// Package shield holds the middleware stack in front of the status server.
package shield

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type ctxKey string

// LoggerKey stores the per-request logger in the request context.
const LoggerKey ctxKey = "shield_logger"

// Stack returns the status middleware in order: HeadToGet, APIHeaders,
// TraceID, and BasicAuth when passwordHash is set.
func Stack(logger *slog.Logger, user, passwordHash string) []func(http.Handler) http.Handler {
	mws := []func(http.Handler) http.Handler{
		HeadToGet,
		APIHeaders,
		TraceID(logger),
	}
	if passwordHash != "" {
		mws = append(mws, BasicAuth(user, passwordHash, "/health"))
	}
	return mws
}

// HeadToGet serves HEAD through GET routes; net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// APIHeaders sets the headers every JSON response carries.
func APIHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// TraceID tags each request with an ID, echoed in X-Trace-ID, and stores a
// logger carrying it in the context.
func TraceID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := uuid.NewString()[:8]
			w.Header().Set("X-Trace-ID", traceID)
			logger := base.With("trace_id", traceID, "method", r.Method,
				"path", r.URL.Path, "remote_addr", r.RemoteAddr)
			logger.Debug("shield: request")
			ctx := context.WithValue(r.Context(), LoggerKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// BasicAuth requires HTTP Basic credentials: user must match (any user when
// empty) and the password must match the bcrypt passwordHash. Requests whose
// path is in open bypass the check.
func BasicAuth(user, passwordHash string, open ...string) func(http.Handler) http.Handler {
	hash := []byte(passwordHash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range open {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			u, p, ok := r.BasicAuth()
			if ok && user != "" && subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 {
				ok = false
			}
			if !ok || bcrypt.CompareHashAndPassword(hash, []byte(p)) != nil {
				GetLogger(r.Context()).Warn("shield: unauthorized")
				w.Header().Set("WWW-Authenticate", `Basic realm="placebot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
