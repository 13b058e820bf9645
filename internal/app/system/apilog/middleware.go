// Package apilog records API requests that end in an error status, so
// integration problems show up in the database instead of only in
// scrollback. Successful requests are not recorded.
package apilog

import (
	"context"
	"net/http"
	"strings"
	"time"

	apilogstore "github.com/dalemusser/stratadrive/internal/app/store/apilog"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/network"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds configuration for the api log middleware.
type Config struct {
	Store  *apilogstore.Store
	Logger *zap.Logger

	// ExcludePaths is a list of path prefixes never recorded
	// (e.g. health probes).
	ExcludePaths []string
}

// Middleware returns HTTP middleware that records failed requests.
// Writes happen asynchronously so the response is never delayed by the
// log.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range cfg.ExcludePaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			if wrapped.status < 400 {
				return
			}

			rec := apilogstore.Record{
				RequestID:  uuid.New().String(),
				Method:     r.Method,
				Path:       r.URL.Path,
				Query:      r.URL.RawQuery,
				StatusCode: wrapped.status,
				ErrorClass: classify(wrapped.status),
				RemoteIP:   network.GetClientIP(r),
				UserAgent:  r.UserAgent(),
				DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
				StartedAt:  start,
			}
			if owner, ok := auth.OwnerID(r.Context()); ok {
				rec.OwnerID = &owner
			}

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := cfg.Store.Create(ctx, rec); err != nil {
					cfg.Logger.Error("failed to record api log entry",
						zap.String("request_id", rec.RequestID),
						zap.Error(err))
				}
			}()
		})
	}
}

// classify buckets a status code for filtering in the log.
func classify(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "validation"
	case status == http.StatusUnauthorized:
		return "auth"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status >= 500:
		return "internal"
	default:
		return "client_error"
	}
}

// statusWriter captures the status code written by the handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
