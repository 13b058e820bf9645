// Package auth resolves request credentials to drive owners.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/stratadrive/internal/app/store/accesskeys"
	"github.com/dalemusser/stratadrive/internal/app/system/network"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type contextKey int

const ownerIDKey contextKey = iota

// OwnerID returns the authenticated owner for the request, as placed
// there by RequireOwner. The second return is false on unauthenticated
// requests (which RequireOwner never lets through).
func OwnerID(ctx context.Context) (primitive.ObjectID, bool) {
	id, ok := ctx.Value(ownerIDKey).(primitive.ObjectID)
	return id, ok
}

// WithOwnerID injects an owner into a context. Exposed for handler
// tests that bypass the middleware.
func WithOwnerID(ctx context.Context, ownerID primitive.ObjectID) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// RequireOwner returns middleware that resolves a bearer access key
// ("Authorization: Bearer sk_…") to an owner id and stores it in the
// request context. Requests without a valid active key get 401.
func RequireOwner(keys *accesskeys.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Invalid Authorization format (expected: Bearer <access-key>)", http.StatusUnauthorized)
				return
			}

			key, err := keys.Resolve(r.Context(), parts[1])
			if err != nil {
				if errors.Is(err, accesskeys.ErrInvalidKey) {
					logger.Warn("request rejected: invalid access key",
						zap.String("path", r.URL.Path),
						zap.String("remote_ip", network.GetClientIP(r)),
					)
					http.Error(w, "Invalid access key", http.StatusUnauthorized)
					return
				}
				logger.Error("access key lookup failed", zap.Error(err))
				http.Error(w, "Authentication unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), key.OwnerID)))
		})
	}
}
