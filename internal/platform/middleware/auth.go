package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	id "corecompliance/pkg/domain"
	"corecompliance/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims represents the claims we expect from the JWT validator.
type Claims struct {
	UserID string
}

// RequireAuth rejects requests without a valid bearer token and injects the
// authenticated user ID into the request context for per-user row filtering.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			userUUID, err := uuid.Parse(claims.UserID)
			if err != nil || userUUID == uuid.Nil {
				logger.WarnContext(ctx, "unauthorized access - malformed user id claim",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Invalid token claims")
				return
			}

			ctx = requestcontext.WithUserID(ctx, id.UserID(userUUID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
