package http

import (
	"fmt"
	"net/http"

	"ride-pool/pkg/auth"
	"ride-pool/pkg/logger"
)

type limiter interface {
	Allow(key string) bool
}

// requireRole admits only callers whose token carries role.
func requireRole(log logger.Logger, role auth.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetClaims(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing claims")
			return
		}
		if claims.Role != role {
			log.WithFields(logger.LogFields{
				"user_id": claims.UserID,
				"role":    claims.Role,
			}).Error("role_middleware", fmt.Errorf("%s required", role))
			writeError(w, http.StatusForbidden, "you do not have permission to access this resource")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimited throttles each authenticated user separately.
func rateLimited(log logger.Logger, l limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetClaims(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing claims")
			return
		}
		if !l.Allow(claims.UserID) {
			log.WithFields(logger.LogFields{"user_id": claims.UserID}).Warn("rate_limited", "Too many ride requests")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
