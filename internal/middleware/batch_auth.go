package middleware

import (
	"crypto/hmac"
	"net"
	"net/http"
	"strings"

	"github.com/courierpay/payment-engine/internal/domain/ports"
)

// BatchAuth guards the consolidation batch trigger with a shared secret.
// The endpoint is meant for the platform's scheduler, not end users.
type BatchAuth struct {
	secret string
	logger ports.Logger
}

// NewBatchAuth creates a new batch endpoint authenticator
func NewBatchAuth(secret string, logger ports.Logger) *BatchAuth {
	return &BatchAuth{
		secret: secret,
		logger: logger,
	}
}

// Middleware wraps an HTTP handler with shared-secret authentication.
// The secret is accepted as "Authorization: Bearer <secret>" or in the
// X-Batch-Secret header.
func (b *BatchAuth) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get("X-Batch-Secret")
		if provided == "" {
			authz := r.Header.Get("Authorization")
			provided = strings.TrimPrefix(authz, "Bearer ")
		}

		if b.secret == "" || !hmac.Equal([]byte(provided), []byte(b.secret)) {
			b.logger.Warn("batch trigger rejected",
				ports.String("ip", clientIP(r)),
				ports.String("path", r.URL.Path),
			)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// clientIP extracts the client IP, preferring proxy headers
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
