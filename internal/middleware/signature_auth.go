// Package middleware holds HTTP middleware shared by the relay handlers.
package middleware

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Aduenko-Vladislav/payment-relay/internal/domain"
	"github.com/Aduenko-Vladislav/payment-relay/pkg/signature"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body
const SignatureHeader = "X-Signature"

// maxCallbackBody bounds the body read so a hostile caller cannot make the
// verifier buffer arbitrary amounts of memory.
const maxCallbackBody = 1 << 20

// SignatureAuth authenticates webhook callbacks by verifying the request
// body against the X-Signature header. Verification always runs over the
// exact bytes received on the wire; downstream handlers get the body back
// untouched.
type SignatureAuth struct {
	secret string
	logger *zap.Logger
}

// NewSignatureAuth creates a callback authenticator for the shared secret
func NewSignatureAuth(secret string, logger *zap.Logger) *SignatureAuth {
	return &SignatureAuth{
		secret: secret,
		logger: logger,
	}
}

// Middleware wraps an HTTP handler with signature verification.
// Signature problems (missing, malformed, wrong) are 401; a missing or
// unreadable body is 400.
func (s *SignatureAuth) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := clientIP(r)

		sig := r.Header.Get(SignatureHeader)
		if sig == "" {
			s.logger.Warn("Callback missing signature",
				zap.String("ip", clientIP),
				zap.String("path", r.URL.Path))
			deny(w, domain.ErrSignatureMissing)
			return
		}
		if _, err := hex.DecodeString(sig); err != nil {
			s.logger.Warn("Callback signature is not hex",
				zap.String("ip", clientIP),
				zap.String("path", r.URL.Path))
			deny(w, domain.ErrSignatureMalformed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			s.logger.Error("Failed to read callback body",
				zap.String("ip", clientIP),
				zap.Error(err))
			deny(w, domain.NewDomainError(domain.ErrorCodeValidationFailed, "unreadable request body"))
			return
		}
		if len(body) == 0 {
			s.logger.Warn("Callback with empty body",
				zap.String("ip", clientIP),
				zap.String("path", r.URL.Path))
			deny(w, domain.NewDomainError(domain.ErrorCodeValidationFailed, "empty request body"))
			return
		}
		// Restore body for downstream handlers
		r.Body = io.NopCloser(bytes.NewBuffer(body))

		if !signature.Verify(sig, body, s.secret) {
			s.logger.Warn("Callback signature verification failed",
				zap.String("ip", clientIP),
				zap.String("path", r.URL.Path))
			deny(w, domain.ErrSignatureInvalid)
			return
		}

		next(w, r)
	}
}

// deny rejects the request with a structured error body: 401 for signature
// failures, 400 for everything else.
func deny(w http.ResponseWriter, err *domain.DomainError) {
	status := http.StatusBadRequest
	if domain.IsSignatureError(err) {
		status = http.StatusUnauthorized
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    err.Code,
			"message": err.Message,
		},
	})
}

// clientIP extracts the client IP for log context
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
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
